// tokens.go implements handlers for API token issuance and revocation. The raw
// token value appears exactly once, in the issuance response body; afterwards
// only the bcrypt hash and the display prefix exist server-side.
package admin

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flakewatch/flakewatch/internal/auth"
	"github.com/flakewatch/flakewatch/internal/config"
	"github.com/flakewatch/flakewatch/internal/db/models"
	"github.com/flakewatch/flakewatch/internal/db/repositories"
)

// TokenHandlers handles API token management endpoints
type TokenHandlers struct {
	cfg         *config.Config
	tokenRepo   *repositories.TokenRepository
	projectRepo *repositories.ProjectRepository
}

// NewTokenHandlers creates a new TokenHandlers instance
func NewTokenHandlers(cfg *config.Config, db *sql.DB) *TokenHandlers {
	return &TokenHandlers{
		cfg:         cfg,
		tokenRepo:   repositories.NewTokenRepository(db),
		projectRepo: repositories.NewProjectRepository(db),
	}
}

// CreateTokenRequest represents the request to issue a token
type CreateTokenRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateTokenResponse is returned on successful issuance. Token carries the raw
// value and is never retrievable again.
type CreateTokenResponse struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Token       string    `json:"token"`
	TokenPrefix string    `json:"token_prefix"`
	CreatedAt   time.Time `json:"created_at"`
}

// @Summary      Issue API token
// @Description  Issue a new ingestion token for a project. The raw token is returned exactly once.
// @Tags         Tokens
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string              true  "Project ID"
// @Param        body  body  CreateTokenRequest  true  "Token name"
// @Success      201  {object}  CreateTokenResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid request body"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/projects/{id}/tokens [post]
// CreateTokenHandler issues a new token for a project
// POST /api/v1/projects/:id/tokens
func (h *TokenHandlers) CreateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("id")

		var req CreateTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		// A token must never reference a missing project.
		exists, err := h.projectRepo.Exists(c.Request.Context(), projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check project",
			})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}

		fullToken, tokenHash, displayPrefix, err := auth.GenerateToken(h.cfg.Auth.Tokens.Prefix)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		token := &models.APIToken{
			ProjectID:   projectID,
			Name:        req.Name,
			TokenHash:   tokenHash,
			TokenPrefix: displayPrefix,
		}

		if err := h.tokenRepo.Create(c.Request.Context(), token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create token",
			})
			return
		}

		c.JSON(http.StatusCreated, CreateTokenResponse{
			ID:          token.ID,
			ProjectID:   token.ProjectID,
			Name:        token.Name,
			Token:       fullToken, // IMPORTANT: only returned once
			TokenPrefix: displayPrefix,
			CreatedAt:   token.CreatedAt,
		})
	}
}

// @Summary      List API tokens
// @Description  List all tokens issued for a project. Only display prefixes are returned, never raw tokens or hashes.
// @Tags         Tokens
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Project ID"
// @Success      200  {object}  map[string]interface{}  "tokens: []models.APIToken"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/projects/{id}/tokens [get]
// ListTokensHandler lists all tokens for a project
// GET /api/v1/projects/:id/tokens
func (h *TokenHandlers) ListTokensHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("id")

		exists, err := h.projectRepo.Exists(c.Request.Context(), projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check project",
			})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}

		tokens, err := h.tokenRepo.ListByProject(c.Request.Context(), projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list tokens",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"tokens": tokens,
		})
	}
}

// @Summary      Revoke API token
// @Description  Delete a token by ID. Requests presenting the token fail authentication immediately afterwards.
// @Tags         Tokens
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Token ID"
// @Success      200  {object}  map[string]interface{}  "message: Token revoked"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Token not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/tokens/{id} [delete]
// DeleteTokenHandler revokes a token
// DELETE /api/v1/tokens/:id
func (h *TokenHandlers) DeleteTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenID := c.Param("id")

		if err := h.tokenRepo.Delete(c.Request.Context(), tokenID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Token not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to revoke token",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Token revoked",
		})
	}
}
