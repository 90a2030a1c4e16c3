// projects.go implements handlers for project CRUD operations. Projects are the
// tenancy boundary: every token and every stored run belongs to exactly one project.
package admin

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flakewatch/flakewatch/internal/config"
	"github.com/flakewatch/flakewatch/internal/db/models"
	"github.com/flakewatch/flakewatch/internal/db/repositories"
)

// ProjectHandlers handles project management endpoints
type ProjectHandlers struct {
	cfg         *config.Config
	projectRepo *repositories.ProjectRepository
	orgRepo     *repositories.OrganizationRepository
}

// NewProjectHandlers creates a new ProjectHandlers instance
func NewProjectHandlers(cfg *config.Config, db *sql.DB) *ProjectHandlers {
	return &ProjectHandlers{
		cfg:         cfg,
		projectRepo: repositories.NewProjectRepository(db),
		orgRepo:     repositories.NewOrganizationRepository(db),
	}
}

// CreateProjectRequest represents the request to create a project
type CreateProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

// @Summary      Create project
// @Description  Create a new project under an organization. The name must be unique within the organization.
// @Tags         Projects
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        org_id  path  string                true  "Organization ID"
// @Param        body    body  CreateProjectRequest  true  "Project to create"
// @Success      201  {object}  map[string]interface{}  "project: models.Project"
// @Failure      400  {object}  map[string]interface{}  "Invalid request body"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      409  {object}  map[string]interface{}  "Project name already taken in this organization"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/organizations/{org_id}/projects [post]
// CreateProjectHandler creates a new project under an organization
// POST /api/v1/organizations/:id/projects
func (h *ProjectHandlers) CreateProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")

		var req CreateProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		org, err := h.orgRepo.GetByID(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve organization",
			})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Organization not found",
			})
			return
		}

		project := &models.Project{
			OrganizationID: orgID,
			Name:           req.Name,
		}

		if err := h.projectRepo.Create(c.Request.Context(), project); err != nil {
			if errors.Is(err, repositories.ErrNameTaken) {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Project with this name already exists in the organization",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create project",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"project": project,
		})
	}
}

// @Summary      List projects
// @Description  List all projects under an organization.
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Param        org_id  path  string  true  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "projects: []models.Project"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/organizations/{org_id}/projects [get]
// ListProjectsHandler lists all projects under an organization
// GET /api/v1/organizations/:id/projects
func (h *ProjectHandlers) ListProjectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")

		projects, err := h.projectRepo.ListByOrganization(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list projects",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"projects": projects,
		})
	}
}

// @Summary      Get project
// @Description  Retrieve a specific project by its ID.
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Project ID"
// @Success      200  {object}  map[string]interface{}  "project: models.Project"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/projects/{id} [get]
// GetProjectHandler retrieves a specific project by ID
// GET /api/v1/projects/:id
func (h *ProjectHandlers) GetProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("id")

		project, err := h.projectRepo.GetByID(c.Request.Context(), projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve project",
			})
			return
		}
		if project == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"project": project,
		})
	}
}

// @Summary      Delete project
// @Description  Delete a project by ID. Tokens and stored runs are removed by cascade.
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Project ID"
// @Success      200  {object}  map[string]interface{}  "message: Project deleted"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/projects/{id} [delete]
// DeleteProjectHandler deletes a project
// DELETE /api/v1/projects/:id
func (h *ProjectHandlers) DeleteProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("id")

		if err := h.projectRepo.Delete(c.Request.Context(), projectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Project not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete project",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Project deleted",
		})
	}
}
