// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, request metrics, and request ID propagation.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → RateLimit → Auth → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attempts before any
// bcrypt or database work. Auth resolves the presented token to a project and
// stores the identity in the request context for handlers.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flakewatch/flakewatch/internal/auth"
	"github.com/flakewatch/flakewatch/internal/db/models"
	"github.com/flakewatch/flakewatch/internal/db/repositories"
	"github.com/flakewatch/flakewatch/internal/safego"
	"github.com/flakewatch/flakewatch/internal/telemetry"
)

const (
	// ProjectIDKey is the gin.Context key under which AuthMiddleware stores the
	// authenticated project ID. Handlers read it to scope every query.
	ProjectIDKey = "project_id"

	// TokenIDKey is the gin.Context key holding the ID of the token that
	// authenticated the request.
	TokenIDKey = "token_id"
)

// AuthMiddleware validates the project-scoped API token on every request.
//
// The raw token is never stored, only its bcrypt hash. The 10-character
// display prefix is stored plaintext alongside the hash so authentication can
// do a fast indexed query to narrow the candidate set, then run the expensive
// bcrypt comparison only on those few rows. Without the prefix, every request
// would require scanning the entire api_tokens table and running bcrypt on
// each row.
//
// A request that cannot be tied to a token is rejected with 401 before any
// payload is read. A database failure during lookup is a server fault and
// yields 500, never 401: the caller's credential may well be valid.
func AuthMiddleware(tokenRepo *repositories.TokenRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			telemetry.AuthFailuresTotal.WithLabelValues("missing_header").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		token, err := auth.ExtractTokenFromHeader(header)
		if err != nil {
			telemetry.AuthFailuresTotal.WithLabelValues("malformed_header").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		apiToken, err := authenticateToken(c.Request.Context(), token, tokenRepo)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}

		if apiToken == nil {
			telemetry.AuthFailuresTotal.WithLabelValues("unknown_token").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		// Update last-used asynchronously. Last-used tracking is best-effort;
		// a failed update is not a correctness problem, and a synchronous write
		// would add DB latency to every authenticated request. The 5-second
		// timeout prevents leaked goroutines if the DB is unreachable.
		tokenID := apiToken.ID
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tokenRepo.UpdateLastUsed(ctx, tokenID)
		})

		c.Set(ProjectIDKey, apiToken.ProjectID)
		c.Set(TokenIDKey, apiToken.ID)

		c.Next()
	}
}

// authenticateToken resolves a presented token to its stored record by prefix
// lookup followed by bcrypt validation against each candidate. Returns
// (nil, nil) when no candidate matches.
func authenticateToken(ctx context.Context, providedToken string, tokenRepo *repositories.TokenRepository) (*models.APIToken, error) {
	candidates, err := tokenRepo.GetByPrefix(ctx, auth.DisplayPrefix(providedToken))
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if auth.ValidateToken(providedToken, candidate.TokenHash) {
			return candidate, nil
		}
	}

	return nil, nil
}
