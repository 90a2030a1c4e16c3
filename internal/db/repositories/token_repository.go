// token_repository.go implements TokenRepository, providing database queries for
// API token creation, prefix-indexed candidate lookup during authentication, and
// last-used timestamp updates.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flakewatch/flakewatch/internal/db/models"
)

// TokenRepository handles API token database operations
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create persists a new API token record. Only the bcrypt hash and the display
// prefix are stored; the raw token never reaches this layer.
func (r *TokenRepository) Create(ctx context.Context, token *models.APIToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO api_tokens (id, project_id, name, token_hash, token_prefix, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.ProjectID,
		token.Name,
		token.TokenHash,
		token.TokenPrefix,
		token.LastUsedAt,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API token: %w", err)
	}

	return nil
}

// GetByPrefix retrieves the candidate tokens sharing a display prefix. The
// prefix is not a secret; the caller must still verify the presented token
// against each candidate's bcrypt hash.
func (r *TokenRepository) GetByPrefix(ctx context.Context, prefix string) ([]*models.APIToken, error) {
	query := `
		SELECT id, project_id, name, token_hash, token_prefix, last_used_at, created_at
		FROM api_tokens
		WHERE token_prefix = $1
	`

	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens by prefix: %w", err)
	}
	defer rows.Close()

	var tokens []*models.APIToken
	for rows.Next() {
		token := &models.APIToken{}
		if err := rows.Scan(
			&token.ID,
			&token.ProjectID,
			&token.Name,
			&token.TokenHash,
			&token.TokenPrefix,
			&token.LastUsedAt,
			&token.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan API token: %w", err)
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

// ListByProject retrieves all tokens issued for a project. The hash column is
// included for internal use; handlers must never serialize it (the model's JSON
// tag already omits it).
func (r *TokenRepository) ListByProject(ctx context.Context, projectID string) ([]*models.APIToken, error) {
	query := `
		SELECT id, project_id, name, token_hash, token_prefix, last_used_at, created_at
		FROM api_tokens
		WHERE project_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.APIToken
	for rows.Next() {
		token := &models.APIToken{}
		if err := rows.Scan(
			&token.ID,
			&token.ProjectID,
			&token.Name,
			&token.TokenHash,
			&token.TokenPrefix,
			&token.LastUsedAt,
			&token.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan API token: %w", err)
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

// UpdateLastUsed records when a token last authenticated a request. Best-effort:
// callers invoke it asynchronously and ignore the error.
func (r *TokenRepository) UpdateLastUsed(ctx context.Context, tokenID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`,
		time.Now().UTC(), tokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	return nil
}

// FindStale retrieves tokens that have not authenticated a request since the
// cutoff. A token that was never used counts from its creation time.
func (r *TokenRepository) FindStale(ctx context.Context, cutoff time.Time) ([]*models.APIToken, error) {
	query := `
		SELECT id, project_id, name, token_hash, token_prefix, last_used_at, created_at
		FROM api_tokens
		WHERE COALESCE(last_used_at, created_at) < $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.APIToken
	for rows.Next() {
		token := &models.APIToken{}
		if err := rows.Scan(
			&token.ID,
			&token.ProjectID,
			&token.Name,
			&token.TokenHash,
			&token.TokenPrefix,
			&token.LastUsedAt,
			&token.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan API token: %w", err)
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

// Delete removes a token
func (r *TokenRepository) Delete(ctx context.Context, tokenID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = $1`, tokenID)
	if err != nil {
		return fmt.Errorf("failed to delete API token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}
