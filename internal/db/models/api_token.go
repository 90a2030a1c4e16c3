// api_token.go defines the APIToken model. The raw token value is shown to the
// caller exactly once at issuance; only its bcrypt hash is ever stored.
package models

import "time"

// APIToken represents an ingestion credential bound to a single project
type APIToken struct {
	ID          string     `json:"id" db:"id"`
	ProjectID   string     `json:"project_id" db:"project_id"`
	Name        string     `json:"name" db:"name"`                 // Friendly name (e.g., "GitHub Actions")
	TokenHash   string     `json:"-" db:"token_hash"`              // Bcrypt hash of the full token
	TokenPrefix string     `json:"token_prefix" db:"token_prefix"` // First 10 chars, for display and indexed candidate lookup
	LastUsedAt  *time.Time `json:"last_used_at" db:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
