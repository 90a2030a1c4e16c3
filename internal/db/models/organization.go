// Package models defines the database model types for FlakeWatch.
// Each type corresponds to a database table and uses struct tags for both JSON serialization and sqlx row scanning.
// Models are pure data types; business logic belongs in the handlers, query logic belongs in the repositories layer.
package models

import "time"

// Organization represents a tenant account that owns projects
type Organization struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`                 // URL-safe name, unique
	DisplayName string    `json:"display_name" db:"display_name"` // Human-readable display name
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
