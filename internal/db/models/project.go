// project.go defines the Project model. A project is the unit of tenancy for
// ingestion: every token and every stored run belongs to exactly one project.
package models

import "time"

// Project represents a test-reporting project within an organization
type Project struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"` // Unique within the organization
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
