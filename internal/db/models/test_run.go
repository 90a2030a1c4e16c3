// test_run.go defines the TestRun model and the nested suite/case payload types.
// A stored run is immutable: there is no update or delete path, and the
// (project_id, run_id) pair is covered by a unique constraint so the same
// logical run can never be stored twice.
package models

import "time"

// Test case status values accepted in run payloads.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusFlaky   = "flaky"
	StatusSkipped = "skipped"
)

// TestRun represents one reported test-execution outcome for a project.
// RunID is the client-chosen logical identifier (e.g. "tr_build_42"); together
// with ProjectID it forms the idempotency key.
type TestRun struct {
	ID             string      `json:"id" db:"id"`
	ProjectID      string      `json:"project_id" db:"project_id"`
	RunID          string      `json:"run_id" db:"run_id"`
	Environment    string      `json:"environment" db:"environment"`
	RunTimestamp   time.Time   `json:"timestamp" db:"run_timestamp"`
	TotalTestCases int         `json:"total_test_cases" db:"total_test_cases"`
	Passed         int         `json:"passed" db:"passed"`
	Failed         int         `json:"failed" db:"failed"`
	Flaky          int         `json:"flaky" db:"flaky"`
	Skipped        int         `json:"skipped" db:"skipped"`
	DurationMS     int64       `json:"duration_ms" db:"duration_ms"`
	Suites         []TestSuite `json:"test_suites,omitempty" db:"-"` // Stored as JSONB in the suites column
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// TestSuite is one suite within a run payload. Durations are floats because CI
// timers report fractional milliseconds; suites live in the JSONB column, so
// the reported precision is preserved as submitted.
type TestSuite struct {
	SuiteName  string     `json:"suite_name"`
	TotalCases int        `json:"total_cases"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	DurationMS float64    `json:"duration_ms"`
	TestCases  []TestCase `json:"test_cases,omitempty"`
}

// TestCase is one case within a suite
type TestCase struct {
	Name         string   `json:"name"`
	Status       string   `json:"status"` // passed | failed | flaky | skipped
	DurationMS   float64  `json:"duration_ms"`
	Steps        []string `json:"steps,omitempty"`
	ErrorMessage *string  `json:"error_message,omitempty"`
}
