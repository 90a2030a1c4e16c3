package runs

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/flakewatch/flakewatch/internal/db/repositories"
	"github.com/flakewatch/flakewatch/internal/middleware"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var errDB = errors.New("db failure")

var runCols = []string{
	"id", "project_id", "run_id", "environment", "run_timestamp",
	"total_test_cases", "passed", "failed", "flaky", "skipped", "duration_ms",
	"suites", "created_at",
}

const testMaxBody = 1 << 20

// newRunsRouter builds a router with the runs handlers mounted the way
// router.go mounts them, with the auth middleware replaced by a stub that
// injects the given project identity.
func newRunsRouter(t *testing.T, projectID string) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewHandler(repositories.NewRunRepository(sqlx.NewDb(db, "postgres")), testMaxBody)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if projectID != "" {
			c.Set(middleware.ProjectIDKey, projectID)
		}
		c.Next()
	})
	r.POST("/runs", h.IngestHandler())
	r.GET("/runs", h.ListRunsHandler())
	r.GET("/runs/:run_id", h.GetRunHandler())
	return mock, r
}

const validRunBody = `{
	"run_id": "tr_build_42",
	"environment": "ci",
	"timestamp": "2026-08-30T12:00:00Z",
	"summary": {
		"total_test_cases": 3, "passed": 2, "failed": 1,
		"flaky": 0, "skipped": 0, "duration_ms": 900
	},
	"test_suites": [
		{
			"suite_name": "auth",
			"total_cases": 3, "passed": 2, "failed": 1, "duration_ms": 900,
			"test_cases": [
				{"name": "login works", "status": "passed", "duration_ms": 300}
			]
		}
	]
}`

func postRun(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/runs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not JSON: %v\nbody: %s", err, resp.Body.String())
	}
	return m
}

// ---------------------------------------------------------------------------
// IngestHandler
// ---------------------------------------------------------------------------

func TestIngest_Created(t *testing.T) {
	mock, r := newRunsRouter(t, "proj-1")
	mock.ExpectExec("INSERT INTO test_runs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := postRun(r, validRunBody)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	if resp["run_id"] != "tr_build_42" {
		t.Errorf("run_id = %v, want tr_build_42", resp["run_id"])
	}
	if resp["duplicate"] != false {
		t.Errorf("duplicate = %v, want false", resp["duplicate"])
	}
	if resp["summary"] == nil {
		t.Error("response missing 'summary' key")
	}
}

func TestIngest_DuplicateIsSuccess(t *testing.T) {
	// A replayed run is acknowledged with 200, not an error: CI retries must
	// be able to resend blindly.
	mock, r := newRunsRouter(t, "proj-1")
	mock.ExpectExec("INSERT INTO test_runs").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "test_runs_project_run_key"})

	w := postRun(r, validRunBody)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	if resp["duplicate"] != true {
		t.Errorf("duplicate = %v, want true", resp["duplicate"])
	}
	if resp["run_id"] != "tr_build_42" {
		t.Errorf("run_id = %v, want tr_build_42", resp["run_id"])
	}
}

func TestIngest_ValidationCollectsAllErrors(t *testing.T) {
	// Missing environment AND a mistyped summary counter: the response must
	// name both so the payload is fixable in one round trip.
	_, r := newRunsRouter(t, "proj-1")

	w := postRun(r, `{
		"run_id": "tr_build_42",
		"timestamp": "2026-08-30T12:00:00Z",
		"summary": {"total_test_cases": 3, "passed": "two", "failed": 1, "flaky": 0, "skipped": 0, "duration_ms": 900}
	}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: body=%s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "environment is required") {
		t.Errorf("response should mention missing environment: %s", body)
	}
	if !strings.Contains(body, "summary.passed must be a number") {
		t.Errorf("response should mention mistyped summary.passed: %s", body)
	}
}

func TestIngest_FractionalCountIsValidationError(t *testing.T) {
	// A fractional count must come back as a 400 naming the field. Before the
	// validator required whole-number counts, a payload like this passed
	// validation and then blew up the typed decode, surfacing as a 500.
	_, r := newRunsRouter(t, "proj-1")

	w := postRun(r, `{
		"run_id": "tr_build_42",
		"environment": "ci",
		"timestamp": "2026-08-30T12:00:00Z",
		"summary": {"total_test_cases": 3, "passed": 2.5, "failed": 1, "flaky": 0, "skipped": 0, "duration_ms": 900}
	}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "summary.passed must be an integer") {
		t.Errorf("response should name the fractional count: %s", w.Body.String())
	}
}

func TestIngest_FractionalDurationStored(t *testing.T) {
	// Fractional timer values are accepted; the stored summary duration is
	// truncated to whole milliseconds.
	mock, r := newRunsRouter(t, "proj-1")
	mock.ExpectExec("INSERT INTO test_runs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := postRun(r, `{
		"run_id": "tr_build_42",
		"environment": "ci",
		"timestamp": "2026-08-30T12:00:00Z",
		"summary": {"total_test_cases": 1, "passed": 1, "failed": 0, "flaky": 0, "skipped": 0, "duration_ms": 900.5},
		"test_suites": [
			{"suite_name": "auth", "total_cases": 1, "passed": 1, "failed": 0, "duration_ms": 450.25}
		]
	}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	summary, ok := resp["summary"].(map[string]interface{})
	if !ok {
		t.Fatalf("response missing summary object: %s", w.Body.String())
	}
	if summary["duration_ms"] != float64(900) {
		t.Errorf("duration_ms = %v, want 900 (truncated)", summary["duration_ms"])
	}
}

func TestIngest_MalformedJSON(t *testing.T) {
	_, r := newRunsRouter(t, "proj-1")

	w := postRun(r, `{"run_id": `)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: body=%s", w.Code, w.Body.String())
	}
}

func TestIngest_StorageFaultIs500(t *testing.T) {
	// A non-unique-violation DB error is a server fault, never a duplicate.
	mock, r := newRunsRouter(t, "proj-1")
	mock.ExpectExec("INSERT INTO test_runs").
		WillReturnError(errDB)

	w := postRun(r, validRunBody)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500: body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "db failure") {
		t.Error("internal error detail leaked into the response body")
	}
}

func TestIngest_NoProjectContext(t *testing.T) {
	_, r := newRunsRouter(t, "")

	w := postRun(r, validRunBody)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestIngest_PayloadTooLarge(t *testing.T) {
	_, r := newRunsRouter(t, "proj-1")

	huge := `{"run_id": "tr_build_42", "filler": "` + strings.Repeat("x", testMaxBody+1) + `"}`
	w := postRun(r, huge)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetRunHandler
// ---------------------------------------------------------------------------

func TestGetRun_Found(t *testing.T) {
	mock, r := newRunsRouter(t, "proj-1")
	mock.ExpectQuery("SELECT.*FROM test_runs").
		WithArgs("proj-1", "tr_build_42").
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("id-1", "proj-1", "tr_build_42", "ci", time.Now(),
				3, 2, 1, 0, 0, int64(900), []byte(`[]`), time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/runs/tr_build_42", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestGetRun_OtherTenantsRunIsNotFound(t *testing.T) {
	// The lookup is scoped by the authenticated project, so a run stored by
	// another project yields 404 and tenants cannot probe each other's run IDs.
	mock, r := newRunsRouter(t, "proj-2")
	mock.ExpectQuery("SELECT.*FROM test_runs").
		WithArgs("proj-2", "tr_build_42").
		WillReturnRows(sqlmock.NewRows(runCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/runs/tr_build_42", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// ListRunsHandler
// ---------------------------------------------------------------------------

func TestListRuns_Success(t *testing.T) {
	mock, r := newRunsRouter(t, "proj-1")
	mock.ExpectQuery("SELECT.*FROM test_runs").
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("id-1", "proj-1", "tr_build_42", "ci", time.Now(),
				3, 2, 1, 0, 0, int64(900), []byte(`[]`), time.Now()))
	mock.ExpectQuery("SELECT COUNT.*FROM test_runs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/runs?limit=5", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp["runs"] == nil {
		t.Error("response missing 'runs' key")
	}
}

func TestListRuns_DBError(t *testing.T) {
	mock, r := newRunsRouter(t, "proj-1")
	mock.ExpectQuery("SELECT.*FROM test_runs").
		WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/runs", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
