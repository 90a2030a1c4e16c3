// Package runs implements the test-run ingestion and query endpoints.
//
// Ingestion is idempotent: the (project, run_id) pair is the idempotency key,
// enforced by a database unique constraint rather than a read-then-write check
// so that concurrent submissions of the same run cannot both insert. A replayed
// submission is a success (200 with duplicate: true), not an error: CI systems
// retry on flaky networks and must be able to resend blindly.
package runs

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flakewatch/flakewatch/internal/db/models"
	"github.com/flakewatch/flakewatch/internal/db/repositories"
	"github.com/flakewatch/flakewatch/internal/middleware"
	"github.com/flakewatch/flakewatch/internal/telemetry"
	"github.com/flakewatch/flakewatch/internal/validation"
)

// Handler serves the run ingestion and query endpoints
type Handler struct {
	runRepo      *repositories.RunRepository
	maxBodyBytes int64
}

// NewHandler creates a new runs Handler
func NewHandler(runRepo *repositories.RunRepository, maxBodyBytes int64) *Handler {
	return &Handler{
		runRepo:      runRepo,
		maxBodyBytes: maxBodyBytes,
	}
}

// runDocument is the typed form of a payload that has already passed
// validation. Decoding happens twice: once into a generic map so the validator
// can report type mismatches alongside other violations, then into this struct
// to build the stored record.
type runDocument struct {
	RunID       string             `json:"run_id"`
	Environment string             `json:"environment"`
	Timestamp   time.Time          `json:"timestamp"`
	Summary     runSummary         `json:"summary"`
	TestSuites  []models.TestSuite `json:"test_suites"`
}

type runSummary struct {
	TotalTestCases int `json:"total_test_cases"`
	Passed         int `json:"passed"`
	Failed         int `json:"failed"`
	Flaky          int `json:"flaky"`
	Skipped        int `json:"skipped"`
	// Decoded as a float because CI timers report fractional milliseconds;
	// the stored value is truncated to whole milliseconds.
	DurationMS float64 `json:"duration_ms"`
}

// @Summary      Ingest test run
// @Description  Store a test run reported by a CI system. Submissions are idempotent per (project, run_id): the first submission returns 201, replays return 200 with duplicate: true.
// @Tags         Runs
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}  "run_id, duplicate: false"
// @Success      200  {object}  map[string]interface{}  "run_id, duplicate: true"
// @Failure      400  {object}  map[string]interface{}  "errors: every validation violation found"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      413  {object}  map[string]interface{}  "Payload too large"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/runs [post]
// IngestHandler stores a submitted test run
// POST /api/v1/runs
func (h *Handler) IngestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.GetString(middleware.ProjectIDKey)
		if projectID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing project context",
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{
					"error": "Payload too large",
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Failed to read request body",
			})
			return
		}

		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			telemetry.ValidationFailuresTotal.Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"errors": []string{"body must be a valid JSON object"},
			})
			return
		}

		// All violations are collected and reported together so a CI author
		// fixes the payload in one round trip.
		if errs := validation.ValidateRun(payload); len(errs) > 0 {
			telemetry.ValidationFailuresTotal.Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"errors": errs,
			})
			return
		}

		var doc runDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			// Validation already vetted every field; reaching this means the
			// validator and the typed document disagree.
			slog.Error("validated run payload failed typed decode", "error", err, "project_id", projectID)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to process run",
			})
			return
		}

		run := &models.TestRun{
			ProjectID:      projectID,
			RunID:          doc.RunID,
			Environment:    doc.Environment,
			RunTimestamp:   doc.Timestamp,
			TotalTestCases: doc.Summary.TotalTestCases,
			Passed:         doc.Summary.Passed,
			Failed:         doc.Summary.Failed,
			Flaky:          doc.Summary.Flaky,
			Skipped:        doc.Summary.Skipped,
			DurationMS:     int64(doc.Summary.DurationMS),
			Suites:         doc.TestSuites,
		}

		outcome, err := h.runRepo.Insert(c.Request.Context(), run)
		if err != nil {
			slog.Error("failed to store run", "error", err, "project_id", projectID, "run_id", doc.RunID)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to store run",
			})
			return
		}

		if outcome == repositories.OutcomeDuplicate {
			telemetry.RunsDuplicateTotal.WithLabelValues(projectID).Inc()
			c.JSON(http.StatusOK, gin.H{
				"run_id":    doc.RunID,
				"duplicate": true,
			})
			return
		}

		telemetry.RunsIngestedTotal.WithLabelValues(projectID).Inc()
		c.JSON(http.StatusCreated, gin.H{
			"run_id":      doc.RunID,
			"environment": doc.Environment,
			"summary": gin.H{
				"total_test_cases": run.TotalTestCases,
				"passed":           run.Passed,
				"failed":           run.Failed,
				"flaky":            run.Flaky,
				"skipped":          run.Skipped,
				"duration_ms":      run.DurationMS,
			},
			"duplicate": false,
		})
	}
}

// @Summary      Get test run
// @Description  Retrieve a stored run by its client-chosen run_id, scoped to the authenticated project.
// @Tags         Runs
// @Security     Bearer
// @Produce      json
// @Param        run_id  path  string  true  "Run ID (e.g. tr_build_42)"
// @Success      200  {object}  map[string]interface{}  "run: models.TestRun"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "Run not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/runs/{run_id} [get]
// GetRunHandler retrieves a stored run by run_id
// GET /api/v1/runs/:run_id
func (h *Handler) GetRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.GetString(middleware.ProjectIDKey)
		runID := c.Param("run_id")

		run, err := h.runRepo.GetByRunID(c.Request.Context(), projectID, runID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve run",
			})
			return
		}
		if run == nil {
			// Also returned when the run belongs to another project: tenants
			// must not be able to probe each other's run IDs.
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Run not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"run": run,
		})
	}
}

// @Summary      List test runs
// @Description  List the most recent stored runs for the authenticated project.
// @Tags         Runs
// @Security     Bearer
// @Produce      json
// @Param        limit  query  int  false  "Maximum runs to return, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "runs: []models.TestRun, total: int"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/runs [get]
// ListRunsHandler lists recent runs for the authenticated project
// GET /api/v1/runs?limit=20
func (h *Handler) ListRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.GetString(middleware.ProjectIDKey)

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if limit < 1 || limit > 100 {
			limit = 20
		}

		runsList, err := h.runRepo.ListByProject(c.Request.Context(), projectID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list runs",
			})
			return
		}

		total, err := h.runRepo.CountByProject(c.Request.Context(), projectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to count runs",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"runs":  runsList,
			"total": total,
		})
	}
}
