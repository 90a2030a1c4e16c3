// Package jobs contains background maintenance loops that run alongside the
// HTTP server. Each job owns a ticker loop with a Stop channel and exits when
// the server's root context is cancelled.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/flakewatch/flakewatch/internal/db/repositories"
	"github.com/flakewatch/flakewatch/internal/telemetry"
)

// StaleTokenNotifier periodically scans for API tokens that have gone unused
// beyond a maximum age and surfaces them to operators. Unused CI credentials
// are a standing liability: the project they belong to is usually
// decommissioned, but the token still authenticates. The job only reports
// (structured log + gauge); revocation stays a human decision through the
// token deletion endpoint.
type StaleTokenNotifier struct {
	tokenRepo *repositories.TokenRepository
	interval  time.Duration
	maxAge    time.Duration
	stopChan  chan struct{}
}

// NewStaleTokenNotifier creates a new StaleTokenNotifier. interval controls
// how often the sweep runs; maxAge is how long a token may go unused before it
// is reported. Non-positive values fall back to 24h and 90 days.
func NewStaleTokenNotifier(tokenRepo *repositories.TokenRepository, interval, maxAge time.Duration) *StaleTokenNotifier {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if maxAge <= 0 {
		maxAge = 90 * 24 * time.Hour
	}
	return &StaleTokenNotifier{
		tokenRepo: tokenRepo,
		interval:  interval,
		maxAge:    maxAge,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background sweep loop. It runs an initial sweep
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop() is called.
func (n *StaleTokenNotifier) Start(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	slog.Info("stale token notifier started",
		"check_interval", n.interval,
		"max_age", n.maxAge)

	// Run once immediately on startup
	n.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			n.runSweep(ctx)
		case <-n.stopChan:
			slog.Info("stale token notifier stopped")
			return
		case <-ctx.Done():
			slog.Info("stale token notifier context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (n *StaleTokenNotifier) Stop() {
	close(n.stopChan)
}

// runSweep queries for stale tokens, logs each one, and updates the gauge.
func (n *StaleTokenNotifier) runSweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-n.maxAge)

	tokens, err := n.tokenRepo.FindStale(ctx, cutoff)
	if err != nil {
		slog.Error("stale token notifier: failed to query stale tokens", "error", err)
		return
	}

	telemetry.StaleTokensGauge.Set(float64(len(tokens)))

	if len(tokens) == 0 {
		return
	}

	for _, token := range tokens {
		lastUsed := "never"
		if token.LastUsedAt != nil {
			lastUsed = token.LastUsedAt.UTC().Format(time.RFC3339)
		}
		slog.Warn("stale API token",
			"token_id", token.ID,
			"project_id", token.ProjectID,
			"name", token.Name,
			"prefix", token.TokenPrefix,
			"last_used", lastUsed,
			"created_at", token.CreatedAt.UTC().Format(time.RFC3339))
	}
}
