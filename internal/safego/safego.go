// Package safego provides a panic-recovering goroutine launcher for
// FlakeWatch's fire-and-forget background work.
package safego

import "log/slog"

// Go launches fn in a new goroutine. If fn panics, the panic is recovered and
// logged rather than crashing the server. Used wherever work is detached from
// a request (async token last-used updates, audit entry shipping, the
// stale-token sweep loop) so a panic there cannot take an ingest request down
// or silently kill a background loop.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
