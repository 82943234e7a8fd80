package nudge

import (
	"context"
	"log/slog"
	"time"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/service/dialog"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// Runner periodically nudges open sessions so that turns blocked on a
// pause or a scheduled echo keep progressing without inbound traffic.
type Runner struct {
	store    *store.Store
	engine   *dialog.Engine
	interval time.Duration
}

// NewRunner creates a nudge runner.
func NewRunner(st *store.Store, engine *dialog.Engine, interval time.Duration) *Runner {
	return &Runner{
		store:    st,
		engine:   engine,
		interval: interval,
	}
}

// Run starts the background sweep loop.
func (r *Runner) Run(ctx context.Context) {
	if err := r.Sweep(ctx); err != nil {
		slog.Error("nudge sweep failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				slog.Error("nudge sweep failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("nudge runner stopped")
			return
		}
	}
}

// Sweep nudges every open session once. A failing session does not stop
// the sweep; the first failure is returned after every session has been
// attempted. Outbound delivery is deferred to a single flush at the end
// so one sweep produces one delivery pass.
func (r *Runner) Sweep(ctx context.Context) error {
	open := true

	sessions, err := r.store.ListSessions(ctx, &store.FindSession{Open: &open, NewestFirst: true})
	if err != nil {
		return err
	}

	var firstErr error

	for _, session := range sessions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.engine.ProcessResponse(ctx, session, nil, nil, nil, false); err != nil {
			slog.Error("failed to nudge session", "session_id", session.ID, "error", err)

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := r.engine.FlushPending(ctx); err != nil {
		slog.Error("failed to flush pending messages after sweep", "error", err)

		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
