package pull

import (
	"context"
	"log/slog"
	"time"

	"github.com/gerhard-ee/datapull/internal/state"
)

// recorder keeps the run state up to date. Store failures are logged and
// otherwise ignored so they never change the outcome of a run.
type recorder struct {
	states  state.Manager
	logger  *slog.Logger
	state   *state.State
	created bool
}

func (r *recorder) start(ctx context.Context) {
	if r.states == nil {
		return
	}

	now := time.Now().UTC()
	r.state.Status = state.StatusRunning
	r.state.StartedAt = now
	r.state.LastUpdated = now

	if err := r.states.CreateState(ctx, r.state); err != nil {
		r.logger.Warn("Failed to record run", slog.Any("err", err))
		return
	}
	r.created = true
}

func (r *recorder) complete(ctx context.Context, rows int) {
	r.state.Status = state.StatusCompleted
	r.state.Rows = int64(rows)
	r.update(ctx)
}

func (r *recorder) fail(ctx context.Context, err error) {
	r.state.Status = state.StatusFailed
	r.state.Error = err.Error()
	r.update(ctx)
}

func (r *recorder) update(ctx context.Context) {
	if r.states == nil || !r.created {
		return
	}

	r.state.LastUpdated = time.Now().UTC()
	if err := r.states.UpdateState(context.WithoutCancel(ctx), r.state); err != nil {
		r.logger.Warn("Failed to update run state", slog.String("status", r.state.Status), slog.Any("err", err))
	}
}
