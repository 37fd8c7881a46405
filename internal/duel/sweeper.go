package duel

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/park285/quizduel/internal/obslog"
)

const retryBatch = 100

// RetrySweeper periodically re-runs Finalize for sessions whose persist failed.
type RetrySweeper struct {
	sessions  Sessions
	finalizer *Finalizer
	interval  time.Duration
	sched     gocron.Scheduler
}

func NewRetrySweeper(s Sessions, fin *Finalizer, interval time.Duration) *RetrySweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RetrySweeper{sessions: s, finalizer: fin, interval: interval}
}

func (r *RetrySweeper) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() { r.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule finalize retry: %w", err)
	}
	sched.Start()
	r.sched = sched
	return nil
}

func (r *RetrySweeper) Stop() error {
	if r.sched == nil {
		return nil
	}
	return r.sched.Shutdown()
}

// Sweep runs one retry pass and returns how many sessions were finalized.
func (r *RetrySweeper) Sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	ids, err := r.sessions.PendingRetries(ctx, retryBatch)
	if err != nil {
		obslog.L().Warn("duel_retry_list_error", zap.Error(err))
		return 0
	}
	done := 0
	for _, id := range ids {
		if err := r.finalizer.Finalize(ctx, id); err != nil {
			continue
		}
		done++
	}
	if len(ids) > 0 {
		obslog.L().Info("duel_retry_sweep", zap.Int("pending", len(ids)), zap.Int("finalized", done))
	}
	return done
}
