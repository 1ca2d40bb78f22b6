// Package worker holds the periodic jobs run by cmd/worker.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Completer is the part of the appointment service the sweep drives.
type Completer interface {
	CompleteDue(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// CompletionSweeper completes confirmed appointments whose date passed more
// than grace ago.
type CompletionSweeper struct {
	appointments Completer
	interval     time.Duration
	grace        time.Duration
	batch        int
	now          func() time.Time
}

func NewCompletionSweeper(appointments Completer, interval, grace time.Duration, batch int) *CompletionSweeper {
	if batch <= 0 {
		batch = 100
	}
	return &CompletionSweeper{
		appointments: appointments,
		interval:     interval,
		grace:        grace,
		batch:        batch,
		now:          time.Now,
	}
}

func (w *CompletionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("Starting completion sweeper")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down completion sweeper")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("Completion sweep failed")
			}
		}
	}
}

// Sweep completes due appointments in batches until none are left.
func (w *CompletionSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.grace)
	total := 0
	for {
		n, err := w.appointments.CompleteDue(ctx, cutoff, w.batch)
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to complete due appointments: %w", err)
		}
		if n < w.batch || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		log.Info().Int("completed", total).Time("cutoff", cutoff).Msg("Completed past appointments")
	}
	return total, nil
}

// Cleaner is implemented by the outbox processor.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

type OutboxCleanupWorker struct {
	cleaner  Cleaner
	interval time.Duration
}

func NewOutboxCleanupWorker(cleaner Cleaner, interval time.Duration) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{cleaner: cleaner, interval: interval}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := w.cleaner.Cleanup(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Outbox cleanup failed")
				continue
			}
			if removed > 0 {
				log.Info().Int64("removed", removed).Msg("Cleaned up processed outbox events")
			}
		}
	}
}
