package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/notify-api/internal/repository"
)

// CleanupWorker trims processed outbox rows past the retention window.
type CleanupWorker struct {
	outbox        repository.OutboxRepository
	logger        zerolog.Logger
	retentionDays int
	interval      time.Duration
}

func NewCleanupWorker(outbox repository.OutboxRepository, logger zerolog.Logger, retentionDays int, interval time.Duration) *CleanupWorker {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupWorker{
		outbox:        outbox,
		logger:        logger,
		retentionDays: retentionDays,
		interval:      interval,
	}
}

func (w *CleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -w.retentionDays)
			rows, err := w.outbox.DeleteProcessedBefore(ctx, cutoff)
			if err != nil {
				w.logger.Error().Err(err).Msg("failed to clean up outbox")
				continue
			}
			if rows > 0 {
				w.logger.Info().Int64("rows", rows).Time("cutoff", cutoff).Msg("outbox cleaned up")
			}
		}
	}
}
