package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/pkg/messaging"
)

var (
	dispatchedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_dispatched_total",
		Help: "The total number of dispatched outbox events",
	})
	failedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "The total number of failed outbox events",
	})
	dispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_dispatch_latency_seconds",
		Help:    "Time between event creation and dispatch",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

type DispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// Dispatcher drains the outbox and fans events out to each owner's live
// feed channel. Failed publishes are retried with backoff and rescheduled
// through the outbox so a broker outage never loses a notification.
type Dispatcher struct {
	outbox repository.OutboxRepository
	broker messaging.Broker
	logger zerolog.Logger
	cfg    DispatcherConfig
}

func NewDispatcher(outbox repository.OutboxRepository, broker messaging.Broker, logger zerolog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Dispatcher{
		outbox: outbox,
		broker: broker,
		logger: logger,
		cfg:    cfg,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info().Msg("outbox dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("outbox dispatcher shutting down")
			return
		case <-ticker.C:
			if err := d.dispatchBatch(ctx); err != nil {
				d.logger.Error().Err(err).Msg("failed to dispatch batch")
			}
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) error {
	events, err := d.outbox.GetPendingEvents(ctx, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending events: %w", err)
	}

	for _, evt := range events {
		if err := d.dispatch(ctx, evt); err != nil {
			failedEvents.Inc()
			d.logger.Error().
				Err(err).
				Str("event_id", evt.ID.String()).
				Int("retry_count", evt.RetryCount).
				Msg("failed to dispatch event")

			var retryAt *time.Time
			if evt.RetryCount+1 < d.cfg.MaxRetries {
				at := time.Now().Add(d.cfg.RetryDelay << evt.RetryCount)
				retryAt = &at
			}
			if markErr := d.outbox.MarkFailed(ctx, evt.ID, err.Error(), retryAt); markErr != nil {
				d.logger.Error().Err(markErr).Str("event_id", evt.ID.String()).Msg("failed to mark event failed")
			}
			continue
		}

		if err := d.outbox.MarkProcessed(ctx, evt.ID); err != nil {
			// The publish went out; the merge on the client side
			// absorbs the duplicate on the next poll.
			d.logger.Error().Err(err).Str("event_id", evt.ID.String()).Msg("failed to mark event processed")
			continue
		}

		dispatchedEvents.Inc()
		dispatchLatency.Observe(time.Since(evt.CreatedAt).Seconds())
	}

	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, evt *model.OutboxEvent) error {
	var rec model.NotificationRecord
	if err := json.Unmarshal(evt.Payload, &rec); err != nil {
		return fmt.Errorf("undecodable payload: %w", err)
	}
	return d.broker.Publish(ctx, messaging.UserChannel(evt.UserID), &rec)
}
