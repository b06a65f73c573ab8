package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/pkg/messaging"
)

const reconnectBackoff = 2 * time.Second

// Adapter bridges the broker's live feed channel to the inbox core: it
// invokes the delivery callback once per inserted record for the subscribed
// owner. The adapter owns reconnection; the core tolerates redelivery after
// a reconnect because its merge is idempotent.
type Adapter struct {
	broker  messaging.Broker
	logger  zerolog.Logger
	backoff time.Duration
}

func NewAdapter(broker messaging.Broker, logger zerolog.Logger) *Adapter {
	return &Adapter{
		broker:  broker,
		logger:  logger,
		backoff: reconnectBackoff,
	}
}

// Run subscribes to the owner's channel and forwards every decoded record to
// deliver until ctx is cancelled. On disconnect it resubscribes after a
// backoff. Records that fail to decode are dropped with a log line; the
// durable copy is still reachable through the batch fetch path.
func (a *Adapter) Run(ctx context.Context, ownerID uuid.UUID, deliver func(*model.NotificationRecord)) {
	channel := messaging.UserChannel(ownerID)

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := a.broker.Subscribe(ctx, channel)
		if err != nil {
			a.logger.Warn().Err(err).Str("channel", channel).Msg("subscribe failed, retrying")
			if !a.sleep(ctx) {
				return
			}
			continue
		}

		a.logger.Debug().Str("channel", channel).Msg("live feed subscribed")

		for payload := range msgs {
			var rec model.NotificationRecord
			if err := json.Unmarshal(payload, &rec); err != nil {
				a.logger.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable record")
				continue
			}
			deliver(&rec)
		}

		// Channel closed under us: either shutdown or a broker hiccup.
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn().Str("channel", channel).Msg("live feed disconnected, resubscribing")
		if !a.sleep(ctx) {
			return
		}
	}
}

func (a *Adapter) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(a.backoff):
		return true
	}
}
