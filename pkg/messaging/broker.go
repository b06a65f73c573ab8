package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// UserChannel names the live feed channel carrying one user's notification
// inserts. One channel per owner keeps fan-out scoped to the addressee.
func UserChannel(ownerID uuid.UUID) string {
	return fmt.Sprintf("notifications:user:%s", ownerID)
}
