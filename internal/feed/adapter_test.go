package feed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-api/internal/model"
)

type fakeBroker struct {
	mu         sync.Mutex
	channels   []chan []byte
	subscribed []string
}

func (b *fakeBroker) Publish(_ context.Context, _ string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.channels {
		ch <- payload
	}
	return nil
}

func (b *fakeBroker) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 10)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, ch)
	b.subscribed = append(b.subscribed, channel)
	return ch, nil
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) current() chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[len(b.channels)-1]
}

func (b *fakeBroker) subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

func TestAdapterDeliversDecodedRecords(t *testing.T) {
	broker := &fakeBroker{}
	adapter := NewAdapter(broker, zerolog.Nop())
	adapter.backoff = time.Millisecond

	owner := uuid.New()
	delivered := make(chan *model.NotificationRecord, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		adapter.Run(ctx, owner, func(rec *model.NotificationRecord) { delivered <- rec })
	}()

	require.Eventually(t, func() bool { return broker.subscriptions() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "notifications:user:"+owner.String(), broker.subscribed[0])

	rec := &model.NotificationRecord{
		ID:     uuid.New(),
		UserID: owner,
		Title:  "hello",
	}
	require.NoError(t, broker.Publish(ctx, "", rec))

	select {
	case got := <-delivered:
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "hello", got.Title)
	case <-time.After(time.Second):
		t.Fatal("record was not delivered")
	}

	// Garbage on the channel is dropped, not fatal.
	broker.current() <- []byte("{not json")
	require.NoError(t, broker.Publish(ctx, "", rec))
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("adapter stopped after a bad payload")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("adapter did not stop on cancellation")
	}
}

func TestAdapterResubscribesAfterDisconnect(t *testing.T) {
	broker := &fakeBroker{}
	adapter := NewAdapter(broker, zerolog.Nop())
	adapter.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go adapter.Run(ctx, uuid.New(), func(*model.NotificationRecord) {})

	require.Eventually(t, func() bool { return broker.subscriptions() == 1 }, time.Second, time.Millisecond)

	// Simulated broker disconnect: the message channel closes.
	close(broker.current())

	require.Eventually(t, func() bool { return broker.subscriptions() == 2 }, time.Second, time.Millisecond)
}
