package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/radiant-ai/radiant/internal/notify"
	"github.com/radiant-ai/radiant/internal/storage"
)

// Listener is the slice of storage.DB the broker reads notifications from.
type Listener interface {
	Listen(ctx context.Context, channel string) error
	WaitForNotification(ctx context.Context) (channel, payload string, err error)
}

// Broker fans out Postgres LISTEN/NOTIFY events to SSE subscribers. Each
// subscriber only sees events for its own tenant.
type Broker struct {
	db     Listener
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]string // channel -> tenant
}

// NewBroker creates a new SSE broker. Call Start to begin listening.
func NewBroker(db Listener, logger *slog.Logger) *Broker {
	return &Broker{
		db:          db,
		logger:      logger,
		subscribers: make(map[chan []byte]string),
	}
}

// Channels lists the Postgres channels the broker listens on.
var Channels = []string{
	storage.ChannelCheckpoints,
	storage.ChannelOversight,
	storage.ChannelGovernance,
	storage.ChannelTierAlerts,
}

// Start listens on every event channel. It blocks until ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	for _, ch := range Channels {
		if err := b.db.Listen(ctx, ch); err != nil {
			b.logger.Error("broker: listen", "channel", ch, "error", err)
			return
		}
	}
	b.logger.Info("broker: listening for notifications", "channels", Channels)

	for {
		_, payload, err := b.db.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("broker: notification error, retrying", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		b.dispatch(payload)
	}
}

// dispatch routes one NOTIFY payload to the subscribers of its tenant.
func (b *Broker) dispatch(payload string) {
	var e notify.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		b.logger.Warn("broker: malformed event payload", "error", err)
		return
	}
	b.broadcast(e.TenantID, formatSSE(string(e.Kind), payload))
}

// Subscribe returns a channel that receives SSE-formatted events for tenantID.
// The caller must call Unsubscribe when done.
func (b *Broker) Subscribe(tenantID string) chan []byte {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subscribers[ch] = tenantID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// broadcast sends an event to the tenant's subscribers. A subscriber whose
// buffer is full misses the event rather than blocking the others.
func (b *Broker) broadcast(tenantID string, event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, t := range b.subscribers {
		if t != tenantID {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
