// Package delivery pushes committed state changes to connected peers.
//
// Producers publish notifications onto a buffered channel and return
// immediately; a single consumer goroutine resolves the recipients in the
// presence registry and queues the encoded event on their handles. Delivery
// is at most once: nothing is retried and offline peers are skipped.
package delivery

import (
	"context"
	"log/slog"

	"lichka/internal/metrics"
	"lichka/internal/models"
	"lichka/internal/presence"
)

const DefaultBuffer = 256

// Locator resolves recipients of a notification.
type Locator interface {
	Lookup(userID string) (*presence.Handle, bool)
	Handles() []*presence.Handle
}

// Notification addresses an event to one user, or to every connected user
// when To is empty.
type Notification struct {
	To    string
	Event models.Event
}

func ToUser(userID string, ev models.Event) Notification {
	return Notification{To: userID, Event: ev}
}

func ToAll(ev models.Event) Notification {
	return Notification{Event: ev}
}

type Broadcaster struct {
	registry Locator
	queue    chan Notification
	metrics  *metrics.Metrics
}

func NewBroadcaster(registry Locator, buffer int, m *metrics.Metrics) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		registry: registry,
		queue:    make(chan Notification, buffer),
		metrics:  m,
	}
}

// Publish hands n to the consumer without blocking. It returns false when
// the queue is full and the notification was dropped.
func (b *Broadcaster) Publish(n Notification) bool {
	name := string(n.Event.Type())
	select {
	case b.queue <- n:
		b.metrics.Published(name)
		return true
	default:
		b.metrics.Dropped(name, "queue_full")
		slog.Warn("broadcast queue full, dropping event", "event", name, "to", n.To)
		return false
	}
}

// Run consumes published notifications until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		select {
		case n := <-b.queue:
			b.deliver(n)
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Broadcaster) deliver(n Notification) {
	name := string(n.Event.Type())
	msg, err := models.EncodeEvent(n.Event)
	if err != nil {
		slog.Error("failed to encode event", "event", name, "error", err)
		b.metrics.Dropped(name, "encode")
		return
	}

	if n.To == "" {
		for _, h := range b.registry.Handles() {
			b.push(h, name, msg)
		}
		return
	}

	h, ok := b.registry.Lookup(n.To)
	if !ok {
		b.metrics.Dropped(name, "offline")
		return
	}
	b.push(h, name, msg)
}

func (b *Broadcaster) push(h *presence.Handle, name string, msg models.ServerMessage) {
	if !h.Send(msg) {
		slog.Debug("peer unreachable, dropping event", "event", name, "handle", h.String())
		b.metrics.Dropped(name, "unreachable")
		return
	}
	b.metrics.Delivered(name)
}
