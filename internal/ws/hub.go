package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lichka/internal/delivery"
	"lichka/internal/metrics"
	"lichka/internal/models"
	"lichka/internal/presence"
)

const DefaultConnectionBuffer = 64

type Registry interface {
	Register(h *presence.Handle) *presence.Handle
	Unregister(userID, handleID string) bool
	OnlineUserIDs() []string
}

type Publisher interface {
	Publish(n delivery.Notification) bool
}

// ChatService is the part of the chat core reachable over the socket.
type ChatService interface {
	Send(ctx context.Context, senderID, receiverID, body string) (models.Message, error)
	MarkRead(ctx context.Context, readerID, peerID string) (int, error)
}

type LastSeenStore interface {
	SetLastSeen(id string, lastSeen int64) error
}

type HubConfig struct {
	Registry Registry
	Events   Publisher
	Chat     ChatService
	Users    LastSeenStore
	Metrics  *metrics.Metrics
	// ConnectionBuffer is the number of pushes a slow connection may lag
	// behind before further pushes to it are dropped.
	ConnectionBuffer int
}

// Hub ties realtime connections to presence and to the chat service.
type Hub struct {
	registry Registry
	events   Publisher
	chat     ChatService
	users    LastSeenStore
	metrics  *metrics.Metrics
	buffer   int
	now      func() time.Time

	// onlineMu orders online list snapshots with their publication, so the
	// last list queued always reflects the latest registry state.
	onlineMu sync.Mutex
}

func NewHub(cfg HubConfig) *Hub {
	buffer := cfg.ConnectionBuffer
	if buffer <= 0 {
		buffer = DefaultConnectionBuffer
	}
	return &Hub{
		registry: cfg.Registry,
		events:   cfg.Events,
		chat:     cfg.Chat,
		users:    cfg.Users,
		metrics:  cfg.Metrics,
		buffer:   buffer,
		now:      time.Now,
	}
}

// Join registers a new connection of userID. An older connection of the
// same user is closed: the newest connection receives all pushes.
func (h *Hub) Join(userID string) *presence.Handle {
	handle := presence.NewHandle(userID, h.buffer)
	if prev := h.registry.Register(handle); prev != nil {
		slog.Info("connection replaced", "user_id", userID, "old", prev.ID, "new", handle.ID)
		prev.Close()
	}
	slog.Debug("user connected", "user_id", userID, "connection_id", handle.ID)
	h.broadcastOnline()
	return handle
}

// Leave tears down a connection. Presence and last seen are only touched if
// handle is still the registered one, a replaced connection leaves quietly.
func (h *Hub) Leave(handle *presence.Handle) {
	defer handle.Close()

	if !h.registry.Unregister(handle.UserID, handle.ID) {
		return
	}
	if err := h.users.SetLastSeen(handle.UserID, h.now().Unix()); err != nil {
		slog.Warn("failed to update last seen", "user_id", handle.UserID, "error", err)
	}
	slog.Debug("user disconnected", "user_id", handle.UserID, "connection_id", handle.ID)
	h.broadcastOnline()
}

func (h *Hub) broadcastOnline() {
	h.onlineMu.Lock()
	defer h.onlineMu.Unlock()

	ids := h.registry.OnlineUserIDs()
	h.metrics.SetOnline(len(ids))
	h.events.Publish(delivery.ToAll(models.OnlineUsers{UserIDs: ids}))
}

// Dispatch executes a client frame on behalf of userID and returns the
// direct reply for the sender, or nil when there is nothing to reply.
func (h *Hub) Dispatch(ctx context.Context, userID string, msg models.ClientMessage) *models.ServerMessage {
	if err := msg.Validate(); err != nil {
		return h.reply(models.ErrorEvent{TempID: msg.TempID, Error: err.Error()})
	}

	switch msg.Type {
	case models.ClientMessageTypeSend:
		stored, err := h.chat.Send(ctx, userID, msg.ReceiverID, msg.Content)
		if err != nil {
			return h.reply(models.ErrorEvent{TempID: msg.TempID, Error: publicError(err)})
		}
		return h.reply(models.MessageAck{TempID: msg.TempID, Message: stored})
	case models.ClientMessageTypeRead:
		if _, err := h.chat.MarkRead(ctx, userID, msg.PeerID); err != nil {
			return h.reply(models.ErrorEvent{Error: publicError(err)})
		}
	}
	return nil
}

func (h *Hub) reply(ev models.Event) *models.ServerMessage {
	msg, err := models.EncodeEvent(ev)
	if err != nil {
		slog.Error("failed to encode reply", "event", ev.Type(), "error", err)
		return nil
	}
	return &msg
}

// publicError hides storage details of unexpected failures from clients.
func publicError(err error) string {
	for _, known := range []error{models.ErrValidation, models.ErrNotFound, models.ErrConflict, models.ErrForbidden} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	slog.Error("chat operation failed", "error", err)
	return "internal error"
}
