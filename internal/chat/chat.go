// Package chat implements direct-message conversations on top of the
// message store, the block gate and the presence registry.
//
// Every mutation is committed to the store first; only after a successful
// commit is a realtime event published. Publishing is best effort and never
// changes the result returned to the caller.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"lichka/internal/content"
	"lichka/internal/delivery"
	"lichka/internal/metrics"
	"lichka/internal/models"
)

const DefaultEditWindow = 5 * time.Minute

type Store interface {
	GetUser(id string) (models.User, error)
	ListUsers() ([]models.User, error)
	CreateMessage(senderID, receiverID, content string, delivered bool) (models.Message, error)
	GetMessage(id string) (models.Message, error)
	ListConversation(u1, u2 string) ([]models.Message, error)
	MarkRead(receiverID, senderID string) (int, error)
	DeleteForMe(msgID, userID string) (models.Message, bool, error)
	DeleteForEveryone(msgID, userID string) (models.Message, bool, error)
	EditMessage(msgID, content string, check func(models.Message) error) (models.Message, error)
	UpsertPushSubscription(userID string, sub models.PushSubscription) error
}

type Blocker interface {
	Block(actorID, targetID string) error
	Unblock(actorID, targetID string) error
	Status(actorID, peerID string) (models.BlockStatus, error)
}

type Presence interface {
	IsOnline(userID string) bool
}

type Publisher interface {
	Publish(n delivery.Notification) bool
}

// OfflineNotifier is told about messages whose receiver was not connected.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, msg models.Message) error
}

type Config struct {
	Store    Store
	Blocks   Blocker
	Presence Presence
	Events   Publisher
	// Optional.
	Notifier OfflineNotifier
	Metrics  *metrics.Metrics

	// EditWindow limits how long after sending a message may be edited.
	// Zero means DefaultEditWindow, a negative value disables the limit.
	EditWindow       time.Duration
	MaxMessageLength int
}

type Service struct {
	store    Store
	blocks   Blocker
	presence Presence
	events   Publisher
	notifier OfflineNotifier
	metrics  *metrics.Metrics

	editWindow time.Duration
	maxLength  int
	now        func() time.Time
}

func New(config Config) *Service {
	editWindow := config.EditWindow
	if editWindow == 0 {
		editWindow = DefaultEditWindow
	}
	return &Service{
		store:      config.Store,
		blocks:     config.Blocks,
		presence:   config.Presence,
		events:     config.Events,
		notifier:   config.Notifier,
		metrics:    config.Metrics,
		editWindow: editWindow,
		maxLength:  config.MaxMessageLength,
		now:        time.Now,
	}
}

// Send stores a message from senderID to receiverID and pushes it to the
// receiver. The message is created as read when the receiver is online.
func (s *Service) Send(ctx context.Context, senderID, receiverID, body string) (models.Message, error) {
	if err := validateIDs(senderID, receiverID); err != nil {
		return models.Message{}, err
	}
	if senderID == receiverID {
		return models.Message{}, fmt.Errorf("%w: cannot message yourself", models.ErrValidation)
	}
	if err := content.ValidateContent(body, s.maxLength); err != nil {
		return models.Message{}, err
	}
	if _, err := s.store.GetUser(receiverID); err != nil {
		return models.Message{}, err
	}

	delivered := s.presence.IsOnline(receiverID)
	msg, err := s.store.CreateMessage(senderID, receiverID, body, delivered)
	if err != nil {
		s.metrics.StoreError("create_message")
		return models.Message{}, err
	}
	s.metrics.Stored()
	msg = s.render(msg)

	s.events.Publish(delivery.ToUser(receiverID, models.NewMessage{Message: msg}))
	if !delivered && s.notifier != nil {
		go s.notifyOffline(context.WithoutCancel(ctx), msg)
	}

	slog.Debug("message stored", "message_id", msg.ID, "sender_id", senderID, "receiver_id", receiverID, "delivered", delivered)
	return msg, nil
}

func (s *Service) notifyOffline(ctx context.Context, msg models.Message) {
	if err := s.notifier.NotifyOffline(ctx, msg); err != nil {
		slog.Warn("offline notification failed", "message_id", msg.ID, "receiver_id", msg.ReceiverID, "error", err)
	}
}

// Conversation returns the messages between userID and peerID in creation
// order, without the ones userID deleted for themselves.
func (s *Service) Conversation(userID, peerID string) ([]models.Message, error) {
	if err := validateIDs(userID, peerID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(peerID); err != nil {
		return nil, err
	}

	all, err := s.store.ListConversation(userID, peerID)
	if err != nil {
		s.metrics.StoreError("list_conversation")
		return nil, err
	}

	visible := make([]models.Message, 0, len(all))
	for _, m := range all {
		if m.DeletedForUser(userID) {
			continue
		}
		visible = append(visible, s.render(m))
	}
	return visible, nil
}

// Contacts lists every other user with their presence.
func (s *Service) Contacts(userID string) ([]models.Contact, error) {
	users, err := s.store.ListUsers()
	if err != nil {
		s.metrics.StoreError("list_users")
		return nil, err
	}

	contacts := make([]models.Contact, 0, len(users))
	for _, u := range users {
		if u.ID == userID {
			continue
		}
		contacts = append(contacts, models.Contact{
			ID:          u.ID,
			UserName:    u.UserName,
			DisplayName: u.DisplayName,
			Online:      s.presence.IsOnline(u.ID),
			LastSeen:    u.LastSeen,
		})
	}
	return contacts, nil
}

func (s *Service) Me(userID string) (models.User, error) {
	u, err := s.store.GetUser(userID)
	if err != nil {
		return models.User{}, err
	}
	u.Online = s.presence.IsOnline(userID)
	return u, nil
}

// MarkRead marks everything peerID sent to readerID as read and tells
// peerID about it. Nothing is pushed when there was nothing to mark.
func (s *Service) MarkRead(ctx context.Context, readerID, peerID string) (int, error) {
	if err := validateIDs(readerID, peerID); err != nil {
		return 0, err
	}

	n, err := s.store.MarkRead(readerID, peerID)
	if err != nil {
		s.metrics.StoreError("mark_read")
		return 0, err
	}
	if n > 0 {
		s.events.Publish(delivery.ToUser(peerID, models.MessagesRead{ReaderID: readerID}))
	}
	return n, nil
}

// DeleteForMe hides a message from userID's view and notifies the other
// participant.
func (s *Service) DeleteForMe(ctx context.Context, msgID, userID string) (models.Message, error) {
	if _, err := s.participantMessage(msgID, userID); err != nil {
		return models.Message{}, err
	}

	msg, changed, err := s.store.DeleteForMe(msgID, userID)
	if err != nil {
		s.metrics.StoreError("delete_for_me")
		return models.Message{}, err
	}
	if changed {
		s.events.Publish(delivery.ToUser(msg.Peer(userID), models.MessageDeleted{
			MsgID:     msgID,
			DeletedBy: userID,
		}))
	}
	return s.render(msg), nil
}

// DeleteForEveryone tombstones a message. The first participant to do so
// wins; later calls succeed without changing anything.
func (s *Service) DeleteForEveryone(ctx context.Context, msgID, userID string) (models.Message, error) {
	if _, err := s.participantMessage(msgID, userID); err != nil {
		return models.Message{}, err
	}

	msg, changed, err := s.store.DeleteForEveryone(msgID, userID)
	if err != nil {
		s.metrics.StoreError("delete_for_everyone")
		return models.Message{}, err
	}
	if changed {
		s.events.Publish(delivery.ToUser(msg.Peer(userID), models.MessageDeleted{
			MsgID:       msgID,
			DeletedBy:   userID,
			ForEveryone: true,
		}))
	}
	return s.render(msg), nil
}

// Edit replaces the content of a message. Only the sender may edit, only
// within the edit window and never after the message was deleted for
// everyone. No event is pushed.
func (s *Service) Edit(ctx context.Context, msgID, userID, body string) (models.Message, error) {
	if err := content.ValidateContent(body, s.maxLength); err != nil {
		return models.Message{}, err
	}
	if err := validateIDs(msgID, userID); err != nil {
		return models.Message{}, err
	}

	msg, err := s.store.EditMessage(msgID, body, func(msg models.Message) error {
		return s.checkEdit(msg, userID)
	})
	if err != nil {
		if !errors.Is(err, models.ErrForbidden) && !errors.Is(err, models.ErrConflict) && !errors.Is(err, models.ErrNotFound) {
			s.metrics.StoreError("edit_message")
		}
		return models.Message{}, err
	}
	return s.render(msg), nil
}

// checkEdit runs inside the store transaction, so a concurrent delete for
// everyone either commits before it and is seen here, or after the edit.
func (s *Service) checkEdit(msg models.Message, userID string) error {
	if !msg.HasParticipant(userID) {
		return fmt.Errorf("%w: not a participant of message %s", models.ErrForbidden, msg.ID)
	}
	if msg.SenderID != userID {
		return fmt.Errorf("%w: only the sender can edit a message", models.ErrForbidden)
	}
	if msg.DeletedForEveryoneBy != "" {
		return fmt.Errorf("%w: message was deleted", models.ErrConflict)
	}
	if s.editWindow > 0 && s.now().Sub(time.UnixMilli(msg.Timestamp)) > s.editWindow {
		return fmt.Errorf("%w: edit window of %s has passed", models.ErrForbidden, s.editWindow)
	}
	return nil
}

func (s *Service) Block(ctx context.Context, actorID, targetID string) error {
	if err := validateIDs(actorID, targetID); err != nil {
		return err
	}
	if err := s.blocks.Block(actorID, targetID); err != nil {
		return err
	}
	s.events.Publish(delivery.ToUser(targetID, models.BlockChanged{ActorID: actorID, Blocked: true}))
	return nil
}

func (s *Service) Unblock(ctx context.Context, actorID, targetID string) error {
	if err := validateIDs(actorID, targetID); err != nil {
		return err
	}
	if err := s.blocks.Unblock(actorID, targetID); err != nil {
		return err
	}
	s.events.Publish(delivery.ToUser(targetID, models.BlockChanged{ActorID: actorID, Blocked: false}))
	return nil
}

// BlockStatus is advisory; Send does not consult it.
func (s *Service) BlockStatus(actorID, peerID string) (models.BlockStatus, error) {
	if err := validateIDs(actorID, peerID); err != nil {
		return models.BlockStatus{}, err
	}
	return s.blocks.Status(actorID, peerID)
}

// SubscribePush stores the caller's web push subscription.
func (s *Service) SubscribePush(userID string, sub models.PushSubscription) error {
	u, err := url.Parse(sub.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: push endpoint must be an https URL", models.ErrValidation)
	}
	if sub.P256dh == "" || sub.Auth == "" {
		return fmt.Errorf("%w: push subscription keys are required", models.ErrValidation)
	}
	return s.store.UpsertPushSubscription(userID, sub)
}

func (s *Service) participantMessage(msgID, userID string) (models.Message, error) {
	if err := validateIDs(msgID, userID); err != nil {
		return models.Message{}, err
	}
	msg, err := s.store.GetMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	if !msg.HasParticipant(userID) {
		return models.Message{}, fmt.Errorf("%w: not a participant of message %s", models.ErrForbidden, msgID)
	}
	return msg, nil
}

func (s *Service) render(msg models.Message) models.Message {
	html, err := content.Render(msg.Content)
	if err != nil {
		slog.Warn("failed to render message", "message_id", msg.ID, "error", err)
		return msg
	}
	msg.HTML = html
	return msg
}

func validateIDs(ids ...string) error {
	for _, id := range ids {
		if err := content.ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}
