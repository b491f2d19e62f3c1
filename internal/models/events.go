package models

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventOnlineUsers       EventType = "getOnlineUsers"
	EventNewMessage        EventType = "newMessage"
	EventMessagesRead      EventType = "messagesRead"
	EventDeleteForMe       EventType = "deleteForMe"
	EventDeleteForEveryone EventType = "deleteForEveryone"
	EventBlocked           EventType = "blocked"
	EventUnblocked         EventType = "unblocked"
	EventMessageAck        EventType = "messageAck"
	EventError             EventType = "error"
)

// Event is a realtime notification pushed to a connected client.
// The set of implementations is closed: only types in this file satisfy it.
type Event interface {
	Type() EventType
	payload() any
}

// OnlineUsers carries the full list of connected user ids.
type OnlineUsers struct {
	UserIDs []string
}

func (OnlineUsers) Type() EventType { return EventOnlineUsers }

func (e OnlineUsers) payload() any {
	if e.UserIDs == nil {
		return []string{}
	}
	return e.UserIDs
}

type NewMessage struct {
	Message Message
}

func (NewMessage) Type() EventType { return EventNewMessage }
func (e NewMessage) payload() any { return e.Message }

// MessagesRead tells a sender that ReaderID has read their messages.
type MessagesRead struct {
	ReaderID string
}

func (MessagesRead) Type() EventType { return EventMessagesRead }
func (e MessagesRead) payload() any { return e.ReaderID }

// MessageDeleted is either a delete-for-me or a delete-for-everyone notice.
type MessageDeleted struct {
	MsgID       string `json:"msgId"`
	DeletedBy   string `json:"deletedBy"`
	ForEveryone bool   `json:"-"`
}

func (e MessageDeleted) Type() EventType {
	if e.ForEveryone {
		return EventDeleteForEveryone
	}
	return EventDeleteForMe
}

func (e MessageDeleted) payload() any { return e }

// BlockChanged notifies the target that ActorID blocked or unblocked them.
type BlockChanged struct {
	ActorID string
	Blocked bool
}

func (e BlockChanged) Type() EventType {
	if e.Blocked {
		return EventBlocked
	}
	return EventUnblocked
}

func (e BlockChanged) payload() any { return e.ActorID }

// MessageAck confirms a message sent over the websocket.
type MessageAck struct {
	TempID  string  `json:"tempId"`
	Message Message `json:"message"`
}

func (MessageAck) Type() EventType { return EventMessageAck }
func (e MessageAck) payload() any { return e }

// ErrorEvent reports a rejected client frame.
type ErrorEvent struct {
	TempID string `json:"tempId,omitempty"`
	Error  string `json:"error"`
}

func (ErrorEvent) Type() EventType { return EventError }
func (e ErrorEvent) payload() any { return e }

// ServerMessage is the wire envelope of an Event.
type ServerMessage struct {
	Event   EventType       `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func EncodeEvent(ev Event) (ServerMessage, error) {
	data, err := json.Marshal(ev.payload())
	if err != nil {
		return ServerMessage{}, fmt.Errorf("failed to encode %s payload: %w", ev.Type(), err)
	}
	return ServerMessage{Event: ev.Type(), Payload: data}, nil
}

// Decode turns the envelope back into a typed Event, rejecting unknown
// event names and payloads that miss required fields.
func (m ServerMessage) Decode() (Event, error) {
	var ev Event
	switch m.Event {
	case EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(m.Payload, &ids); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrValidation, m.Event, err)
		}
		ev = OnlineUsers{UserIDs: ids}
	case EventNewMessage:
		var msg Message
		if err := json.Unmarshal(m.Payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrValidation, m.Event, err)
		}
		if msg.ID == "" || msg.SenderID == "" || msg.ReceiverID == "" {
			return nil, fmt.Errorf("%w: %s payload misses ids", ErrValidation, m.Event)
		}
		ev = NewMessage{Message: msg}
	case EventMessagesRead, EventBlocked, EventUnblocked:
		var id string
		if err := json.Unmarshal(m.Payload, &id); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrValidation, m.Event, err)
		}
		if id == "" {
			return nil, fmt.Errorf("%w: %s payload is empty", ErrValidation, m.Event)
		}
		switch m.Event {
		case EventMessagesRead:
			ev = MessagesRead{ReaderID: id}
		default:
			ev = BlockChanged{ActorID: id, Blocked: m.Event == EventBlocked}
		}
	case EventDeleteForMe, EventDeleteForEveryone:
		var del MessageDeleted
		if err := json.Unmarshal(m.Payload, &del); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrValidation, m.Event, err)
		}
		if del.MsgID == "" || del.DeletedBy == "" {
			return nil, fmt.Errorf("%w: %s payload misses ids", ErrValidation, m.Event)
		}
		del.ForEveryone = m.Event == EventDeleteForEveryone
		ev = del
	case EventMessageAck:
		var ack MessageAck
		if err := json.Unmarshal(m.Payload, &ack); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrValidation, m.Event, err)
		}
		ev = ack
	case EventError:
		var e ErrorEvent
		if err := json.Unmarshal(m.Payload, &e); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrValidation, m.Event, err)
		}
		ev = e
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrValidation, m.Event)
	}
	return ev, nil
}

type ClientMessageType string

const (
	ClientMessageTypeSend ClientMessageType = "sendMessage"
	ClientMessageTypeRead ClientMessageType = "markRead"
)

// ClientMessage represents a frame sent from the client to the server.
type ClientMessage struct {
	Type       ClientMessageType `json:"type"`
	TempID     string            `json:"tempId,omitempty"`
	ReceiverID string            `json:"receiverId,omitempty"`
	PeerID     string            `json:"peerId,omitempty"`
	Content    string            `json:"content,omitempty"`
}

// Validate checks the frame shape before it is handed to the chat service.
// Content rules are enforced by the service itself.
func (m ClientMessage) Validate() error {
	switch m.Type {
	case ClientMessageTypeSend:
		if m.ReceiverID == "" {
			return fmt.Errorf("%w: receiverId is required", ErrValidation)
		}
	case ClientMessageTypeRead:
		if m.PeerID == "" {
			return fmt.Errorf("%w: peerId is required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrValidation, m.Type)
	}
	return nil
}
