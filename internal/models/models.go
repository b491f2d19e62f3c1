package models

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// User represents a user in the system.
// Online is derived from the presence registry and never persisted.
type User struct {
	ID             string   `json:"id"`
	UserName       string   `json:"userName"`
	DisplayName    string   `json:"displayName"`
	BlockedUserIDs []string `json:"blockedUserIds,omitempty"`
	LastSeen       int64    `json:"lastSeen"` // Unix timestamp (seconds)
	Online         bool     `json:"online"`
}

// Blocks reports whether u has blocked the other user.
func (u User) Blocks(otherID string) bool {
	for _, id := range u.BlockedUserIDs {
		if id == otherID {
			return true
		}
	}
	return false
}

// Message represents a direct message between two users.
type Message struct {
	ID                   string   `json:"id"`
	SenderID             string   `json:"senderId"`
	ReceiverID           string   `json:"receiverId"`
	Content              string   `json:"content"`
	Timestamp            int64    `json:"timestamp"` // Unix timestamp (milliseconds)
	IsRead               bool     `json:"isRead"`
	Edited               bool     `json:"edited"`
	DeletedFor           []string `json:"deletedFor,omitempty"`
	DeletedForEveryoneBy string   `json:"deletedForEveryoneBy,omitempty"`
	// HTML is rendered from Content on the way out, it is never stored.
	HTML string `json:"html,omitempty"`
}

// DeletedForUser reports whether userID removed the message from their own view.
func (m Message) DeletedForUser(userID string) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

// Peer returns the participant that is not userID.
func (m Message) Peer(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// HasParticipant reports whether userID is the sender or the receiver.
func (m Message) HasParticipant(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Contact is an entry of the contact list.
type Contact struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
	LastSeen    int64  `json:"lastSeen"`
}

// BlockStatus describes block visibility between two users.
type BlockStatus struct {
	Blocked        bool `json:"blocked"`
	BlockedByActor bool `json:"blockedByActor"`
}

// PushSubscription is a browser web push subscription.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
