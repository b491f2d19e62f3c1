package storage

import (
	"fmt"
	"slices"
	"sort"

	"lichka/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// ConversationID returns the deterministic bucket name of a DM between two users.
func ConversationID(u1, u2 string) string {
	ids := []string{u1, u2}
	sort.Strings(ids)
	return fmt.Sprintf("dm_%s_%s", ids[0], ids[1])
}

// CreateMessage stores a new unread (or delivered) message at the end of the
// conversation between sender and receiver.
func (s *BboltStorage) CreateMessage(senderID, receiverID, content string, delivered bool) (models.Message, error) {
	if senderID == "" || receiverID == "" {
		return models.Message{}, fmt.Errorf("%w: sender and receiver are required", models.ErrValidation)
	}
	if senderID == receiverID {
		return models.Message{}, fmt.Errorf("%w: sender and receiver must differ", models.ErrValidation)
	}

	dbMessage := DBMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  s.now().UnixMilli(),
		IsRead:     delivered,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		chatID := ConversationID(senderID, receiverID)
		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(chatID))
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		dbMessage.Seq = seq

		if err := putMessage(chatBucket, &dbMessage); err != nil {
			return err
		}

		ref := DBMessageRef{MessageID: dbMessage.ID, ChatID: chatID, Seq: seq}
		data, err := ref.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMessageIndex).Put(ref.Key(), data)
	})
	if err != nil {
		return models.Message{}, err
	}

	return toMessage(dbMessage), nil
}

// GetMessage returns a single message by id.
func (s *BboltStorage) GetMessage(id string) (models.Message, error) {
	var msg models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket, key, err := locateMessage(tx, id)
		if err != nil {
			return err
		}
		var dbMessage DBMessage
		if err := dbMessage.UnmarshalBinary(chatBucket.Get(key)); err != nil {
			return fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msg = toMessage(dbMessage)
		return nil
	})
	return msg, err
}

// ListConversation returns every stored message between two users in
// creation order, tombstones and soft deleted ones included.
func (s *BboltStorage) ListConversation(u1, u2 string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(ConversationID(u1, u2)))
		if chatBucket == nil {
			return nil // No messages for this chat
		}
		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMessage DBMessage
			if err := dbMessage.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, toMessage(dbMessage))
			return nil
		})
	})
	return messages, err
}

// MarkRead flips every unread message from senderID to receiverID to read
// and returns how many messages changed.
func (s *BboltStorage) MarkRead(receiverID, senderID string) (int, error) {
	updated := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(ConversationID(receiverID, senderID)))
		if chatBucket == nil {
			return nil
		}

		var changed []*DBMessage
		err := chatBucket.ForEach(func(k, v []byte) error {
			var dbMessage DBMessage
			if err := dbMessage.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMessage.SenderID == senderID && dbMessage.ReceiverID == receiverID && !dbMessage.IsRead {
				dbMessage.IsRead = true
				changed = append(changed, &dbMessage)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// bbolt forbids writes while iterating with ForEach.
		for _, m := range changed {
			if err := putMessage(chatBucket, m); err != nil {
				return err
			}
		}
		updated = len(changed)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// DeleteForMe hides the message from userID's own view. Repeated calls are
// no-ops and report changed=false.
func (s *BboltStorage) DeleteForMe(msgID, userID string) (models.Message, bool, error) {
	return s.updateMessage(msgID, func(m *DBMessage) (bool, error) {
		if slices.Contains(m.DeletedFor, userID) {
			return false, nil
		}
		m.DeletedFor = append(m.DeletedFor, userID)
		return true, nil
	})
}

// DeleteForEveryone tombstones the message. Only the first caller wins,
// changed reports whether this call set the tombstone.
func (s *BboltStorage) DeleteForEveryone(msgID, userID string) (models.Message, bool, error) {
	return s.updateMessage(msgID, func(m *DBMessage) (bool, error) {
		if m.DeletedForEveryoneBy != "" {
			return false, nil
		}
		m.DeletedForEveryoneBy = userID
		return true, nil
	})
}

// EditMessage replaces the content and marks the message as edited.
// It performs no ownership checks itself. A non-nil check sees the stored
// message in the same transaction as the write; an error from it aborts the
// edit and is returned as is.
func (s *BboltStorage) EditMessage(msgID, content string, check func(models.Message) error) (models.Message, error) {
	msg, _, err := s.updateMessage(msgID, func(m *DBMessage) (bool, error) {
		if check != nil {
			if err := check(toMessage(*m)); err != nil {
				return false, err
			}
		}
		m.Content = content
		m.Edited = true
		return true, nil
	})
	return msg, err
}

func (s *BboltStorage) updateMessage(msgID string, fn func(m *DBMessage) (bool, error)) (models.Message, bool, error) {
	var (
		msg     models.Message
		changed bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		chatBucket, key, err := locateMessage(tx, msgID)
		if err != nil {
			return err
		}
		var dbMessage DBMessage
		if err := dbMessage.UnmarshalBinary(chatBucket.Get(key)); err != nil {
			return fmt.Errorf("failed to unmarshal message: %w", err)
		}
		if changed, err = fn(&dbMessage); err != nil {
			return err
		}
		if changed {
			if err := putMessage(chatBucket, &dbMessage); err != nil {
				return err
			}
		}
		msg = toMessage(dbMessage)
		return nil
	})
	if err != nil {
		return models.Message{}, false, err
	}
	return msg, changed, nil
}

func locateMessage(tx *bbolt.Tx, msgID string) (*bbolt.Bucket, []byte, error) {
	data := tx.Bucket(bucketMessageIndex).Get([]byte(msgID))
	if data == nil {
		return nil, nil, fmt.Errorf("message %s: %w", msgID, models.ErrNotFound)
	}
	var ref DBMessageRef
	if err := ref.UnmarshalBinary(data); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal message ref: %w", err)
	}
	chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(ref.ChatID))
	if chatBucket == nil {
		return nil, nil, fmt.Errorf("chat %s for message %s: %w", ref.ChatID, msgID, models.ErrNotFound)
	}
	key := seqKey(ref.Seq)
	if chatBucket.Get(key) == nil {
		return nil, nil, fmt.Errorf("message %s: %w", msgID, models.ErrNotFound)
	}
	return chatBucket, key, nil
}

func putMessage(b *bbolt.Bucket, m *DBMessage) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := b.Put(m.Key(), data); err != nil {
		return fmt.Errorf("failed to put message: %w", err)
	}
	return nil
}

func toMessage(m DBMessage) models.Message {
	return models.Message{
		ID:                   m.ID,
		SenderID:             m.SenderID,
		ReceiverID:           m.ReceiverID,
		Content:              m.Content,
		Timestamp:            m.Timestamp,
		IsRead:               m.IsRead,
		Edited:               m.Edited,
		DeletedFor:           slices.Clone(m.DeletedFor),
		DeletedForEveryoneBy: m.DeletedForEveryoneBy,
	}
}
