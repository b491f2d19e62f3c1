package storage

import (
	"fmt"

	"lichka/internal/models"

	"go.etcd.io/bbolt"
)

// UpsertPushSubscription stores the web push subscription of a user,
// replacing an older one.
func (s *BboltStorage) UpsertPushSubscription(userID string, sub models.PushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbSub := &DBPushSubscription{
			UserID:   userID,
			Endpoint: sub.Endpoint,
			P256dh:   sub.P256dh,
			Auth:     sub.Auth,
		}
		data, err := dbSub.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal push subscription: %w", err)
		}
		return tx.Bucket(bucketPushSubscriptions).Put(dbSub.Key(), data)
	})
}

func (s *BboltStorage) GetPushSubscription(userID string) (models.PushSubscription, error) {
	var sub models.PushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPushSubscriptions).Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("push subscription for %s: %w", userID, models.ErrNotFound)
		}
		var dbSub DBPushSubscription
		if err := dbSub.UnmarshalBinary(data); err != nil {
			return err
		}
		sub = models.PushSubscription{
			Endpoint: dbSub.Endpoint,
			P256dh:   dbSub.P256dh,
			Auth:     dbSub.Auth,
		}
		return nil
	})
	return sub, err
}

func (s *BboltStorage) DeletePushSubscription(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPushSubscriptions).Delete([]byte(userID))
	})
}
