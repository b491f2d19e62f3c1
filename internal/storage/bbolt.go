package storage

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"lichka/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers             = []byte("users")
	bucketMessages          = []byte("messages")
	bucketMessageIndex      = []byte("message_index")
	bucketPushSubscriptions = []byte("push_subscriptions")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketMessages, bucketMessageIndex, bucketPushSubscriptions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// CreateUser stores a new user record. User names are unique.
func (s *BboltStorage) CreateUser(user models.User) error {
	if user.ID == "" || user.UserName == "" {
		return fmt.Errorf("%w: user id and name are required", models.ErrValidation)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.ID)) != nil {
			return fmt.Errorf("%w: user %s already exists", models.ErrConflict, user.ID)
		}
		err := b.ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbUser.UserName == user.UserName {
				return fmt.Errorf("%w: user name %s is taken", models.ErrConflict, user.UserName)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return putUser(b, user)
	})
}

// GetUser returns the user with the given id or models.ErrNotFound.
func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = getUser(tx.Bucket(bucketUsers), id)
		return err
	})
	return user, err
}

// ListUsers returns all users sorted by display name.
func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, toUser(dbUser))
			return nil
		})
	})
	sort.Slice(users, func(i, j int) bool {
		return users[i].DisplayName < users[j].DisplayName
	})
	return users, err
}

// UpdateUser applies fn to the stored user inside a single transaction.
// Nothing is written when fn returns an error.
func (s *BboltStorage) UpdateUser(id string, fn func(user *models.User) error) (models.User, error) {
	var user models.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		var err error
		user, err = getUser(b, id)
		if err != nil {
			return err
		}
		if err := fn(&user); err != nil {
			return err
		}
		return putUser(b, user)
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// SetLastSeen records the disconnect time of a user.
func (s *BboltStorage) SetLastSeen(id string, lastSeen int64) error {
	_, err := s.UpdateUser(id, func(user *models.User) error {
		user.LastSeen = lastSeen
		return nil
	})
	return err
}

func getUser(b *bbolt.Bucket, id string) (models.User, error) {
	data := b.Get([]byte(id))
	if data == nil {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	var dbUser DBUser
	if err := dbUser.UnmarshalBinary(data); err != nil {
		return models.User{}, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return toUser(dbUser), nil
}

func putUser(b *bbolt.Bucket, user models.User) error {
	dbUser := &DBUser{
		ID:             user.ID,
		UserName:       user.UserName,
		DisplayName:    user.DisplayName,
		BlockedUserIDs: user.BlockedUserIDs,
		LastSeen:       user.LastSeen,
	}
	data, err := dbUser.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(dbUser.Key(), data)
}

func toUser(dbUser DBUser) models.User {
	return models.User{
		ID:             dbUser.ID,
		UserName:       dbUser.UserName,
		DisplayName:    dbUser.DisplayName,
		BlockedUserIDs: slices.Clone(dbUser.BlockedUserIDs),
		LastSeen:       dbUser.LastSeen,
	}
}
