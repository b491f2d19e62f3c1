// Package block manages per-user block lists and reports block visibility
// between two users. The status is advisory: it does not stop messages from
// being stored or delivered.
package block

import (
	"fmt"
	"slices"

	"lichka/internal/models"
)

type UserStore interface {
	GetUser(id string) (models.User, error)
	UpdateUser(id string, fn func(user *models.User) error) (models.User, error)
}

type Gate struct {
	users UserStore
}

func NewGate(users UserStore) *Gate {
	return &Gate{users: users}
}

// Block adds targetID to the block list of actorID.
func (g *Gate) Block(actorID, targetID string) error {
	if actorID == targetID {
		return fmt.Errorf("%w: cannot block yourself", models.ErrConflict)
	}
	if _, err := g.users.GetUser(targetID); err != nil {
		return err
	}
	_, err := g.users.UpdateUser(actorID, func(u *models.User) error {
		if u.Blocks(targetID) {
			return fmt.Errorf("%w: user %s is already blocked", models.ErrConflict, targetID)
		}
		u.BlockedUserIDs = append(u.BlockedUserIDs, targetID)
		return nil
	})
	return err
}

// Unblock removes targetID from the block list of actorID.
func (g *Gate) Unblock(actorID, targetID string) error {
	_, err := g.users.UpdateUser(actorID, func(u *models.User) error {
		i := slices.Index(u.BlockedUserIDs, targetID)
		if i < 0 {
			return fmt.Errorf("%w: user %s is not blocked", models.ErrConflict, targetID)
		}
		u.BlockedUserIDs = slices.Delete(u.BlockedUserIDs, i, i+1)
		return nil
	})
	return err
}

// Status reports whether either side blocked the other and whether the
// actor is the one who did.
func (g *Gate) Status(actorID, peerID string) (models.BlockStatus, error) {
	actor, err := g.users.GetUser(actorID)
	if err != nil {
		return models.BlockStatus{}, err
	}
	peer, err := g.users.GetUser(peerID)
	if err != nil {
		return models.BlockStatus{}, err
	}

	byActor := actor.Blocks(peerID)
	return models.BlockStatus{
		Blocked:        byActor || peer.Blocks(actorID),
		BlockedByActor: byActor,
	}, nil
}
