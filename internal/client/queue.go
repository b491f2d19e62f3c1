// Package client is the sending side of a conversation: an optimistic send
// queue that shows outgoing messages before the server confirms them, plus
// the HTTP and websocket adapters that feed it.
package client

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"lichka/internal/models"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSending Status = "sending"
	StatusFailed  Status = "failed"
)

// Provisional is an outgoing message the server has not confirmed yet.
type Provisional struct {
	TempID     string
	ReceiverID string
	Content    string
	Timestamp  int64 // Unix milliseconds
	Status     Status
	Err        error

	// peerRead is set when the peer read the conversation while this entry
	// was in flight.
	peerRead bool
}

// Item is one row of the rendered conversation: either a persisted message
// or a provisional one.
type Item struct {
	Message     *models.Message
	Provisional *Provisional
}

type Sender interface {
	Send(ctx context.Context, receiverID, content string) (models.Message, error)
}

// Queue holds the local view of the conversation between selfID and peerID.
// Retries are not deduplicated: if a send committed on the server but its
// response was lost, retrying it stores the message a second time.
type Queue struct {
	selfID string
	peerID string
	sender Sender

	mu       sync.Mutex
	messages []models.Message
	pending  []Provisional
	failed   []Provisional
	onChange func()

	now   func() time.Time
	newID func() string
}

func NewQueue(selfID, peerID string, sender Sender, history []models.Message) *Queue {
	return &Queue{
		selfID:   selfID,
		peerID:   peerID,
		sender:   sender,
		messages: slices.Clone(history),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// OnChange sets the render callback. It is called without the queue lock
// held, after every change of the view.
func (q *Queue) OnChange(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

// Submit shows content as sending right away, then creates it on the
// server. On success the provisional entry is replaced by the persisted
// message; on failure it moves to the failed list.
func (q *Queue) Submit(ctx context.Context, content string) (models.Message, error) {
	p := Provisional{
		TempID:     q.newID(),
		ReceiverID: q.peerID,
		Content:    content,
		Timestamp:  q.now().UnixMilli(),
		Status:     StatusSending,
	}

	q.mu.Lock()
	q.pending = append(q.pending, p)
	q.mu.Unlock()
	q.changed()

	msg, err := q.sender.Send(ctx, q.peerID, content)

	q.mu.Lock()
	if i := slices.IndexFunc(q.pending, func(e Provisional) bool { return e.TempID == p.TempID }); i >= 0 {
		p = q.pending[i]
		q.pending = slices.Delete(q.pending, i, i+1)
	}
	if err != nil {
		p.Status = StatusFailed
		p.Err = err
		p.peerRead = false
		q.failed = append(q.failed, p)
	} else {
		// The peer's read receipt may have arrived before the response.
		if p.peerRead {
			msg.IsRead = true
		}
		msg = q.upsert(msg)
	}
	q.mu.Unlock()
	q.changed()

	if err != nil {
		return models.Message{}, fmt.Errorf("send %s: %w", p.TempID, err)
	}
	return msg, nil
}

// Retry re-submits a failed entry under a new temp id.
func (q *Queue) Retry(ctx context.Context, tempID string) (models.Message, error) {
	q.mu.Lock()
	i := slices.IndexFunc(q.failed, func(e Provisional) bool { return e.TempID == tempID })
	if i < 0 {
		q.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: no failed message %s", models.ErrNotFound, tempID)
	}
	content := q.failed[i].Content
	q.failed = slices.Delete(q.failed, i, i+1)
	q.mu.Unlock()

	return q.Submit(ctx, content)
}

// Discard drops a failed entry.
func (q *Queue) Discard(tempID string) bool {
	q.mu.Lock()
	n := len(q.failed)
	q.failed = slices.DeleteFunc(q.failed, func(e Provisional) bool { return e.TempID == tempID })
	removed := len(q.failed) != n
	q.mu.Unlock()

	if removed {
		q.changed()
	}
	return removed
}

func (q *Queue) Pending() []Provisional {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.pending)
}

func (q *Queue) Failed() []Provisional {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.failed)
}

// Messages returns the persisted messages known locally, hidden ones included.
func (q *Queue) Messages() []models.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.messages)
}

// View returns what should be rendered: persisted messages in order without
// the ones the user deleted for themselves, then sending entries, then
// failed ones.
func (q *Queue) View() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]Item, 0, len(q.messages)+len(q.pending)+len(q.failed))
	for i := range q.messages {
		if q.messages[i].DeletedForUser(q.selfID) {
			continue
		}
		m := q.messages[i]
		items = append(items, Item{Message: &m})
	}
	for _, list := range [][]Provisional{q.pending, q.failed} {
		for i := range list {
			p := list[i]
			items = append(items, Item{Provisional: &p})
		}
	}
	return items
}

// Apply folds a pushed event into the view. It reports whether the event
// concerned this conversation.
func (q *Queue) Apply(ev models.Event) bool {
	q.mu.Lock()
	applied := q.apply(ev)
	q.mu.Unlock()

	if applied {
		q.changed()
	}
	return applied
}

func (q *Queue) apply(ev models.Event) bool {
	switch ev := ev.(type) {
	case models.NewMessage:
		m := ev.Message
		if !(m.SenderID == q.peerID && m.ReceiverID == q.selfID) && !(m.SenderID == q.selfID && m.ReceiverID == q.peerID) {
			return false
		}
		q.upsert(m)
		return true
	case models.MessageAck:
		return q.apply(models.NewMessage{Message: ev.Message})
	case models.MessagesRead:
		if ev.ReaderID != q.peerID {
			return false
		}
		for i := range q.messages {
			if q.messages[i].SenderID == q.selfID {
				q.messages[i].IsRead = true
			}
		}
		for i := range q.pending {
			q.pending[i].peerRead = true
		}
		return true
	case models.MessageDeleted:
		i := slices.IndexFunc(q.messages, func(m models.Message) bool { return m.ID == ev.MsgID })
		if i < 0 {
			return false
		}
		m := &q.messages[i]
		if ev.ForEveryone {
			if m.DeletedForEveryoneBy == "" {
				m.DeletedForEveryoneBy = ev.DeletedBy
			}
		} else if !m.DeletedForUser(ev.DeletedBy) {
			m.DeletedFor = append(m.DeletedFor, ev.DeletedBy)
		}
		return true
	}
	return false
}

// upsert stores msg and returns the stored copy. Read, edit and delete
// markers only ever get set, so a stale copy arriving late cannot clear
// them. Must be called with q.mu held.
func (q *Queue) upsert(msg models.Message) models.Message {
	i := slices.IndexFunc(q.messages, func(m models.Message) bool { return m.ID == msg.ID })
	if i < 0 {
		q.messages = append(q.messages, msg)
		return msg
	}

	cur := q.messages[i]
	msg.IsRead = msg.IsRead || cur.IsRead
	msg.Edited = msg.Edited || cur.Edited
	if cur.DeletedForEveryoneBy != "" {
		msg.DeletedForEveryoneBy = cur.DeletedForEveryoneBy
	}
	msg.DeletedFor = slices.Clone(msg.DeletedFor)
	for _, id := range cur.DeletedFor {
		if !slices.Contains(msg.DeletedFor, id) {
			msg.DeletedFor = append(msg.DeletedFor, id)
		}
	}
	q.messages[i] = msg
	return msg
}

func (q *Queue) changed() {
	q.mu.Lock()
	fn := q.onChange
	q.mu.Unlock()
	if fn != nil {
		fn()
	}
}
