package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lichka/internal/models"
	"lichka/internal/presence"
)

type mockWS struct {
	readCh      chan any
	writeCh     chan any
	closeCh     chan struct{}
	closeOnce   sync.Once
	closed      bool
	errToReturn error
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan any, 10),
		writeCh: make(chan any, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	m.closeOnce.Do(func() {
		m.closed = true
		close(m.closeCh)
	})
	return nil
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

// ReadJSON hands out queued client messages. A queued error is returned as
// is, which lets tests simulate undecodable frames.
func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case item, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		switch item := item.(type) {
		case error:
			return item
		case models.ClientMessage:
			if ptr, ok := v.(*models.ClientMessage); ok {
				*ptr = item
			}
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

type mockHub struct {
	joinCh     chan string
	leaveCh    chan *presence.Handle
	dispatchCh chan models.ClientMessage
	reply      *models.ServerMessage
	handles    map[string]*presence.Handle
}

func newMockHub() *mockHub {
	return &mockHub{
		joinCh:     make(chan string, 10),
		leaveCh:    make(chan *presence.Handle, 10),
		dispatchCh: make(chan models.ClientMessage, 10),
		handles:    make(map[string]*presence.Handle),
	}
}

func (m *mockHub) Join(userID string) *presence.Handle {
	m.joinCh <- userID
	h := presence.NewHandle(userID, 10)
	m.handles[userID] = h
	return h
}

func (m *mockHub) Leave(h *presence.Handle) {
	m.leaveCh <- h
	h.Close()
}

func (m *mockHub) Dispatch(_ context.Context, _ string, msg models.ClientMessage) *models.ServerMessage {
	m.dispatchCh <- msg
	return m.reply
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := newMockHub()
	ack, err := models.EncodeEvent(models.MessageAck{TempID: "tmp-1", Message: models.Message{ID: "m1"}})
	if err != nil {
		t.Fatal(err)
	}
	hub.reply = &ack
	ws := newMockWS()
	userID := "user1"

	conn := NewConnection(hub, ws, userID)
	if conn == nil {
		t.Fatal("NewConnection returned nil")
	}

	select {
	case id := <-hub.joinCh:
		if id != userID {
			t.Errorf("Expected Join with %s, got %s", userID, id)
		}
	default:
		t.Error("Join not called on NewConnection")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	// 1. Client -> Hub, reply goes back to the same socket.
	clientMsg := models.ClientMessage{
		Type:       models.ClientMessageTypeSend,
		TempID:     "tmp-1",
		ReceiverID: "user2",
		Content:    "hello",
	}
	ws.readCh <- clientMsg

	select {
	case received := <-hub.dispatchCh:
		if received.Content != clientMsg.Content {
			t.Errorf("Hub received wrong content: %v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Hub did not receive dispatched message")
	}

	select {
	case received := <-ws.writeCh:
		reply, ok := received.(*models.ServerMessage)
		if !ok {
			t.Fatalf("WS received wrong type: %T", received)
		}
		if reply.Event != models.EventMessageAck {
			t.Errorf("Expected ack, got %s", reply.Event)
		}
	case <-time.After(1 * time.Second):
		t.Error("WS did not receive the ack")
	}

	// 2. Push from the registry handle -> client.
	push, err := models.EncodeEvent(models.MessagesRead{ReaderID: "user2"})
	if err != nil {
		t.Fatal(err)
	}
	if !hub.handles[userID].Send(push) {
		t.Fatal("handle refused push")
	}

	select {
	case received := <-ws.writeCh:
		sMsg, ok := received.(models.ServerMessage)
		if !ok {
			t.Fatalf("WS received wrong type: %T", received)
		}
		if sMsg.Event != models.EventMessagesRead {
			t.Errorf("WS received wrong event: %v", sMsg)
		}
	case <-time.After(1 * time.Second):
		t.Error("WS did not receive server message")
	}

	// 3. Stop
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return after cancel")
	}

	select {
	case h := <-hub.leaveCh:
		if h.UserID != userID {
			t.Errorf("Expected Leave with %s, got %s", userID, h.UserID)
		}
	default:
		t.Error("Leave not called")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}

func TestConnection_MalformedFrameKeepsConnection(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	conn := NewConnection(hub, ws, "user1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	ws.readCh <- &json.SyntaxError{Offset: 1}

	select {
	case received := <-ws.writeCh:
		reply, ok := received.(*models.ServerMessage)
		if !ok {
			t.Fatalf("WS received wrong type: %T", received)
		}
		if reply.Event != models.EventError {
			t.Errorf("Expected error event, got %s", reply.Event)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("no error reply for malformed frame")
	}

	// Still alive: a valid frame is dispatched afterwards.
	ws.readCh <- models.ClientMessage{Type: models.ClientMessageTypeRead, PeerID: "user2"}
	select {
	case <-hub.dispatchCh:
	case <-time.After(1 * time.Second):
		t.Error("connection stopped after malformed frame")
	}

	cancel()
	<-done
}

func TestConnection_Replaced(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	conn := NewConnection(hub, ws, "user1")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	// What the hub does to an evicted connection.
	hub.handles["user1"].Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error for a replaced connection: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Handle did not return after the handle was closed")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}

func TestConnection_WSError(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	userID := "user2"

	conn := NewConnection(hub, ws, userID)

	ws.errToReturn = errors.New("read error")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error from Handle, got nil")
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return on error")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}
