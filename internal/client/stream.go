package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"lichka/internal/models"

	"github.com/gorilla/websocket"
)

// Stream is the client end of the realtime channel.
type Stream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial opens the websocket at wsURL, for example ws://host/api/ws.
func Dial(ctx context.Context, wsURL, token string) (*Stream, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next event arrives. Frames that do not decode into
// a known event are skipped.
func (s *Stream) Next() (models.Event, error) {
	for {
		var msg models.ServerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return nil, err
		}
		ev, err := msg.Decode()
		if err != nil {
			slog.Warn("skipping undecodable event", "event", msg.Event, "error", err)
			continue
		}
		return ev, nil
	}
}

// Send writes a client frame.
func (s *Stream) Send(msg models.ClientMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// Run hands every event to apply until the connection fails or ctx is done.
func (s *Stream) Run(ctx context.Context, apply func(models.Event)) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		ev, err := s.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		apply(ev)
	}
}

func (s *Stream) Close() error {
	return s.conn.Close()
}
