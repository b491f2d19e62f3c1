package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"lichka/internal/models"
	"lichka/internal/presence"
)

var errReplaced = errors.New("connection replaced by a newer one")

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
}

type messageHub interface {
	Join(userID string) *presence.Handle
	Leave(handle *presence.Handle)
	Dispatch(ctx context.Context, userID string, msg models.ClientMessage) *models.ServerMessage
}

// clientFrame is one decoded read from the socket. A frame that is not
// valid JSON for a ClientMessage carries err and keeps the connection open.
type clientFrame struct {
	msg models.ClientMessage
	err error
}

type Connection struct {
	ws         wsConnection
	hub        messageHub
	userID     string
	handle     *presence.Handle
	fromClient chan clientFrame
	errorCh    chan error
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	userID string,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		handle:     hub.Join(userID),
		fromClient: make(chan clientFrame),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Leave(c.handle)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
		// A loop may have failed right before cancelling.
		select {
		case err = <-c.errorCh:
		default:
		}
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errReplaced) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var frame clientFrame
		if err := c.ws.ReadJSON(&frame.msg); err != nil {
			if !isDecodeError(err) {
				return err
			}
			frame = clientFrame{err: err}
		}
		select {
		case c.fromClient <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case frame := <-c.fromClient:
			if err := c.processClientFrame(ctx, frame); err != nil {
				return err
			}
		case msg := <-c.handle.Messages():
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-c.handle.Done():
			return errReplaced
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientFrame(ctx context.Context, frame clientFrame) error {
	var reply *models.ServerMessage
	if frame.err != nil {
		msg, err := models.EncodeEvent(models.ErrorEvent{Error: "malformed frame: " + frame.err.Error()})
		if err != nil {
			return err
		}
		reply = &msg
	} else {
		reply = c.hub.Dispatch(ctx, c.userID, frame.msg)
	}

	if reply == nil {
		return nil
	}
	return c.ws.WriteJSON(reply)
}

func isDecodeError(err error) bool {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
