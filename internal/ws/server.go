package ws

import (
	"context"
	"log"
	"net/http"
	"net/url"

	"lichka/internal/auth"

	"github.com/gorilla/websocket"
)

type Authenticator interface {
	Resolve(token string) (string, error)
}

type Server struct {
	ctx      context.Context
	auth     Authenticator
	hub      messageHub
	upgrader *websocket.Upgrader
}

// NewServer creates the websocket endpoint. Connections are closed when ctx
// is done. When allowedOrigin is set, browser connections from other
// origins are refused; clients that send no Origin header are accepted.
func NewServer(ctx context.Context, authenticator Authenticator, hub *Hub, allowedOrigin string) *Server {
	return &Server{
		ctx:  ctx,
		auth: authenticator,
		hub:  hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: checkOrigin(allowedOrigin),
		},
	}
}

func checkOrigin(allowed string) func(r *http.Request) bool {
	if allowed == "" {
		return func(*http.Request) bool { return true }
	}
	want, err := url.Parse(allowed)
	if err != nil {
		log.Printf("invalid allowed origin %q, accepting all origins: %v", allowed, err)
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		got, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return got.Scheme == want.Scheme && got.Host == want.Host
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Resolve(auth.TokenFromRequest(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(r.Context(), cancel)
	defer stop()

	conn := NewConnection(s.hub, ws, userID)
	if err := conn.Handle(ctx); err != nil {
		log.Printf("connection of user %s closed: %v", userID, err)
	}
}
