package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"lichka/internal/api"
	"lichka/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, wsServer *ws.Server, addr string) *APIServer {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/logoff", api.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("GET /api/contacts", apiHandlers.RequireAuth(apiHandlers.ContactsHandler))
	mux.HandleFunc("GET /api/conversations/{peerId}", apiHandlers.RequireAuth(apiHandlers.ConversationHandler))
	mux.HandleFunc("POST /api/conversations/{peerId}/messages", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.SendMessageHandler)))
	mux.HandleFunc("POST /api/conversations/{peerId}/read", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.MarkReadHandler)))
	mux.HandleFunc("POST /api/messages/{id}/delete-for-me", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.DeleteForMeHandler)))
	mux.HandleFunc("POST /api/messages/{id}/delete-for-everyone", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.DeleteForEveryoneHandler)))
	mux.HandleFunc("PATCH /api/messages/{id}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.EditMessageHandler)))
	mux.HandleFunc("POST /api/users/{id}/block", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.BlockHandler)))
	mux.HandleFunc("DELETE /api/users/{id}/block", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UnblockHandler)))
	mux.HandleFunc("GET /api/users/{id}/block-status", apiHandlers.RequireAuth(apiHandlers.BlockStatusHandler))
	mux.HandleFunc("POST /api/push/subscriptions", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.PushSubscribeHandler)))

	// WebSocket endpoint
	mux.HandleFunc("GET /api/ws", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler exposes the routes for in-process tests.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
