package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"lichka/internal/auth"
	"lichka/internal/models"
)

const maxBodySize = 64 << 10

type ChatService interface {
	Send(ctx context.Context, senderID, receiverID, body string) (models.Message, error)
	Conversation(userID, peerID string) ([]models.Message, error)
	Contacts(userID string) ([]models.Contact, error)
	Me(userID string) (models.User, error)
	MarkRead(ctx context.Context, readerID, peerID string) (int, error)
	DeleteForMe(ctx context.Context, msgID, userID string) (models.Message, error)
	DeleteForEveryone(ctx context.Context, msgID, userID string) (models.Message, error)
	Edit(ctx context.Context, msgID, userID, body string) (models.Message, error)
	Block(ctx context.Context, actorID, targetID string) error
	Unblock(ctx context.Context, actorID, targetID string) error
	BlockStatus(actorID, peerID string) (models.BlockStatus, error)
	SubscribePush(userID string, sub models.PushSubscription) error
}

type SessionStore interface {
	Resolve(token string) (string, error)
	Revoke(token string) error
}

type API struct {
	chat     ChatService
	sessions SessionStore
}

func New(chat ChatService, sessions SessionStore) *API {
	return &API{chat: chat, sessions: sessions}
}

type userIDKey struct{}

// RequireAuth resolves the session token and passes the caller's user id
// to next through the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.sessions.Resolve(auth.TokenFromRequest(r))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, models.APIResponse{Message: "Unauthorized"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	}
}

// UserID returns the caller resolved by RequireAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

type ContentRequest struct {
	Content string `json:"content"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		_ = a.sessions.Revoke(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.chat.Me(UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) ContactsHandler(w http.ResponseWriter, r *http.Request) {
	contacts, err := a.chat.Contacts(UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (a *API) ConversationHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.chat.Conversation(UserID(r.Context()), r.PathValue("peerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := a.chat.Send(r.Context(), UserID(r.Context()), r.PathValue("peerId"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (a *API) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.chat.MarkRead(r.Context(), UserID(r.Context()), r.PathValue("peerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkReadResponse{Updated: n})
}

func (a *API) DeleteForMeHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := a.chat.DeleteForMe(r.Context(), r.PathValue("id"), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (a *API) DeleteForEveryoneHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := a.chat.DeleteForEveryone(r.Context(), r.PathValue("id"), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (a *API) EditMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := a.chat.Edit(r.Context(), r.PathValue("id"), UserID(r.Context()), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (a *API) BlockHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.chat.Block(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) UnblockHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.chat.Unblock(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) BlockStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := a.chat.BlockStatus(UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PushSubscription
	if !decodeBody(w, r, &req) {
		return
	}

	if err := a.chat.SubscribePush(UserID(r.Context()), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.APIResponse{Success: true})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{Message: "Invalid request body"})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
		msg = "internal error"
	}
	writeJSON(w, status, models.APIResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
