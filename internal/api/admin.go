package api

import (
	"net/http"
	"strings"

	"lichka/internal/auth"
	"lichka/internal/content"
	"lichka/internal/models"

	"github.com/google/uuid"
)

type UserStore interface {
	CreateUser(user models.User) error
	GetUser(id string) (models.User, error)
}

type SessionIssuer interface {
	Issue(userID string) (auth.Session, error)
}

type AdminHandler struct {
	users    UserStore
	sessions SessionIssuer
}

func NewAdminHandler(users UserStore, sessions SessionIssuer) *AdminHandler {
	return &AdminHandler{users: users, sessions: sessions}
}

type AddUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

type AddUserResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Username    string `json:"username,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenExpiry int64  `json:"tokenExpiry,omitempty"`
}

type IssueSessionRequest struct {
	UserID string `json:"userId"`
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := content.ValidateUsername(req.Username); err != nil {
		writeError(w, err)
		return
	}

	displayName := strings.TrimSpace(content.Sanitize(req.DisplayName))
	if displayName == "" {
		displayName = req.Username
	}

	user := models.User{
		ID:          uuid.NewString(),
		UserName:    req.Username,
		DisplayName: displayName,
	}
	if err := h.users.CreateUser(user); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Issue(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AddUserResponse{
		Success:     true,
		UserID:      user.ID,
		Username:    user.UserName,
		Token:       session.Token,
		TokenExpiry: session.TokenExpiry,
	})
}

// IssueSessionHandler creates a fresh token for an existing user.
func (h *AdminHandler) IssueSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req IssueSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := content.ValidateID(req.UserID); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.users.GetUser(req.UserID); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Issue(req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
