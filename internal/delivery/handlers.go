package delivery

import (
	"errors"
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Vovarama1992/talker_bot/internal/session"
	"github.com/Vovarama1992/talker_bot/internal/user"
)

const serviceName = "talker_bot"

// SessionStore exposes the live conversation state.
type SessionStore interface {
	Sessions(username string) []session.Session
	Purge(username string)
}

type UserHandler struct {
	users    user.Service
	sessions SessionStore
	log      *logger.ZapLogger
}

func NewUserHandler(users user.Service, sessions SessionStore, log *logger.ZapLogger) *UserHandler {
	return &UserHandler{users: users, sessions: sessions, log: log}
}

// GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: "list users", Service: serviceName, Error: err})
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	name := user.Normalize(body.Username)
	if name == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}
	if h.users.IsAllowed(r.Context(), name) {
		http.Error(w, "user exists", http.StatusConflict)
		return
	}

	if err := h.users.AddUser(r.Context(), name, body.IsAdmin); err != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: "add user " + name, Service: serviceName, Error: err})
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	h.log.Log(logger.LogEntry{Level: "info", Message: "user added via api: " + name, Service: serviceName})
	writeJSON(w, http.StatusCreated, user.User{
		Username: name,
		Language: user.DefaultLanguage,
		Voice:    user.VoiceOriginal,
		IsAdmin:  body.IsAdmin || name == h.users.DefaultAdmin(),
	})
}

// DELETE /users/{username}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := user.Normalize(chi.URLParam(r, "username"))

	err := h.users.RemoveUser(r.Context(), name)
	switch {
	case errors.Is(err, user.ErrEmptyUsername):
		http.Error(w, "username required", http.StatusBadRequest)
		return
	case errors.Is(err, user.ErrProtectedUser):
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case errors.Is(err, user.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		h.log.Log(logger.LogEntry{Level: "error", Message: "remove user " + name, Service: serviceName, Error: err})
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	h.sessions.Purge(name)
	w.WriteHeader(http.StatusNoContent)
}

type SessionHandler struct {
	sessions SessionStore
}

func NewSessionHandler(sessions SessionStore) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// GET /sessions/{username}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := user.Normalize(chi.URLParam(r, "username"))
	if name == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Sessions(name))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
