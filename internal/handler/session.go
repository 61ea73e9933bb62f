package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/localfeed/internal/app"
	"github.com/sakif/localfeed/internal/apperror"
	"github.com/sakif/localfeed/internal/model"
	"github.com/sakif/localfeed/internal/service"
)

// SessionHandler serves the current identity and the account commands.
type SessionHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewSessionHandler(a *app.App, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{app: a, logger: logger}
}

// SessionResponse describes the session. User is nil unless State is
// "authenticated".
type SessionResponse struct {
	State string      `json:"state"`
	User  *model.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type avatarRequest struct {
	Avatar string `json:"avatar"`
}

// HandleGet is GET /api/session.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// HandleLogin is POST /api/session/login. A failed login answers 401 with
// no detail, like the form it backs.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !h.app.Login(r.Context(), req.Email, req.Password) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "login_failed", Message: "login failed"})
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// HandleSignup is POST /api/session/signup.
func (h *SessionHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !h.app.Signup(r.Context(), req.Username, req.Email, req.Password) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "signup_failed", Message: "signup failed"})
		return
	}
	writeJSON(w, http.StatusCreated, h.snapshot())
}

// HandleLogout is POST /api/session/logout.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Logout(r.Context()); err != nil {
		h.logger.Error("logout failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAvatar is PUT /api/session/avatar.
func (h *SessionHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	var req avatarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.app.UpdateAvatar(r.Context(), req.Avatar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSessionUser(w, h.app, user)
}

// HandleProfile is PUT /api/session/profile.
func (h *SessionHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	var req service.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.app.UpdateProfile(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSessionUser(w, h.app, user)
}

func (h *SessionHandler) snapshot() SessionResponse {
	resp := SessionResponse{State: h.app.Session().State().String()}
	if u, ok := h.app.CurrentUser(); ok {
		resp.User = &u
	}
	return resp
}

// writeSessionUser answers with user, or with the unchanged session user
// when the command was a no-op.
func writeSessionUser(w http.ResponseWriter, a *app.App, user *model.User) {
	if user == nil {
		cur, ok := a.CurrentUser()
		if !ok {
			writeError(w, apperror.Unauthenticated("change the session"))
			return
		}
		user = &cur
	}
	writeJSON(w, http.StatusOK, user)
}
