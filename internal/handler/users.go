package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/localfeed/internal/app"
	"github.com/sakif/localfeed/internal/apperror"
)

// UserHandler serves the user directory and the follow graph.
type UserHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewUserHandler(a *app.App, logger *slog.Logger) *UserHandler {
	return &UserHandler{app: a, logger: logger}
}

// HandleList is GET /api/users.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.app.GetAllUsers(r.Context())
	if err != nil {
		h.logger.Error("listing users", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGet is GET /api/users/{id}. The model treats an unknown id as
// absent; over HTTP that becomes a 404.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.app.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if user == nil {
		writeError(w, apperror.NotFound("user", id))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandlePosts is GET /api/users/{id}/posts.
func (h *UserHandler) HandlePosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.app.ListPostsByUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleFollow is POST /api/users/{id}/follow. It answers with the session
// user's updated record, 401 without a session and 404 for an unknown target.
func (h *UserHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.target(w, r)
	if !ok {
		return
	}
	user, err := h.app.FollowUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSessionUser(w, h.app, user)
}

// HandleUnfollow is DELETE /api/users/{id}/follow.
func (h *UserHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.target(w, r)
	if !ok {
		return
	}
	user, err := h.app.UnfollowUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSessionUser(w, h.app, user)
}

// target resolves the {id} of a follow route. The model ignores follows of
// unknown users; over HTTP they are reported.
func (h *UserHandler) target(w http.ResponseWriter, r *http.Request) (string, bool) {
	if _, ok := h.app.CurrentUser(); !ok {
		writeError(w, apperror.Unauthenticated("follow a user"))
		return "", false
	}
	id := chi.URLParam(r, "id")
	user, err := h.app.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return "", false
	}
	if user == nil {
		writeError(w, apperror.NotFound("user", id))
		return "", false
	}
	return id, true
}
