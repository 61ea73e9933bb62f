package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/localfeed/internal/app"
	"github.com/sakif/localfeed/internal/apperror"
	"github.com/sakif/localfeed/internal/model"
)

// PostHandler serves the feed and the profile-page commands. The acting user
// is always the session user.
type PostHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewPostHandler(a *app.App, logger *slog.Logger) *PostHandler {
	return &PostHandler{app: a, logger: logger}
}

type commentRequest struct {
	Content string `json:"content"`
}

// HandleList is GET /api/posts, newest first.
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	posts, err := h.app.ListPosts(r.Context())
	if err != nil {
		h.logger.Error("listing posts", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleCreate is POST /api/posts. The request blocks for the configured
// upload latency.
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var draft model.PostDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, err)
		return
	}
	post, err := h.app.CreatePost(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// HandleLike is POST /api/posts/{id}/like. It toggles.
func (h *PostHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	me, ok := h.actor(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	post, err := h.app.ToggleLike(r.Context(), id, me.ID)
	h.writePost(w, id, post, err)
}

// HandleGet is GET /api/posts/{id}, the post a detail pane opens.
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	post, err := h.app.OpenPost(r.Context(), id)
	h.writePost(w, id, post, err)
}

// HandleDelete is DELETE /api/posts/{id}. An unknown post is a 404.
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	me, ok := h.actor(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	post, err := h.app.OpenPost(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if post == nil {
		writeError(w, apperror.NotFound("post", id))
		return
	}
	if err := h.app.DeletePost(r.Context(), id, me.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleComment is POST /api/posts/{id}/comments.
func (h *PostHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	post, err := h.app.Comment(r.Context(), id, req.Content)
	h.writePost(w, id, post, err)
}

// HandleProfileLike is POST /api/users/{id}/posts/{postID}/like and answers
// with the owner's posts. A post that is not on the owner's page is a 404.
func (h *PostHandler) HandleProfileLike(w http.ResponseWriter, r *http.Request) {
	ownerID, postID, ok := h.profilePost(w, r)
	if !ok {
		return
	}
	posts, err := h.app.ProfileLike(r.Context(), ownerID, postID)
	h.writePosts(w, posts, err)
}

// HandleProfileComment is POST /api/users/{id}/posts/{postID}/comments.
func (h *PostHandler) HandleProfileComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ownerID, postID, ok := h.profilePost(w, r)
	if !ok {
		return
	}
	posts, err := h.app.ProfileComment(r.Context(), ownerID, postID, req.Content)
	h.writePosts(w, posts, err)
}

// HandleProfileDelete is DELETE /api/users/{id}/posts/{postID}.
func (h *PostHandler) HandleProfileDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, postID, ok := h.profilePost(w, r)
	if !ok {
		return
	}
	posts, err := h.app.ProfileDelete(r.Context(), ownerID, postID)
	h.writePosts(w, posts, err)
}

// profilePost checks that {postID} is one of {id}'s posts.
func (h *PostHandler) profilePost(w http.ResponseWriter, r *http.Request) (ownerID, postID string, ok bool) {
	ownerID, postID = chi.URLParam(r, "id"), chi.URLParam(r, "postID")
	post, err := h.app.OpenPost(r.Context(), postID)
	if err != nil {
		writeError(w, err)
		return "", "", false
	}
	if post == nil || post.UserID != ownerID {
		writeError(w, apperror.NotFound("post", postID))
		return "", "", false
	}
	return ownerID, postID, true
}

func (h *PostHandler) actor(w http.ResponseWriter) (model.User, bool) {
	me, ok := h.app.CurrentUser()
	if !ok {
		writeError(w, apperror.Unauthenticated("change a post"))
	}
	return me, ok
}

// writePost turns the model's soft no-op on an unknown post into a 404.
func (h *PostHandler) writePost(w http.ResponseWriter, id string, post *model.Post, err error) {
	switch {
	case err != nil:
		writeError(w, err)
	case post == nil:
		writeError(w, apperror.NotFound("post", id))
	default:
		writeJSON(w, http.StatusOK, post)
	}
}

func (h *PostHandler) writePosts(w http.ResponseWriter, posts []model.Post, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}
