// Package app is the composition root of the data model. App owns one
// session, one user directory and one post repository over a shared record
// store, and exposes the commands a presentation layer issues.
//
// Commands run one at a time, as they would on a single UI thread. The
// simulated latency of login, signup and upload is spent before a command
// takes its turn, so a double submission still produces two records.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/localfeed/internal/apperror"
	"github.com/sakif/localfeed/internal/media"
	"github.com/sakif/localfeed/internal/model"
	"github.com/sakif/localfeed/internal/repository"
	"github.com/sakif/localfeed/internal/service"
)

// Options tunes an App.
type Options struct {
	// Latency is the artificial delay of login, signup and post upload.
	Latency time.Duration
	// MediaMaxBytes caps one staged upload; zero means media.DefaultMaxBytes.
	MediaMaxBytes int64
}

type App struct {
	records   *repository.Records
	directory *service.UserDirectory
	session   *service.Session
	posts     *service.PostRepository
	media     *media.Registry
	latency   time.Duration
	logger    *slog.Logger

	mu sync.Mutex
}

// New wires the model over records. Call Start before issuing commands.
func New(records *repository.Records, opts Options, logger *slog.Logger) *App {
	directory := service.NewUserDirectory(records, logger)
	session := service.NewSession(directory, records, opts.Latency, logger)
	return &App{
		records:   records,
		directory: directory,
		session:   session,
		posts:     service.NewPostRepository(records, session, logger),
		media:     media.NewRegistry(opts.MediaMaxBytes),
		latency:   opts.Latency,
		logger:    logger,
	}
}

// Start hydrates the session from the store.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.session.Hydrate(ctx); err != nil {
		return fmt.Errorf("app: starting: %w", err)
	}
	return nil
}

// Close releases the record store.
func (a *App) Close() error {
	return a.records.Close()
}

// Session exposes the session for observers and state queries.
func (a *App) Session() *service.Session {
	return a.session
}

// CurrentUser returns the authenticated identity, if any.
func (a *App) CurrentUser() (model.User, bool) {
	return a.session.Current()
}

// =========================================================================
// SESSION COMMANDS
// =========================================================================

// Login reports whether authentication succeeded. Failures are logged; the
// caller must not assume any state changed.
func (a *App) Login(ctx context.Context, email, password string) bool {
	if _, err := a.session.Login(ctx, email, password); err != nil {
		a.logger.Warn("login failed", slog.String("email", email), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Signup reports whether the new identity was created and logged in.
func (a *App) Signup(ctx context.Context, username, email, password string) bool {
	if _, err := a.session.Signup(ctx, username, email, password); err != nil {
		a.logger.Warn("signup failed", slog.String("email", email), slog.String("error", err.Error()))
		return false
	}
	return true
}

func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Logout(ctx)
}

func (a *App) UpdateAvatar(ctx context.Context, url string) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.UpdateAvatar(ctx, url)
}

func (a *App) UpdateProfile(ctx context.Context, upd service.ProfileUpdate) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.UpdateProfile(ctx, upd)
}

func (a *App) FollowUser(ctx context.Context, id string) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Follow(ctx, id)
}

func (a *App) UnfollowUser(ctx context.Context, id string) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Unfollow(ctx, id)
}

// =========================================================================
// DIRECTORY QUERIES
// =========================================================================

func (a *App) GetAllUsers(ctx context.Context) ([]model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.directory.GetAll(ctx)
}

// GetUserByID returns nil when id is unknown.
func (a *App) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.directory.GetByID(ctx, id)
}

// =========================================================================
// FEED COMMANDS
// =========================================================================

func (a *App) ListPosts(ctx context.Context) ([]model.Post, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.posts.List(ctx)
}

func (a *App) ListPostsByUser(ctx context.Context, userID string) ([]model.Post, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.posts.ListByUser(ctx, userID)
}

// CreatePost publishes draft as the session user after the upload latency.
func (a *App) CreatePost(ctx context.Context, draft model.PostDraft) (*model.Post, error) {
	if _, ok := a.session.Current(); !ok {
		return nil, apperror.Unauthenticated("create a post")
	}
	service.SimulateLatency(a.latency)

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.posts.Create(ctx, draft)
}

func (a *App) ToggleLike(ctx context.Context, postID, actingUserID string) (*model.Post, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.posts.ToggleLike(ctx, postID, actingUserID)
}

// OpenPost returns the single post a detail pane shows, or nil.
func (a *App) OpenPost(ctx context.Context, postID string) (*model.Post, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	view, err := a.posts.SelectedView(ctx, postID)
	if err != nil {
		return nil, err
	}
	posts := view.Posts()
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

// DeletePost removes postID and drops its staged upload once no post refers
// to it.
func (a *App) DeletePost(ctx context.Context, postID, actingUserID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	post, err := a.posts.Get(ctx, postID)
	if err != nil || post == nil {
		return err
	}
	if err := a.posts.Delete(ctx, postID, actingUserID); err != nil {
		return err
	}
	return a.releaseMedia(ctx, post.MediaURL)
}

// AddComment appends comment to postID as given.
func (a *App) AddComment(ctx context.Context, postID string, comment model.Comment) (*model.Post, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.posts.AddComment(ctx, postID, comment)
}

// Comment builds a comment authored by the session user and appends it.
func (a *App) Comment(ctx context.Context, postID, content string) (*model.Post, error) {
	author, ok := a.session.Current()
	if !ok {
		return nil, apperror.Unauthenticated("comment")
	}
	return a.AddComment(ctx, postID, a.posts.NewComment(author, content))
}

// =========================================================================
// PROFILE PAGE
// =========================================================================
//
// A profile page works on the owner's posts only. Each call derives the
// subset, mutates it and merges the result back into the feed, then
// returns the subset as the page would now show it.

// ProfileLike toggles the session user's like on a post shown on ownerID's page.
func (a *App) ProfileLike(ctx context.Context, ownerID, postID string) ([]model.Post, error) {
	return a.onProfile(ctx, ownerID, func(v *service.PostView, actor model.User) error {
		_, err := v.ToggleLike(ctx, postID, actor.ID)
		return err
	})
}

// ProfileComment comments as the session user on a post on ownerID's page.
func (a *App) ProfileComment(ctx context.Context, ownerID, postID, content string) ([]model.Post, error) {
	return a.onProfile(ctx, ownerID, func(v *service.PostView, actor model.User) error {
		_, err := v.AddComment(ctx, postID, a.posts.NewComment(actor, content))
		return err
	})
}

// ProfileDelete deletes a post from the session user's own page.
func (a *App) ProfileDelete(ctx context.Context, ownerID, postID string) ([]model.Post, error) {
	return a.onProfile(ctx, ownerID, func(v *service.PostView, actor model.User) error {
		var mediaURL string
		for _, p := range v.Posts() {
			if p.ID == postID {
				mediaURL = p.MediaURL
			}
		}
		if err := v.Delete(ctx, postID, actor.ID); err != nil {
			return err
		}
		return a.releaseMedia(ctx, mediaURL)
	})
}

func (a *App) onProfile(ctx context.Context, ownerID string, fn func(*service.PostView, model.User) error) ([]model.Post, error) {
	actor, ok := a.session.Current()
	if !ok {
		return nil, apperror.Unauthenticated("use a profile page")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	view, err := a.posts.OwnerView(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := fn(view, actor); err != nil {
		return nil, err
	}
	return view.Posts(), nil
}

// =========================================================================
// MEDIA
// =========================================================================
//
// STAGED UPLOADS:
// An upload lives in the registry from StageMedia until the last post that
// points at it is deleted. References that did not come from StageMedia
// (external URLs, or ids from a previous process) are left alone.

// releaseMedia revokes a staged upload that no remaining post refers to.
// Callers hold a.mu.
func (a *App) releaseMedia(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, media.URLPrefix) {
		return nil
	}
	posts, err := a.posts.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if p.MediaURL == url {
			return nil
		}
	}
	a.media.Revoke(url)
	a.logger.Debug("media released", slog.String("url", url), slog.Int("staged", a.media.Len()))
	return nil
}

// StageMedia keeps an upload in memory and returns a reference for a post
// draft or an avatar.
func (a *App) StageMedia(contentType string, r io.Reader) (media.Ref, error) {
	ref, err := a.media.Stage(contentType, r)
	if err != nil {
		return media.Ref{}, err
	}
	a.logger.Debug("media staged",
		slog.String("url", ref.URL),
		slog.String("type", string(ref.MediaType)),
		slog.Int("staged", a.media.Len()),
	)
	return ref, nil
}

// OpenMedia returns a staged upload.
func (a *App) OpenMedia(id string) (media.Blob, bool) {
	return a.media.Open(id)
}
