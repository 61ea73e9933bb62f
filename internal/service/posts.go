package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/localfeed/internal/apperror"
	"github.com/sakif/localfeed/internal/model"
	"github.com/sakif/localfeed/internal/repository"
)

var errActingUserRequired = apperror.ValidationFailed("userId", "acting user is required")

// Identity is the acting user as seen by the post repository. *Session
// implements it.
type Identity interface {
	Current() (model.User, bool)
	RecordPost(ctx context.Context) error
}

// Validation limits, counted in characters rather than bytes.
const (
	MaxTitleLength   = 200
	MaxCommentLength = 2000
)

// PostRepository is the sole writer of Post and Comment records. The feed is
// one list stored newest first; every read goes back to the store.
//
// THE LIKE INVARIANT:
// Likes is never incremented or decremented on its own. Every mutation edits
// LikedBy and then sets Likes = len(LikedBy) (see model.Post.ToggleLike), and
// every load runs Normalize, which repairs a counter written by older code.
//
// AUTHOR SNAPSHOTS:
// Create and NewComment copy the author's username and avatar into the
// record. Later profile edits do not reach them; old posts keep the name
// and picture they were published with.
type PostRepository struct {
	records  *repository.Records
	identity Identity
	logger   *slog.Logger
	now      func() time.Time
}

func NewPostRepository(records *repository.Records, identity Identity, logger *slog.Logger) *PostRepository {
	return &PostRepository{
		records:  records,
		identity: identity,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns the whole feed, newest first.
func (r *PostRepository) List(ctx context.Context) ([]model.Post, error) {
	var posts []model.Post
	if _, err := r.records.LoadJSON(ctx, r.records.Keys().Posts, &posts); err != nil {
		return nil, fmt.Errorf("service/posts: loading feed: %w", err)
	}
	for i := range posts {
		posts[i].Normalize()
	}
	if posts == nil {
		posts = []model.Post{}
	}
	return posts, nil
}

// ListByUser returns the posts owned by userID, in feed order.
func (r *PostRepository) ListByUser(ctx context.Context, userID string) ([]model.Post, error) {
	return r.filter(ctx, func(p model.Post) bool { return p.UserID == userID })
}

// Get returns the post with id, or nil.
func (r *PostRepository) Get(ctx context.Context, id string) (*model.Post, error) {
	posts, err := r.filter(ctx, func(p model.Post) bool { return p.ID == id })
	if err != nil || len(posts) == 0 {
		return nil, err
	}
	return &posts[0], nil
}

func (r *PostRepository) filter(ctx context.Context, keep func(model.Post) bool) ([]model.Post, error) {
	posts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Create validates draft and prepends a new post authored by the acting
// identity. The author's username and avatar are copied into the post. On
// success the author's lifetime post counter is incremented.
func (r *PostRepository) Create(ctx context.Context, draft model.PostDraft) (*model.Post, error) {
	author, ok := r.identity.Current()
	if !ok {
		return nil, apperror.Unauthenticated("create a post")
	}

	// === VALIDATION ===
	mediaURL := strings.TrimSpace(draft.MediaURL)
	title := strings.TrimSpace(draft.Title)
	if mediaURL == "" {
		return nil, apperror.ValidationFailed("mediaUrl", "media is required")
	}
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	mediaType := draft.MediaType
	if mediaType == "" {
		mediaType = model.MediaImage
	}
	if !mediaType.Valid() {
		return nil, apperror.ValidationFailed("mediaType", "media type must be image or video")
	}

	post := model.Post{
		ID:          xid.New().String(),
		UserID:      author.ID,
		Username:    author.Username,
		UserAvatar:  author.Avatar,
		Title:       title,
		Description: strings.TrimSpace(draft.Description),
		MediaURL:    mediaURL,
		MediaType:   mediaType,
		Tags:        model.ParseTags(draft.Tags),
		Likes:       0,
		LikedBy:     []string{},
		Comments:    []model.Comment{},
		Timestamp:   r.now().UTC(),
	}

	err := r.update(ctx, func(posts *[]model.Post) (bool, error) {
		*posts = slices.Insert(*posts, 0, post)
		return true, nil
	})
	if err != nil {
		r.logger.Error("failed to create post",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/posts: creating post: %w", err)
	}

	// The feed and the counter are separate keys; a fault here leaves the
	// post in place with the counter one short.
	if err := r.identity.RecordPost(ctx); err != nil {
		return nil, fmt.Errorf("service/posts: counting post for %s: %w", author.ID, err)
	}

	r.logger.Info("post created",
		slog.String("postID", post.ID),
		slog.String("userID", post.UserID),
	)
	return &post, nil
}

// ToggleLike flips actingUserID's like on postID. Likes is recomputed from
// LikedBy, so the two cannot drift. An unknown post returns nil.
func (r *PostRepository) ToggleLike(ctx context.Context, postID, actingUserID string) (*model.Post, error) {
	if actingUserID == "" {
		return nil, errActingUserRequired
	}
	return r.modify(ctx, postID, func(p *model.Post) error {
		p.ToggleLike(actingUserID)
		return nil
	})
}

// Delete removes postID if actingUserID owns it. Deleting an unknown post is
// a no-op. The owner's post counter is left alone: it counts posts ever
// created.
func (r *PostRepository) Delete(ctx context.Context, postID, actingUserID string) error {
	err := r.update(ctx, func(posts *[]model.Post) (bool, error) {
		i := indexPost(*posts, postID)
		if i < 0 {
			return false, nil
		}
		if err := checkOwner((*posts)[i], actingUserID); err != nil {
			return false, err
		}
		*posts = slices.Delete(*posts, i, i+1)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("service/posts: deleting %s: %w", postID, err)
	}
	r.logger.Info("post delete handled", slog.String("postID", postID))
	return nil
}

// NewComment builds a comment by author with a fresh id and timestamp. The
// author's username and avatar are copied in.
func (r *PostRepository) NewComment(author model.User, content string) model.Comment {
	return model.Comment{
		ID:         xid.New().String(),
		UserID:     author.ID,
		Username:   author.Username,
		UserAvatar: author.Avatar,
		Content:    content,
		Timestamp:  r.now().UTC(),
	}
}

// AddComment appends comment to postID after trimming its content. Missing
// id and timestamp are filled in. An unknown post returns nil.
func (r *PostRepository) AddComment(ctx context.Context, postID string, comment model.Comment) (*model.Post, error) {
	comment, err := r.prepareComment(comment)
	if err != nil {
		return nil, err
	}
	return r.modify(ctx, postID, func(p *model.Post) error {
		p.Comments = append(p.Comments, comment)
		return nil
	})
}

func (r *PostRepository) prepareComment(c model.Comment) (model.Comment, error) {
	c.Content = strings.TrimSpace(c.Content)
	if c.Content == "" {
		return c, apperror.ValidationFailed("content", "comment cannot be empty")
	}
	if utf8.RuneCountInString(c.Content) > MaxCommentLength {
		return c, apperror.ValidationFailed("content",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}
	if c.UserID == "" {
		return c, apperror.ValidationFailed("userId", "comment author is required")
	}
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = r.now().UTC()
	}
	return c, nil
}

// Merge writes changed copies of posts back into the authoritative feed.
// Each stored post whose id matches one of posts is replaced; every other
// stored post is kept as is, and ids missing from the feed are ignored.
func (r *PostRepository) Merge(ctx context.Context, posts ...model.Post) error {
	if len(posts) == 0 {
		return nil
	}
	byID := make(map[string]model.Post, len(posts))
	for _, p := range posts {
		p.Normalize()
		byID[p.ID] = p
	}

	err := r.update(ctx, func(stored *[]model.Post) (bool, error) {
		changed := false
		for i, p := range *stored {
			if replacement, ok := byID[p.ID]; ok {
				(*stored)[i] = replacement
				changed = true
			}
		}
		return changed, nil
	})
	if err != nil {
		return fmt.Errorf("service/posts: merging %d posts: %w", len(posts), err)
	}
	return nil
}

// modify runs fn on the stored copy of postID and saves the feed.
func (r *PostRepository) modify(ctx context.Context, postID string, fn func(*model.Post) error) (*model.Post, error) {
	var updated *model.Post
	err := r.update(ctx, func(posts *[]model.Post) (bool, error) {
		i := indexPost(*posts, postID)
		if i < 0 {
			return false, nil
		}
		if err := fn(&(*posts)[i]); err != nil {
			return false, err
		}
		p := (*posts)[i].Clone()
		updated = &p
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/posts: updating %s: %w", postID, err)
	}
	if updated == nil {
		r.logger.Debug("post not found, ignoring", slog.String("postID", postID))
	}
	return updated, nil
}

func (r *PostRepository) update(ctx context.Context, fn func(*[]model.Post) (bool, error)) error {
	return repository.Update(ctx, r.records, r.records.Keys().Posts, func(posts *[]model.Post) (bool, error) {
		if *posts == nil {
			*posts = []model.Post{}
		}
		for i := range *posts {
			(*posts)[i].Normalize()
		}
		return fn(posts)
	})
}

func checkOwner(p model.Post, actingUserID string) error {
	if actingUserID == "" || p.UserID != actingUserID {
		return apperror.Forbidden("only the owner can delete this post")
	}
	return nil
}

func indexPost(posts []model.Post, id string) int {
	return slices.IndexFunc(posts, func(p model.Post) bool { return p.ID == id })
}
