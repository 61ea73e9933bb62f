package service

import (
	"context"
	"slices"

	"github.com/sakif/localfeed/internal/model"
)

// PostView is a derived subset of the feed held by a caller, such as the
// posts on one profile page or the single post open in a detail pane.
//
// Mutations change the subset and are then written into the full feed by
// matching ids (PostRepository.Merge, or delete by id). The subset is never
// saved in place of the feed, so posts outside it are always preserved.
type PostView struct {
	repo  *PostRepository
	keep  func(model.Post) bool
	posts []model.Post
}

// OwnerView returns the view of posts owned by userID.
func (r *PostRepository) OwnerView(ctx context.Context, userID string) (*PostView, error) {
	return r.newView(ctx, func(p model.Post) bool { return p.UserID == userID })
}

// SelectedView returns a view holding at most the single post postID.
func (r *PostRepository) SelectedView(ctx context.Context, postID string) (*PostView, error) {
	return r.newView(ctx, func(p model.Post) bool { return p.ID == postID })
}

func (r *PostRepository) newView(ctx context.Context, keep func(model.Post) bool) (*PostView, error) {
	v := &PostView{repo: r, keep: keep}
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// Posts returns a copy of the subset.
func (v *PostView) Posts() []model.Post {
	out := make([]model.Post, len(v.posts))
	for i, p := range v.posts {
		out[i] = p.Clone()
	}
	return out
}

// Refresh re-derives the subset from the stored feed.
func (v *PostView) Refresh(ctx context.Context) error {
	posts, err := v.repo.filter(ctx, v.keep)
	if err != nil {
		return err
	}
	v.posts = posts
	return nil
}

// ToggleLike toggles the like in the subset and merges the post into the feed.
// It returns nil when postID is not part of the view.
func (v *PostView) ToggleLike(ctx context.Context, postID, actingUserID string) (*model.Post, error) {
	return v.apply(ctx, postID, func(p *model.Post) error {
		if actingUserID == "" {
			return errActingUserRequired
		}
		p.ToggleLike(actingUserID)
		return nil
	})
}

// AddComment appends comment in the subset and merges the post into the feed.
func (v *PostView) AddComment(ctx context.Context, postID string, comment model.Comment) (*model.Post, error) {
	comment, err := v.repo.prepareComment(comment)
	if err != nil {
		return nil, err
	}
	return v.apply(ctx, postID, func(p *model.Post) error {
		p.Comments = append(p.Comments, comment)
		return nil
	})
}

// Delete drops postID from the subset and removes it from the feed by id.
func (v *PostView) Delete(ctx context.Context, postID, actingUserID string) error {
	i := indexPost(v.posts, postID)
	if i < 0 {
		return nil
	}
	if err := checkOwner(v.posts[i], actingUserID); err != nil {
		return err
	}
	if err := v.repo.Delete(ctx, postID, actingUserID); err != nil {
		return err
	}
	v.posts = slices.Delete(v.posts, i, i+1)
	return nil
}

func (v *PostView) apply(ctx context.Context, postID string, fn func(*model.Post) error) (*model.Post, error) {
	i := indexPost(v.posts, postID)
	if i < 0 {
		return nil, nil
	}
	p := v.posts[i].Clone()
	if err := fn(&p); err != nil {
		return nil, err
	}
	if err := v.repo.Merge(ctx, p); err != nil {
		return nil, err
	}
	v.posts[i] = p
	out := p.Clone()
	return &out, nil
}
