package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/localfeed/internal/apperror"
	"github.com/sakif/localfeed/internal/model"
)

func assertLikeInvariant(t *testing.T, env *testEnv) {
	t.Helper()
	posts, err := env.posts.List(context.Background())
	require.NoError(t, err)
	for _, p := range posts {
		assert.Equal(t, len(p.LikedBy), p.Likes, "post %s", p.ID)
	}
}

// =========================================================================
// CREATE
// =========================================================================

func TestCreate_PrependsAndSnapshotsAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "author")

	older := env.createPost(t, "older")
	p, err := env.posts.Create(ctx, model.PostDraft{
		Title:       " t ",
		Description: " d ",
		MediaURL:    "m",
		Tags:        "x, y ,,z",
	})
	require.NoError(t, err)

	assert.Equal(t, "t", p.Title)
	assert.Equal(t, "d", p.Description)
	assert.Equal(t, []string{"x", "y", "z"}, p.Tags)
	assert.Equal(t, model.MediaImage, p.MediaType)
	assert.Equal(t, author.ID, p.UserID)
	assert.Equal(t, author.Username, p.Username)
	assert.Equal(t, author.Avatar, p.UserAvatar)
	assert.Zero(t, p.Likes)
	assert.Empty(t, p.LikedBy)
	assert.Empty(t, p.Comments)
	assert.False(t, p.Timestamp.IsZero())

	all, err := env.posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, p.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)

	mine, err := env.posts.ListByUser(ctx, author.ID)
	require.NoError(t, err)
	assert.Contains(t, postIDs(mine), p.ID)
}

func TestCreate_IncrementsCounterOnBothCopies(t *testing.T) {
	env := newTestEnv(t)
	author := env.signup(t, "author")

	env.createPost(t, "one")
	env.createPost(t, "two")

	current, _ := env.session.Current()
	assert.Equal(t, 2, current.Posts)
	assert.Equal(t, 2, env.user(t, author.ID).Posts)
}

func TestCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "author")

	tests := []struct {
		name  string
		draft model.PostDraft
		field string
	}{
		{name: "missing media", draft: model.PostDraft{Title: "t"}, field: "mediaUrl"},
		{name: "missing title", draft: model.PostDraft{MediaURL: "m"}, field: "title"},
		{name: "blank title", draft: model.PostDraft{Title: "   ", MediaURL: "m"}, field: "title"},
		{name: "unknown media type", draft: model.PostDraft{Title: "t", MediaURL: "m", MediaType: "gif"}, field: "mediaType"},
		{name: "title too long", draft: model.PostDraft{Title: strings.Repeat("a", MaxTitleLength+1), MediaURL: "m"}, field: "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.posts.Create(ctx, tt.draft)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}

	posts, err := env.posts.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts, "failed validation must not write")
	current, _ := env.session.Current()
	assert.Zero(t, current.Posts)
}

func TestCreate_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.posts.Create(context.Background(), model.PostDraft{Title: "t", MediaURL: "m"})
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestCreate_VideoMedia(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "author")

	p, err := env.posts.Create(context.Background(), model.PostDraft{Title: "clip", MediaURL: "m", MediaType: model.MediaVideo})
	require.NoError(t, err)
	assert.Equal(t, model.MediaVideo, p.MediaType)
}

// =========================================================================
// LIKES
// =========================================================================

func TestToggleLike_TwiceRestoresState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "author")
	post := env.createPost(t, "p")
	liker := env.signup(t, "liker")

	liked, err := env.posts.ToggleLike(ctx, post.ID, liker.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, liked.Likes)
	assert.Equal(t, []string{liker.ID}, liked.LikedBy)
	assertLikeInvariant(t, env)

	unliked, err := env.posts.ToggleLike(ctx, post.ID, liker.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Likes, unliked.Likes)
	assert.Equal(t, post.LikedBy, unliked.LikedBy)
	assertLikeInvariant(t, env)
}

func TestToggleLike_ManyUsersKeepInvariant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "author")
	post := env.createPost(t, "p")

	for _, id := range []string{"a", "b", "a", "c", "b", "b"} {
		_, err := env.posts.ToggleLike(ctx, post.ID, id)
		require.NoError(t, err)
		assertLikeInvariant(t, env)
	}

	got, err := env.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, got.LikedBy)
	assert.Equal(t, 2, got.Likes)
}

func TestToggleLike_RepairsDriftedStoredCounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.backend.Save(ctx, env.records.Keys().Posts,
		[]byte(`[{"id":"p1","userId":"u","likes":5,"likedBy":["x"]}]`)))

	p, err := env.posts.ToggleLike(ctx, "p1", "y")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Likes)
	assertLikeInvariant(t, env)
}

func TestToggleLike_UnknownPostIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.posts.ToggleLike(context.Background(), "ghost", "u")
	require.NoError(t, err)
	assert.Nil(t, p)
	_, written := env.backend.Raw(env.records.Keys().Posts)
	assert.False(t, written)
}

func TestToggleLike_RequiresActingUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.posts.ToggleLike(context.Background(), "p", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// DELETE
// =========================================================================

func TestDelete_RemovesOnlyTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.signup(t, "alice")
	a1 := env.createPost(t, "a1")
	a2 := env.createPost(t, "a2")
	bob := env.signup(t, "bob")
	b1 := env.createPost(t, "b1")

	require.NoError(t, env.posts.Delete(ctx, a1.ID, alice.ID))

	all, err := env.posts.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID, a2.ID}, postIDs(all))

	mine, err := env.posts.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a2.ID}, postIDs(mine))

	theirs, err := env.posts.ListByUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b1.ID}, postIDs(theirs))
}

func TestDelete_NotOwnerIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "owner")
	post := env.createPost(t, "mine")
	intruder := env.signup(t, "intruder")

	err := env.posts.Delete(ctx, post.ID, intruder.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	got, err := env.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDelete_KeepsLifetimeCounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.signup(t, "owner")
	post := env.createPost(t, "p")

	require.NoError(t, env.posts.Delete(ctx, post.ID, owner.ID))

	assert.Equal(t, 1, env.user(t, owner.ID).Posts)
}

func TestDelete_UnknownPostIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.posts.Delete(context.Background(), "ghost", "u"))
}

// =========================================================================
// COMMENTS
// =========================================================================

func TestAddComment_TrimsAndAppends(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "author")
	post := env.createPost(t, "p")

	first, err := env.posts.AddComment(ctx, post.ID, env.posts.NewComment(author, "first"))
	require.NoError(t, err)
	require.Len(t, first.Comments, 1)

	updated, err := env.posts.AddComment(ctx, post.ID, env.posts.NewComment(author, "  hi  "))
	require.NoError(t, err)
	require.Len(t, updated.Comments, 2)
	assert.Equal(t, "first", updated.Comments[0].Content)
	assert.Equal(t, "hi", updated.Comments[1].Content)
	assert.Equal(t, author.Username, updated.Comments[1].Username)

	stored, err := env.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Comments, stored.Comments)
}

func TestAddComment_FillsIDAndTimestamp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "author")
	post := env.createPost(t, "p")

	updated, err := env.posts.AddComment(ctx, post.ID, model.Comment{UserID: author.ID, Content: "x"})
	require.NoError(t, err)
	c := updated.Comments[0]
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.Timestamp.IsZero())
}

func TestAddComment_Empty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "author")
	post := env.createPost(t, "p")

	_, err := env.posts.AddComment(ctx, post.ID, env.posts.NewComment(author, "   "))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	stored, err := env.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Comments)
}

// Limits count characters: a title of multi-byte runes at the limit is
// accepted even though its byte length is several times larger.
func TestLengthLimits_CountCharacters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "author")

	title := strings.Repeat("é", MaxTitleLength)
	require.Greater(t, len(title), MaxTitleLength)
	post, err := env.posts.Create(ctx, model.PostDraft{Title: title, MediaURL: "m"})
	require.NoError(t, err)
	assert.Equal(t, title, post.Title)

	comment := strings.Repeat("日", MaxCommentLength)
	updated, err := env.posts.AddComment(ctx, post.ID, env.posts.NewComment(author, comment))
	require.NoError(t, err)
	require.Len(t, updated.Comments, 1)

	_, err = env.posts.AddComment(ctx, post.ID, env.posts.NewComment(author, comment+"日"))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestAddComment_UnknownPost(t *testing.T) {
	env := newTestEnv(t)
	author := env.signup(t, "author")

	p, err := env.posts.AddComment(context.Background(), "ghost", env.posts.NewComment(author, "hi"))
	require.NoError(t, err)
	assert.Nil(t, p)
}

// =========================================================================
// MERGE & STORE FAULTS
// =========================================================================

func TestMerge_ReplacesMatchingKeepsOthers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "a")
	a := env.createPost(t, "a")
	env.signup(t, "b")
	b := env.createPost(t, "b")

	edited := a
	edited.Title = "edited"
	ghost := model.Post{ID: "ghost", Title: "never stored"}
	require.NoError(t, env.posts.Merge(ctx, edited, ghost))

	all, err := env.posts.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{b.ID, a.ID}, postIDs(all))
	assert.Equal(t, "edited", all[1].Title)
	assert.Equal(t, "b", all[0].Title)
}

func TestStoreFault_IsReturned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "author")
	post := env.createPost(t, "p")

	unavailable := errors.New("storage unavailable")
	env.backend.Fail(unavailable)

	_, err := env.posts.ToggleLike(ctx, post.ID, "u")
	assert.ErrorIs(t, err, unavailable)
	_, err = env.posts.List(ctx)
	assert.ErrorIs(t, err, unavailable)
}

func postIDs(posts []model.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
