package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/localfeed/internal/model"
	"github.com/sakif/localfeed/internal/repository"
	"github.com/sakif/localfeed/internal/repository/memory"
)

// =========================================================================
// TEST HELPERS
// =========================================================================

type testEnv struct {
	backend   *memory.Store
	records   *repository.Records
	directory *UserDirectory
	session   *Session
	posts     *PostRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := memory.New()
	return newTestEnvOn(t, backend)
}

// newTestEnvOn builds the services over an existing backend, which is how a
// restarted process sees the previous one's records.
func newTestEnvOn(t *testing.T, backend *memory.Store) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	records := repository.New(backend, "test")
	directory := NewUserDirectory(records, logger)
	session := NewSession(directory, records, 0, logger)
	return &testEnv{
		backend:   backend,
		records:   records,
		directory: directory,
		session:   session,
		posts:     NewPostRepository(records, session, logger),
	}
}

// signup creates a user and leaves the session logged in as them.
func (e *testEnv) signup(t *testing.T, username string) model.User {
	t.Helper()
	u, err := e.session.Signup(context.Background(), username, username+"@example.com", "secret")
	require.NoError(t, err)
	return *u
}

// createPost creates a post as the current session user.
func (e *testEnv) createPost(t *testing.T, title string) model.Post {
	t.Helper()
	p, err := e.posts.Create(context.Background(), model.PostDraft{
		Title:    title,
		MediaURL: "blob:local/" + title,
	})
	require.NoError(t, err)
	return *p
}

func (e *testEnv) user(t *testing.T, id string) model.User {
	t.Helper()
	u, err := e.directory.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u, "user %s missing from directory", id)
	return *u
}
