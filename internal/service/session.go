package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/localfeed/internal/apperror"
	"github.com/sakif/localfeed/internal/model"
	"github.com/sakif/localfeed/internal/repository"
)

// State is the session lifecycle position.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observer is notified after every session change. user is the identity
// Current would return, or nil when there is none.
type Observer func(state State, user *model.User)

// MinPasswordLength applies to password changes made through UpdateProfile.
const MinPasswordLength = 6

// ProfileUpdate carries the editable account fields. Empty strings leave the
// field unchanged. The password fields are validated and then discarded:
// no credential is ever stored.
type ProfileUpdate struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Session owns the current identity. It keeps a copy of the user record,
// persisted under the session key, and writes every change to that identity
// through to the directory as well.
//
// One Session is built by the composition root and lives for the process.
type Session struct {
	directory *UserDirectory
	records   *repository.Records
	latency   time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	current   *model.User
	pending   int // login/signup calls still inside authenticate
	observers map[int]Observer
	nextObs   int
}

// NewSession returns an unauthenticated session. latency is the artificial
// delay applied to login and signup; zero disables it.
func NewSession(directory *UserDirectory, records *repository.Records, latency time.Duration, logger *slog.Logger) *Session {
	return &Session{
		directory: directory,
		records:   records,
		latency:   latency,
		logger:    logger,
		observers: make(map[int]Observer),
	}
}

// Hydrate restores the identity stored by a previous process. An absent
// record leaves the session unauthenticated.
func (s *Session) Hydrate(ctx context.Context) error {
	var stored model.User
	ok, err := s.records.LoadJSON(ctx, s.records.Keys().Session, &stored)
	if err != nil {
		return fmt.Errorf("service/session: hydrating: %w", err)
	}
	if !ok || stored.ID == "" {
		s.logger.Debug("no stored session")
		return nil
	}
	stored.Normalize()

	s.mu.Lock()
	s.current = &stored
	s.state = Authenticated
	s.mu.Unlock()

	s.logger.Info("session restored", slog.String("userID", stored.ID))
	s.notify()
	return nil
}

// State returns the lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns a copy of the session identity. While a re-login is in
// flight the previous identity stays current until the new one replaces it.
func (s *Session) Current() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.state == Unauthenticated {
		return model.User{}, false
	}
	return s.current.Clone(), true
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Session) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Login authenticates by email. The password is accepted and ignored. If a
// user with that email exists it becomes the session; otherwise a new user
// named after the email's local part is created.
func (s *Session) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	return s.authenticate(ctx, func() (*model.User, error) {
		existing, err := s.directory.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		return s.directory.Create(ctx, usernameFromEmail(email), email)
	})
}

// Signup always creates a new user, even if the email or username is taken.
func (s *Session) Signup(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	return s.authenticate(ctx, func() (*model.User, error) {
		return s.directory.Create(ctx, username, email)
	})
}

// authenticate moves through Authenticating, waits out the simulated
// latency and runs resolve. Overlapping calls are counted: the session only
// leaves Authenticating when the last of them finishes, and a failure falls
// back to whatever identity is current at that point.
//
// STATE TIMELINE FOR TWO OVERLAPPING FAILURES:
//
//	call A starts    pending=1  Authenticating
//	call B starts    pending=2  Authenticating
//	call A fails     pending=1  Authenticating (B still running)
//	call B fails     pending=0  Authenticated if an identity is current,
//	                            otherwise Unauthenticated
//
// A success sets the identity and Authenticated as soon as it resolves.
func (s *Session) authenticate(ctx context.Context, resolve func() (*model.User, error)) (*model.User, error) {
	s.mu.Lock()
	s.pending++
	s.state = Authenticating
	s.mu.Unlock()
	s.notify()

	SimulateLatency(s.latency)

	user, err := resolve()
	if err == nil {
		err = s.setCurrent(ctx, *user)
	}

	s.mu.Lock()
	s.pending--
	if err != nil && s.pending == 0 {
		s.state = Unauthenticated
		if s.current != nil {
			s.state = Authenticated
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.notify()
		s.logger.Error("authentication failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/session: authenticating: %w", err)
	}

	s.logger.Info("user authenticated",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	u := user.Clone()
	return &u, nil
}

// Logout clears the identity and its stored record. The post feed is kept.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.records.Remove(ctx, s.records.Keys().Session); err != nil {
		return fmt.Errorf("service/session: logging out: %w", err)
	}

	s.mu.Lock()
	s.current = nil
	s.state = Unauthenticated
	s.mu.Unlock()

	s.logger.Info("user logged out")
	s.notify()
	return nil
}

// UpdateAvatar replaces the avatar on the session copy and the directory copy.
// Posts and comments keep the avatar they were created with.
func (s *Session) UpdateAvatar(ctx context.Context, url string) (*model.User, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, apperror.ValidationFailed("avatar", "avatar url is required")
	}
	return s.writeThrough(ctx, func(u *model.User) { u.Avatar = url })
}

// UpdateProfile edits username and email. A password change is only checked
// for length and confirmation.
func (s *Session) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*model.User, error) {
	if upd.NewPassword != "" || upd.ConfirmPassword != "" {
		if upd.NewPassword != upd.ConfirmPassword {
			return nil, apperror.ValidationFailed("confirmPassword", "new passwords don't match")
		}
		if len(upd.NewPassword) < MinPasswordLength {
			return nil, apperror.ValidationFailed("newPassword",
				fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
		}
	}

	username := strings.TrimSpace(upd.Username)
	email := strings.TrimSpace(upd.Email)
	return s.writeThrough(ctx, func(u *model.User) {
		if username != "" {
			u.Username = username
		}
		if email != "" {
			u.Email = email
		}
	})
}

// Follow makes the session user follow targetID. See UserDirectory.Follow
// for the no-op cases; a nil user is returned for those.
func (s *Session) Follow(ctx context.Context, targetID string) (*model.User, error) {
	return s.link(ctx, targetID, s.directory.Follow)
}

// Unfollow reverses Follow.
func (s *Session) Unfollow(ctx context.Context, targetID string) (*model.User, error) {
	return s.link(ctx, targetID, s.directory.Unfollow)
}

func (s *Session) link(ctx context.Context, targetID string, op func(context.Context, string, string) (*model.User, error)) (*model.User, error) {
	cur, ok := s.Current()
	if !ok {
		return nil, nil
	}
	updated, err := op(ctx, cur.ID, targetID)
	if err != nil || updated == nil {
		return nil, err
	}
	if err := s.setCurrent(ctx, *updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordPost increments the lifetime post counter of the session user.
func (s *Session) RecordPost(ctx context.Context) error {
	_, err := s.adopt(ctx, func(u *model.User) { u.Posts++ }, s.directory.IncrementPosts)
	return err
}

// writeThrough applies fn to the directory record of the session user and
// adopts the result as the session copy.
func (s *Session) writeThrough(ctx context.Context, fn func(*model.User)) (*model.User, error) {
	return s.adopt(ctx, fn, func(ctx context.Context, id string) (*model.User, error) {
		return s.directory.Modify(ctx, id, fn)
	})
}

// adopt runs the directory update for the session user and takes its result
// as the session copy. If the directory has lost the record, local is
// applied to the session copy alone.
func (s *Session) adopt(ctx context.Context, local func(*model.User), update func(context.Context, string) (*model.User, error)) (*model.User, error) {
	cur, ok := s.Current()
	if !ok {
		return nil, nil
	}

	updated, err := update(ctx, cur.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		s.logger.Warn("session user missing from directory", slog.String("userID", cur.ID))
		local(&cur)
		cur.Normalize()
		updated = &cur
	}

	if err := s.setCurrent(ctx, *updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// setCurrent persists u as the session record, then adopts it in memory.
func (s *Session) setCurrent(ctx context.Context, u model.User) error {
	u = u.Clone()
	if err := s.records.SaveJSON(ctx, s.records.Keys().Session, u); err != nil {
		return fmt.Errorf("service/session: saving session: %w", err)
	}

	s.mu.Lock()
	s.current = &u
	s.state = Authenticated
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Session) notify() {
	s.mu.Lock()
	state := s.state
	var user *model.User
	if s.current != nil && state != Unauthenticated {
		u := s.current.Clone()
		user = &u
	}
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state, user)
	}
}
