// Package service holds the data-consistency model: the user directory, the
// post repository, derived post views and the session. Each component reads
// and writes its own record through repository.Records; denormalized copies
// held elsewhere are updated by the component that owns the change.
//
// WHO WRITES WHAT:
//
//	Record key        Owner             Copies held elsewhere
//	<ns>_users        UserDirectory     Session (the current user)
//	<ns>_posts        PostRepository    PostView (a filtered subset)
//	<ns>_user         Session           none
//
// A copy is never written back over its source. The Session pushes its
// edits into the directory and adopts what the directory returns; a PostView
// merges changed posts into the feed by id.
//
// NOT-FOUND IS NOT AN ERROR:
// Operating on an id that no longer exists returns (nil, nil). Callers that
// need to report it (the HTTP adapter, for instance) check the result.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/localfeed/internal/model"
	"github.com/sakif/localfeed/internal/repository"
)

// UserDirectory is the sole writer of User records. The whole directory is
// stored as one list under the users key; every mutation rewrites it.
type UserDirectory struct {
	records *repository.Records
	logger  *slog.Logger
}

func NewUserDirectory(records *repository.Records, logger *slog.Logger) *UserDirectory {
	return &UserDirectory{records: records, logger: logger}
}

// GetAll returns every user in insertion order, or an empty list when the
// directory has never been written.
func (d *UserDirectory) GetAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if _, err := d.records.LoadJSON(ctx, d.records.Keys().Users, &users); err != nil {
		return nil, fmt.Errorf("service/directory: loading users: %w", err)
	}
	for i := range users {
		users[i].Normalize()
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// GetByID returns the user with id, or nil when there is none.
func (d *UserDirectory) GetByID(ctx context.Context, id string) (*model.User, error) {
	users, err := d.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexUser(users, id); i >= 0 {
		return &users[i], nil
	}
	return nil, nil
}

// GetByEmail returns the first user registered with email, or nil.
func (d *UserDirectory) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	users, err := d.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Email == email {
			return &users[i], nil
		}
	}
	return nil, nil
}

// UpsertAll replaces the whole directory with users.
func (d *UserDirectory) UpsertAll(ctx context.Context, users []model.User) error {
	if users == nil {
		users = []model.User{}
	}
	if err := d.records.SaveJSON(ctx, d.records.Keys().Users, users); err != nil {
		return fmt.Errorf("service/directory: saving users: %w", err)
	}
	return nil
}

// Create builds a new identity with a fresh id and empty follow sets and
// appends it to the directory. Duplicate emails and usernames are allowed.
func (d *UserDirectory) Create(ctx context.Context, username, email string) (*model.User, error) {
	user := model.User{
		ID:        xid.New().String(),
		Username:  username,
		Email:     email,
		Avatar:    model.DefaultAvatar,
		Followers: []string{},
		Following: []string{},
	}

	err := d.update(ctx, func(users *[]model.User) (bool, error) {
		*users = append(*users, user)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/directory: inserting user: %w", err)
	}

	d.logger.Info("user created",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return &user, nil
}

// Modify applies fn to the stored record with id and writes the directory
// back. It returns the updated record, or nil when id is unknown (nothing is
// written in that case).
func (d *UserDirectory) Modify(ctx context.Context, id string, fn func(*model.User)) (*model.User, error) {
	var updated *model.User
	err := d.update(ctx, func(users *[]model.User) (bool, error) {
		i := indexUser(*users, id)
		if i < 0 {
			return false, nil
		}
		fn(&(*users)[i])
		(*users)[i].Normalize()
		u := (*users)[i].Clone()
		updated = &u
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/directory: updating user %s: %w", id, err)
	}
	return updated, nil
}

// IncrementPosts bumps the lifetime post counter of id.
func (d *UserDirectory) IncrementPosts(ctx context.Context, id string) (*model.User, error) {
	return d.Modify(ctx, id, func(u *model.User) { u.Posts++ })
}

// Follow makes actorID follow targetID, updating the actor's following set
// and the target's followers set in a single write. It is a no-op, returning
// nil, when the ids are equal or either user is missing. The updated actor
// is returned otherwise.
func (d *UserDirectory) Follow(ctx context.Context, actorID, targetID string) (*model.User, error) {
	return d.link(ctx, actorID, targetID, true)
}

// Unfollow reverses Follow with the same no-op rules.
func (d *UserDirectory) Unfollow(ctx context.Context, actorID, targetID string) (*model.User, error) {
	return d.link(ctx, actorID, targetID, false)
}

func (d *UserDirectory) link(ctx context.Context, actorID, targetID string, follow bool) (*model.User, error) {
	if actorID == "" || targetID == "" || actorID == targetID {
		return nil, nil
	}

	var actor *model.User
	err := d.update(ctx, func(users *[]model.User) (bool, error) {
		ai, ti := indexUser(*users, actorID), indexUser(*users, targetID)
		if ai < 0 || ti < 0 {
			return false, nil
		}
		a, t := &(*users)[ai], &(*users)[ti]

		var changed bool
		if follow {
			changed = a.Follow(targetID)
			changed = t.AddFollower(actorID) || changed
		} else {
			changed = a.Unfollow(targetID)
			changed = t.RemoveFollower(actorID) || changed
		}
		u := a.Clone()
		actor = &u
		return changed, nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/directory: linking %s -> %s: %w", actorID, targetID, err)
	}

	if actor == nil {
		d.logger.Debug("follow change ignored: unknown user",
			slog.String("actorID", actorID),
			slog.String("targetID", targetID),
		)
	}
	return actor, nil
}

func (d *UserDirectory) update(ctx context.Context, fn func(*[]model.User) (bool, error)) error {
	return repository.Update(ctx, d.records, d.records.Keys().Users, func(users *[]model.User) (bool, error) {
		if *users == nil {
			*users = []model.User{}
		}
		for i := range *users {
			(*users)[i].Normalize()
		}
		return fn(users)
	})
}

func indexUser(users []model.User, id string) int {
	return slices.IndexFunc(users, func(u model.User) bool { return u.ID == id })
}

// usernameFromEmail returns the local part of an email address, which login
// uses as the username of an identity it has to synthesize.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
