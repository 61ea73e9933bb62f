// Package repository is the persistent record store: a small key/value
// contract over a durable backend, plus the JSON serialization every other
// component relies on.
//
// There is no transaction across keys. A failure between two saves leaves
// the keys out of step with each other; callers accept that.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Backend is a byte-level key/value store. Implementations live in the
// sqlite, redis and memory subpackages.
//
// Load reports (nil, false, nil) for an absent key. Any returned error is a
// store fault and is treated as fatal for the calling operation.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Keys names the three logical records. They share a namespace prefix so
// several demos can live in one backend.
type Keys struct {
	Session string // current-session-identity: model.User or absent
	Users   string // user-directory: []model.User
	Posts   string // post-feed: []model.Post
}

// DefaultNamespace is the key prefix used when none is configured.
const DefaultNamespace = "socialapp"

// KeysFor derives the record keys for a namespace prefix.
func KeysFor(namespace string) Keys {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Keys{
		Session: namespace + "_user",
		Users:   namespace + "_users",
		Posts:   namespace + "_posts",
	}
}

// Records wraps a Backend with JSON encoding and an in-process lock that
// makes a single key's read-modify-write atomic with respect to other
// Update calls on the same Records.
type Records struct {
	backend Backend
	keys    Keys

	mu sync.Mutex
}

// New returns a Records over backend using the keys of namespace.
func New(backend Backend, namespace string) *Records {
	return &Records{backend: backend, keys: KeysFor(namespace)}
}

// Keys returns the record keys in use.
func (r *Records) Keys() Keys {
	return r.keys
}

// Close closes the underlying backend.
func (r *Records) Close() error {
	return r.backend.Close()
}

// LoadJSON decodes the value under key into dst. It reports false, leaving
// dst untouched, when the key is absent.
func (r *Records) LoadJSON(ctx context.Context, key string, dst any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadJSON(ctx, key, dst)
}

// SaveJSON encodes v and stores it under key, replacing any previous value.
func (r *Records) SaveJSON(ctx context.Context, key string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveJSON(ctx, key, v)
}

// Remove deletes key. Removing an absent key is not an error.
func (r *Records) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.backend.Remove(ctx, key); err != nil {
		return fmt.Errorf("repository: removing %s: %w", key, err)
	}
	return nil
}

func (r *Records) loadJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := r.backend.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("repository: loading %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("repository: decoding %s: %w", key, err)
	}
	return true, nil
}

func (r *Records) saveJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("repository: encoding %s: %w", key, err)
	}
	if err := r.backend.Save(ctx, key, raw); err != nil {
		return fmt.Errorf("repository: saving %s: %w", key, err)
	}
	return nil
}

// Update runs a read-modify-write of one key. fn receives the decoded value
// (the zero T when the key is absent) and reports whether it changed it;
// the value is saved only when it did.
//
// fn runs with the Records lock held and must not call back into r.
//
// WHAT THE LOCK COVERS:
// Two Update calls on the same Records cannot interleave, so a follow that
// edits two users inside one fn is applied whole. It does not cover a second
// process on the same backend, and it does not span keys: creating a post
// and bumping its author's counter are two Updates, and a store fault
// between them leaves the counter one short.
func Update[T any](ctx context.Context, r *Records, key string, fn func(*T) (bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var v T
	if _, err := r.loadJSON(ctx, key, &v); err != nil {
		return err
	}
	changed, err := fn(&v)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return r.saveJSON(ctx, key, v)
}
