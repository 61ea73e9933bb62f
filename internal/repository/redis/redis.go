// Package redis implements repository.Backend on a Redis server, for running
// several demo processes against one shared profile.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sakif/localfeed/internal/repository"
)

var _ repository.Backend = (*Store)(nil)

// Store keeps each record as a plain string value.
type Store struct {
	client *goredis.Client
}

// New connects to addr, which may be a redis:// URL or a bare host:port,
// and verifies the connection with PING.
func New(ctx context.Context, addr string) (*Store, error) {
	var opts *goredis.Options
	if strings.Contains(addr, "://") {
		parsed, err := goredis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parsing url %q: %w", addr, err)
		}
		opts = parsed
	} else {
		opts = &goredis.Options{Addr: addr}
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: pinging %s: %w", opts.Addr, err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client. The Store takes ownership and
// closes it on Close.
func NewWithClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis: loading %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: saving %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: removing %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
