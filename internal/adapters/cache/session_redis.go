// Package cache holds Redis backed stores.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/drivescore/internal/domain/session"
)

const defaultKeyPrefix = "drivescore:session:"

// SessionStore keeps each session as a JSON blob under its own key. Keys
// expire after the configured TTL; a zero TTL keeps them forever.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ session.Store = (*SessionStore)(nil)

// Option applies a configuration option to the SessionStore.
type Option func(*SessionStore)

// WithTTL sets how long an untouched session lives.
func WithTTL(ttl time.Duration) Option {
	return func(s *SessionStore) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces the keys.
func WithKeyPrefix(prefix string) Option {
	return func(s *SessionStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewSessionStore creates a store over client.
func NewSessionStore(client *redis.Client, opts ...Option) *SessionStore {
	s := &SessionStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) key(id string) string { return s.prefix + id }

// Create stores a new session; an existing id is rejected.
func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", session.ErrStoreFailure, err)
	}
	ok, err := s.client.SetNX(ctx, s.key(sess.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: setnx: %w", session.ErrStoreFailure, err)
	}
	if !ok {
		return fmt.Errorf("%w: duplicate id %s", session.ErrStoreFailure, sess.ID)
	}
	return nil
}

// Get loads a session. Expired and unknown ids are not found.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %w", session.ErrStoreFailure, err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", session.ErrStoreFailure, id, err)
	}
	return &sess, nil
}

// Save overwrites an existing session and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", session.ErrStoreFailure, err)
	}
	ok, err := s.client.SetXX(ctx, s.key(sess.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: setxx: %w", session.ErrStoreFailure, err)
	}
	if !ok {
		return session.ErrNotFound
	}
	return nil
}

// Count scans the key space for session keys.
func (s *SessionStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: scan: %w", session.ErrStoreFailure, err)
	}
	return n, nil
}
