package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

const (
	defaultKeyPrefix = "ussd:session:"
	defaultTTL       = 180 * time.Second
)

// Store keeps the last known state of each dial-in. It is an audit aid:
// menu position is always recomputed from the callback text.
type Store interface {
	Get(ctx context.Context, sessionID string) (*model.USSDSession, error)
	Save(ctx context.Context, s model.USSDSession) error
}

// RedisStore stores sessions as JSON under prefix+sessionID with a TTL that
// is refreshed on every save.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

// Get returns nil, nil when the session is unknown or expired.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*model.USSDSession, error) {
	raw, err := s.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess model.USSDSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess model.USSDSession) error {
	if sess.SessionID == "" {
		return errors.New("session id is required")
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.rdb.Set(ctx, s.key(sess.SessionID), b, s.ttl).Err()
}
