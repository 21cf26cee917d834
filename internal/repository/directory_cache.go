package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"go.uber.org/zap"
)

const studentsKeyPrefix = "dir:students:"

// CachedDirectory puts a short-lived Redis cache in front of the guardian ->
// students lookup, which runs on almost every USSD callback. Cache failures
// fall through to the wrapped directory.
type CachedDirectory struct {
	Directory
	rdb *redis.Client
	ttl time.Duration
}

func NewCachedDirectory(next Directory, rdb *redis.Client, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedDirectory{Directory: next, rdb: rdb, ttl: ttl}
}

func (d *CachedDirectory) StudentsByGuardianPhone(ctx context.Context, phone string) ([]model.Student, error) {
	if d.rdb == nil {
		return d.Directory.StudentsByGuardianPhone(ctx, phone)
	}

	key := studentsKeyPrefix + phone
	if raw, err := d.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached []model.Student
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		logger.Log.Debug("directory cache read failed", zap.Error(err))
	}

	students, err := d.Directory.StudentsByGuardianPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(students); err == nil {
		if err := d.rdb.Set(ctx, key, b, d.ttl).Err(); err != nil {
			logger.Log.Debug("directory cache write failed", zap.Error(err))
		}
	}
	return students, nil
}
