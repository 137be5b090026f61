package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
)

const surahKeyPrefix = "mushaf:surah:"

// CachedTextSource keeps fetched surahs in redis so sessions and restarts
// share them. Redis failures fall through to the inner source.
type CachedTextSource struct {
	client *redis.Client
	inner  domain.TextSourcePort
	ttl    time.Duration
	log    *zap.Logger
}

// NewCachedTextSource wraps inner; ttl 0 keeps entries forever
func NewCachedTextSource(client *redis.Client, inner domain.TextSourcePort, ttl time.Duration, log *zap.Logger) *CachedTextSource {
	return &CachedTextSource{client: client, inner: inner, ttl: ttl, log: telemetry.OrNop(log)}
}

func surahKey(script domain.ScriptID, surah int) string {
	return fmt.Sprintf("%s%s:%d", surahKeyPrefix, script, surah)
}

func (c *CachedTextSource) FetchSurah(ctx context.Context, script domain.ScriptID, surah int) (*domain.RawSurah, error) {
	key := surahKey(script, surah)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var raw domain.RawSurah
		jsonErr := json.Unmarshal(data, &raw)
		if jsonErr == nil {
			return &raw, nil
		}
		c.log.Warn("corrupt cached surah, refetching", zap.String("key", key), zap.Error(jsonErr))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("redis read failed", zap.String("key", key), zap.Error(err))
	}

	raw, err := c.inner.FetchSurah(ctx, script, surah)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(raw)
	if err != nil {
		return raw, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("redis write failed", zap.String("key", key), zap.Error(err))
	}
	return raw, nil
}
