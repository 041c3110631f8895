// Package cache stores resolved track lookups in redis so repeated queries
// skip the node round trip.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"LinkFM/db"
	"LinkFM/logger"
	"LinkFM/model"
)

// QueryKey derives the redis key for a lookup string. Queries are normalized
// so case and surrounding whitespace do not split the cache.
func QueryKey(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	sum := sha1.Sum([]byte(normalized))
	return fmt.Sprintf("query:%s", hex.EncodeToString(sum[:]))
}

// GetQueryResult returns a cached load result, or nil on a miss. Cache
// errors degrade to a miss.
func GetQueryResult(ctx context.Context, raw string) *model.LoadResult {
	if db.RedisClient == nil {
		return nil
	}
	payload, err := db.RedisClient.Get(ctx, QueryKey(raw)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("query cache read failed", logger.ErrorField(err))
		}
		return nil
	}
	var result model.LoadResult
	if err := json.Unmarshal(payload, &result); err != nil {
		logger.Warn("query cache entry corrupt, dropping",
			logger.String("key", QueryKey(raw)),
			logger.ErrorField(err))
		db.RedisClient.Del(ctx, QueryKey(raw))
		return nil
	}
	return &result
}

// PutQueryResult stores a load result. Empty and error results are never
// cached; a transient upstream failure should not poison later lookups.
func PutQueryResult(ctx context.Context, raw string, result *model.LoadResult, ttl time.Duration) {
	if db.RedisClient == nil || result == nil {
		return
	}
	switch result.LoadType {
	case model.LoadTypeEmpty, model.LoadTypeError:
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Warn("query cache marshal failed", logger.ErrorField(err))
		return
	}
	if err := db.RedisClient.Set(ctx, QueryKey(raw), payload, ttl).Err(); err != nil {
		logger.Warn("query cache write failed", logger.ErrorField(err))
	}
}

// InvalidateQuery drops a cached lookup.
func InvalidateQuery(ctx context.Context, raw string) {
	if db.RedisClient == nil {
		return
	}
	db.RedisClient.Del(ctx, QueryKey(raw))
}
