package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChannelRoster tracks per-channel user presence in TTL-scored
// ZSETs. An entry counts as present while its check-in timestamp is
// within the freshness window; stale members are pruned on read.
type RedisChannelRoster struct {
	rdb    *redis.Client
	window time.Duration
}

func NewRedisChannelRoster(rdb *redis.Client, window time.Duration) *RedisChannelRoster {
	if window <= 0 {
		window = 2 * time.Minute
	}
	return &RedisChannelRoster{rdb: rdb, window: window}
}

func (r *RedisChannelRoster) key(channelID string) string {
	return "roster:channel:" + channelID
}

func (r *RedisChannelRoster) MarkPresent(ctx context.Context, channelID, userID string, ttl time.Duration) error {
	key := r.key(channelID)
	if err := r.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: userID,
	}).Err(); err != nil {
		return err
	}
	// Expire the whole set so inactive channels do not leak memory.
	return r.rdb.Expire(ctx, key, ttl*2).Err()
}

func (r *RedisChannelRoster) MarkAbsent(ctx context.Context, channelID, userID string) error {
	return r.rdb.ZRem(ctx, r.key(channelID), userID).Err()
}

func (r *RedisChannelRoster) PresentUsers(ctx context.Context, channelID string) ([]string, error) {
	key := r.key(channelID)
	threshold := time.Now().Add(-r.window).Unix()
	r.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(threshold, 10))
	return r.rdb.ZRange(ctx, key, 0, -1).Result()
}

func (r *RedisChannelRoster) Clear(ctx context.Context, channelID string) error {
	return r.rdb.Del(ctx, r.key(channelID)).Err()
}
