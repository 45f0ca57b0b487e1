package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iklevente/crewdo-backend-sub001/pkg/logging"
)

// RedisMessageQueue is the per-channel ingest stream. Entries are
// consumed by a channel worker through a consumer group, acknowledged
// after the database commit, and deleted to keep streams small.
type RedisMessageQueue struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisMessageQueue(log *slog.Logger, rdb *redis.Client) *RedisMessageQueue {
	return &RedisMessageQueue{rdb: rdb, log: log}
}

func (q *RedisMessageQueue) streamKey(channelID string) string {
	return "stream:channel:" + channelID
}

func (q *RedisMessageQueue) PublishToStream(ctx context.Context, channelID string, payload []byte) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamKey(channelID),
		MaxLen: 1000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": payload},
	}).Err()
}

func (q *RedisMessageQueue) SubscribeToStream(
	ctx context.Context,
	channelID string,
	group string,
	handler func(ctx context.Context, entryID string, data []byte) error,
) error {
	stream := q.streamKey(channelID)
	err := q.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group: %w", err)
	}
	consumer := uuid.NewString()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    group,
					Consumer: consumer,
					Streams:  []string{stream, ">"},
					Count:    1,
					Block:    2 * time.Second,
				}).Result()
				if err != nil {
					if err != redis.Nil && ctx.Err() == nil {
						q.log.Warn("queue - subscribe - stream read error", "stream", stream, logging.Err(err))
					}
					continue
				}
				for _, s := range res {
					for _, entry := range s.Messages {
						raw, ok := entry.Values["data"].(string)
						if !ok {
							continue
						}
						if err := handler(ctx, entry.ID, []byte(raw)); err != nil {
							q.log.Warn("queue - subscribe - handler error", "stream", stream, "entry_id", entry.ID, logging.Err(err))
						}
					}
				}
			}
		}
	}()
	return nil
}

func (q *RedisMessageQueue) AcknowledgeMessage(ctx context.Context, channelID, group, entryID string) error {
	return q.rdb.XAck(ctx, q.streamKey(channelID), group, entryID).Err()
}

func (q *RedisMessageQueue) DeleteMessage(ctx context.Context, channelID, entryID string) error {
	return q.rdb.XDel(ctx, q.streamKey(channelID), entryID).Err()
}

func (q *RedisMessageQueue) DeleteStream(ctx context.Context, channelID string) error {
	return q.rdb.Del(ctx, q.streamKey(channelID)).Err()
}
