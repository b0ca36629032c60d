package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sportsync/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisEngine keeps work items in redis so queued jobs survive restarts of
// the daemon. Layout under prefix:
//
//	<prefix>:waiting:<rank>  list of job ids per priority rank (LPUSH/BRPOP)
//	<prefix>:delayed         zset of job ids scored by ready time (unix ms)
//	<prefix>:items           hash id -> encoded WorkItem
type RedisEngine struct {
	client       *redis.Client
	prefix       string
	pollInterval time.Duration
	now          func() time.Time
}

func NewRedisEngine(client *redis.Client, prefix string) (*RedisEngine, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	if prefix == "" {
		prefix = "sportsync:jobs"
	}
	return &RedisEngine{
		client:       client,
		prefix:       prefix,
		pollInterval: time.Second,
		now:          time.Now,
	}, nil
}

func (e *RedisEngine) itemsKey() string   { return e.prefix + ":items" }
func (e *RedisEngine) delayedKey() string { return e.prefix + ":delayed" }

func (e *RedisEngine) waitingKey(rank int) string {
	return e.prefix + ":waiting:" + strconv.Itoa(rank)
}

// waitingKeys lists the priority lists highest first; BRPOP serves them in order.
func (e *RedisEngine) waitingKeys() []string {
	return []string{
		e.waitingKey(models.PriorityHigh.Rank()),
		e.waitingKey(models.PriorityNormal.Rank()),
		e.waitingKey(models.PriorityLow.Rank()),
	}
}

func clampRank(rank int) int {
	if rank > models.PriorityHigh.Rank() {
		return models.PriorityHigh.Rank()
	}
	if rank < models.PriorityLow.Rank() {
		return models.PriorityLow.Rank()
	}
	return rank
}

func (e *RedisEngine) Enqueue(ctx context.Context, item WorkItem, delay time.Duration) error {
	item.Priority = clampRank(item.Priority)
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	_, err = e.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, e.itemsKey(), item.ID, data)
		if delay > 0 {
			pipe.ZAdd(ctx, e.delayedKey(), redis.Z{
				Score:  float64(e.now().Add(delay).UnixMilli()),
				Member: item.ID,
			})
			return nil
		}
		pipe.LPush(ctx, e.waitingKey(item.Priority), item.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis enqueue %s: %w", item.ID, err)
	}
	return nil
}

func (e *RedisEngine) load(ctx context.Context, id string) (*WorkItem, error) {
	raw, err := e.client.HGet(ctx, e.itemsKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item WorkItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode work item %s: %w", id, err)
	}
	return &item, nil
}

// promote moves due delayed ids onto their waiting list. ZREM decides the
// winner when several workers promote concurrently.
func (e *RedisEngine) promote(ctx context.Context) error {
	due, err := e.client.ZRangeByScore(ctx, e.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(e.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range due {
		removed, err := e.client.ZRem(ctx, e.delayedKey(), id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		item, err := e.load(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			continue
		}
		if err := e.client.LPush(ctx, e.waitingKey(clampRank(item.Priority)), id).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (e *RedisEngine) Dequeue(ctx context.Context) (*WorkItem, error) {
	if err := e.promote(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("promote delayed: %w", err)
	}

	res, err := e.client.BRPop(ctx, e.pollInterval, e.waitingKeys()...).Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis BRPOP: %w", err)
	}
	if len(res) != 2 {
		return nil, nil
	}

	id := res[1]
	item, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.client.HDel(ctx, e.itemsKey(), id).Err(); err != nil {
		return nil, err
	}
	if item == nil {
		// Removed between the pop and the lookup.
		return nil, nil
	}
	return item, nil
}

func (e *RedisEngine) Remove(ctx context.Context, id string) (bool, error) {
	var dropped *redis.IntCmd
	_, err := e.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		dropped = pipe.HDel(ctx, e.itemsKey(), id)
		for _, key := range e.waitingKeys() {
			pipe.LRem(ctx, key, 0, id)
		}
		pipe.ZRem(ctx, e.delayedKey(), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis remove %s: %w", id, err)
	}
	return dropped.Val() > 0, nil
}

func (e *RedisEngine) Depth(ctx context.Context) (int64, int64, error) {
	var waiting int64
	for _, key := range e.waitingKeys() {
		n, err := e.client.LLen(ctx, key).Result()
		if err != nil {
			return 0, 0, err
		}
		waiting += n
	}
	delayed, err := e.client.ZCard(ctx, e.delayedKey()).Result()
	if err != nil {
		return 0, 0, err
	}
	return waiting, delayed, nil
}

// Close is a no-op; the redis client is owned by the caller.
func (e *RedisEngine) Close() error { return nil }
