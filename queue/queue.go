package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a redis-list job queue. Consuming moves the job into a processing
// list instead of removing it, so a worker crash leaves the job reclaimable.
// Retries wait in a sorted set scored by ready time, and exhausted jobs land
// on a dead list for manual inspection; nothing is held only in memory.
type Queue struct {
	rdb *redis.Client
}

func New(addr, password string) *Queue {
	return &Queue{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})}
}

func NewWithClient(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *Queue) Close() error {
	return q.rdb.Close()
}

func processingKey(name string) string { return "processing:" + name }
func delayedKey(name string) string    { return "delayed:" + name }

func (q *Queue) Enqueue(ctx context.Context, name string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, name, raw).Err()
}

// EnqueueDelayed schedules a job to become consumable after delay. Delayed
// jobs survive restarts; PromoteDue moves the ripe ones onto the queue.
func (q *Queue) EnqueueDelayed(ctx context.Context, name string, env Envelope, delay time.Duration) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, delayedKey(name), redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: raw,
	}).Err()
}

// PromoteDue moves every delayed job whose ready time has passed onto the
// queue. The ZREM guard keeps concurrent promoters from double-delivering.
func (q *Queue) PromoteDue(ctx context.Context, name string, now time.Time) (int, error) {
	due, err := q.rdb.ZRangeByScore(ctx, delayedKey(name), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, raw := range due {
		removed, err := q.rdb.ZRem(ctx, delayedKey(name), raw).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, name, raw).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Dequeue blocks up to timeout for the next job and parks its raw form on the
// processing list until Ack. Returns ok=false when the queue stayed empty.
// A payload that does not even parse as an envelope is dead-lettered here.
func (q *Queue) Dequeue(ctx context.Context, name string, timeout time.Duration) (Envelope, string, bool, error) {
	raw, err := q.rdb.BLMove(ctx, name, processingKey(name), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return Envelope{}, "", false, nil
	}
	if err != nil {
		return Envelope{}, "", false, err
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		_ = q.rdb.LPush(ctx, "dead:"+name, raw).Err()
		_ = q.Ack(ctx, name, raw)
		return Envelope{}, "", false, fmt.Errorf("malformed envelope on %s: %w", name, err)
	}
	return env, raw, true, nil
}

// Ack removes a handled job from the processing list.
func (q *Queue) Ack(ctx context.Context, name, raw string) error {
	return q.rdb.LRem(ctx, processingKey(name), 1, raw).Err()
}

// Reclaim moves every unacked job from the processing list back onto the
// queue. Called once at pool start to recover jobs a previous process died
// holding.
func (q *Queue) Reclaim(ctx context.Context, name string) (int, error) {
	moved := 0
	for {
		_, err := q.rdb.LMove(ctx, processingKey(name), name, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// DeadLetter parks an exhausted or poisoned job on dead:<queue>.
func (q *Queue) DeadLetter(ctx context.Context, name string, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, "dead:"+name, raw).Err()
}

func (q *Queue) DeadLength(ctx context.Context, name string) (int64, error) {
	return q.rdb.LLen(ctx, "dead:"+name).Result()
}
