package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fileconverter/models"
)

// ClaimedEntry is an in-flight queue entry together with the time a
// worker claimed it.
type ClaimedEntry struct {
	Raw       string
	ClaimedAt time.Time
}

// Queue is the at-least-once work queue the scheduler consumes.
// Claiming atomically moves an entry to an in-flight list; Ack removes
// it once the attempt reaches a decision.
type Queue interface {
	// Claim blocks up to its internal timeout and returns the raw
	// payload of a claimed entry, or "" when no work arrived.
	Claim(ctx context.Context) (string, error)
	Ack(raw string)
	Push(ctx context.Context, msg models.QueueMessage) error
	// PushDelayed stores msg durably and holds it back until notBefore;
	// PromoteDue moves it onto the pending queue once its time arrives.
	PushDelayed(ctx context.Context, msg models.QueueMessage, notBefore time.Time) error
	// PromoteDue moves delayed entries whose hold time has passed onto
	// the pending queue and reports how many it moved.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	// InFlight lists entries currently claimed by workers.
	InFlight(ctx context.Context) ([]ClaimedEntry, error)
}

const claimTimeout = 30 * time.Second

// RedisQueue implements Queue on a pair of Redis lists plus a delayed
// sorted set and a claim-time hash. BRPopLPush makes claim-and-move a
// single atomic step, so a worker crash leaves the entry on the
// processing list for the recovery loop.
type RedisQueue struct {
	client     *redis.Client
	pending    string
	processing string
	delayed    string
	claims     string
}

func NewRedisQueue(client *redis.Client, pendingQueue, processingQueue string) *RedisQueue {
	return &RedisQueue{
		client:     client,
		pending:    pendingQueue,
		processing: processingQueue,
		delayed:    pendingQueue + ":delayed",
		claims:     processingQueue + ":claims",
	}
}

func (q *RedisQueue) Claim(ctx context.Context) (string, error) {
	result, err := q.client.BRPopLPush(ctx, q.pending, q.processing, claimTimeout).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// A lost stamp is backfilled on the next InFlight scan, so the
	// claim is returned even when this write fails.
	q.client.HSet(ctx, q.claims, result, time.Now().Unix())
	return result, nil
}

func (q *RedisQueue) Ack(raw string) {
	ctx := context.Background()
	q.client.LRem(ctx, q.processing, 1, raw)
	q.client.HDel(ctx, q.claims, raw)
}

func (q *RedisQueue) Push(ctx context.Context, msg models.QueueMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.pending, payload).Err()
}

func (q *RedisQueue) PushDelayed(ctx context.Context, msg models.QueueMessage, notBefore time.Time) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.delayed, redis.Z{
		Score:  float64(notBefore.Unix()),
		Member: payload,
	}).Err()
}

func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, member := range members {
		// ZRem decides ownership when several promoters race.
		removed, err := q.client.ZRem(ctx, q.delayed, member).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.pending, member).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *RedisQueue) InFlight(ctx context.Context) ([]ClaimedEntry, error) {
	raws, err := q.client.LRange(ctx, q.processing, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]ClaimedEntry, 0, len(raws))
	for _, raw := range raws {
		ts, err := q.client.HGet(ctx, q.claims, raw).Int64()
		if err == redis.Nil {
			// The claiming worker died before stamping. Age accrues
			// from this first observation.
			now := time.Now()
			if err := q.client.HSetNX(ctx, q.claims, raw, now.Unix()).Err(); err != nil {
				return nil, err
			}
			entries = append(entries, ClaimedEntry{Raw: raw, ClaimedAt: now})
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, ClaimedEntry{Raw: raw, ClaimedAt: time.Unix(ts, 0)})
	}
	return entries, nil
}
