// Package queue implements the durable ingestion job queue on a Redis
// list pair: jobs wait on the main list and sit on a processing list
// between delivery and acknowledgment, so a worker crash never loses a
// job (at-least-once delivery).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askpdf/askpdf/internal/config"
	"github.com/askpdf/askpdf/internal/core"
	"github.com/askpdf/askpdf/internal/models"
)

type RedisQueue struct {
	rdb        *redis.Client
	key        string
	processing string
	logger     *slog.Logger
}

// NewRedisQueue creates the queue client and verifies the connection
// with a PING.
func NewRedisQueue(cfg *config.Config) (*RedisQueue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisQueue{
		rdb:        rdb,
		key:        cfg.QueueKey,
		processing: cfg.QueueKey + ":processing",
		logger:     slog.Default().With("component", "job-queue"),
	}, nil
}

// Enqueue pushes the job onto the queue. The queue entry is the only
// durable record of the job.
func (q *RedisQueue) Enqueue(ctx context.Context, job models.IngestionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.DocumentID, err)
	}
	return nil
}

// Dequeue blocks until a job is available, moving it atomically onto the
// processing list. The returned AckFunc removes it from the processing
// list; an unacked payload is recovered by RequeueOrphans.
//
// A payload that does not decode is acked immediately and reported as an
// error: redelivering it could never succeed.
func (q *RedisQueue) Dequeue(ctx context.Context) (models.IngestionJob, core.AckFunc, error) {
	payload, err := q.rdb.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", 0).Result()
	if err != nil {
		return models.IngestionJob{}, nil, fmt.Errorf("dequeue: %w", err)
	}

	ack := func(ctx context.Context) error {
		return q.rdb.LRem(ctx, q.processing, 1, payload).Err()
	}

	var job models.IngestionJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		_ = ack(ctx)
		return models.IngestionJob{}, nil, fmt.Errorf("malformed job payload dropped: %w", err)
	}
	return job, ack, nil
}

// RequeueOrphans moves any payloads stranded on the processing list by a
// crashed worker back onto the main queue. Call once at worker startup,
// before consumers run.
func (q *RedisQueue) RequeueOrphans(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.rdb.LMove(ctx, q.processing, q.key, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("requeue orphans: %w", err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.Info("requeued orphaned jobs", "count", moved)
	}
	return moved, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}

var _ core.JobQueue = (*RedisQueue)(nil)
