package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkarev/document-analysis-service/internal/models"
)

// Producer is the enqueue end of the analysis work queue. One message is
// produced per created document; enqueue is fire-and-forget and the caller
// never waits on the analysis result.
type Producer interface {
	Enqueue(ctx context.Context, job models.AnalysisJob) error
}

// Consumer is the dequeue end. Delivery is at-least-once: a dequeued job
// stays on a processing list until acknowledged, so a crashed or stopping
// worker leaves it behind for Recover to requeue. The worker's terminal
// write must be idempotent to absorb the resulting redelivery.
type Consumer interface {
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Recover(ctx context.Context) (int, error)
}

// Delivery is one consumed job together with the raw payload needed to
// acknowledge it.
type Delivery struct {
	Job models.AnalysisJob

	payload string
}

// Config holds Redis connection settings for the queue.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisQueue implements both queue ends over a pair of Redis lists: the
// queue itself plus a processing list holding in-flight deliveries.
type RedisQueue struct {
	client        *redis.Client
	key           string
	processingKey string
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(cfg Config) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = "analysis:jobs"
	}

	return &RedisQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing",
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job models.AnalysisJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks for up to a few seconds waiting for a job, atomically
// moving it onto the processing list. It returns (nil, nil) when no job
// arrived in that window, letting the caller's loop observe context
// cancellation between polls.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	payload, err := q.client.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", 5*time.Second).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	var job models.AnalysisJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// Drop the poison payload so it cannot cycle through Recover forever.
		_ = q.client.LRem(ctx, q.processingKey, 1, payload).Err()
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &Delivery{Job: job, payload: payload}, nil
}

// Ack removes an in-flight delivery from the processing list once its
// terminal state has been written.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, d.payload).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge job: %w", err)
	}
	return nil
}

// Recover moves deliveries a previous run left unacknowledged back onto the
// queue. Called once on worker start, before consuming.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.client.LMove(ctx, q.processingKey, q.key, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to requeue pending job: %w", err)
		}
		moved++
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
