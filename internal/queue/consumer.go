// internal/queue/consumer.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	commonerrors "rfp-pipeline/internal/common/errors"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/common/metrics"
)

// Handler processes one job. Returning a retryable error reschedules the
// job with backoff; a non-retryable error dead-letters it immediately.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

type ConsumerConfig struct {
	Queue       string
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	// BlockTimeout bounds each blocking pop so shutdown is responsive.
	BlockTimeout time.Duration
}

// Consumer drains one queue with a pool of workers. Jobs move from the
// pending list to an active list while in flight, to a retry set on
// transient failure, and to a dead list once attempts are exhausted. The
// dead list is retained for inspection, never trimmed here.
type Consumer struct {
	rdb     *redis.Client
	cfg     ConsumerConfig
	handler Handler
	log     logger.Logger
}

func NewConsumer(rdb *redis.Client, cfg ConsumerConfig, handler Handler, log logger.Logger) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	return &Consumer{rdb: rdb, cfg: cfg, handler: handler, log: log}
}

// Run blocks until ctx is cancelled, processing jobs with the configured
// worker pool alongside the retry promoter.
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.workLoop(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.promoteLoop(ctx)
	}()
	wg.Wait()
}

func (c *Consumer) workLoop(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := c.rdb.BRPopLPush(ctx, pendingKey(c.cfg.Queue), activeKey(c.cfg.Queue), c.cfg.BlockTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error("Queue pop failed", map[string]interface{}{
				"queue": c.cfg.Queue,
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		c.processOne(ctx, raw)
	}
}

func (c *Consumer) processOne(ctx context.Context, raw string) {
	defer c.rdb.LRem(context.WithoutCancel(ctx), activeKey(c.cfg.Queue), 1, raw)

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.log.Error("Malformed job dead-lettered", map[string]interface{}{
			"queue": c.cfg.Queue,
			"error": err.Error(),
		})
		c.deadLetter(ctx, raw, "malformed job envelope")
		return
	}

	start := time.Now()
	err := c.handler.Handle(ctx, &job)
	metrics.JobDuration.WithLabelValues(c.cfg.Queue).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.JobsCompleted.WithLabelValues(c.cfg.Queue).Inc()
		c.log.Info("Job completed", map[string]interface{}{
			"queue":    c.cfg.Queue,
			"job_id":   job.ID,
			"attempts": job.Attempts + 1,
			"duration": time.Since(start).String(),
		})
		return
	}

	code := commonerrors.CodeOf(err)
	metrics.JobsFailed.WithLabelValues(c.cfg.Queue, string(code)).Inc()

	if !commonerrors.IsRetryable(err) {
		c.log.Error("Job failed terminally", map[string]interface{}{
			"queue":  c.cfg.Queue,
			"job_id": job.ID,
			"code":   string(code),
			"error":  err.Error(),
		})
		c.deadLetter(ctx, raw, err.Error())
		return
	}

	job.Attempts++
	if job.Attempts >= c.cfg.MaxAttempts {
		c.log.Error("Job exhausted retries", map[string]interface{}{
			"queue":    c.cfg.Queue,
			"job_id":   job.ID,
			"attempts": job.Attempts,
			"error":    err.Error(),
		})
		data, _ := json.Marshal(job)
		c.deadLetter(ctx, string(data), err.Error())
		return
	}

	delay := backoffDelay(c.cfg.BackoffBase, job.Attempts)
	data, _ := json.Marshal(job)
	due := float64(time.Now().Add(delay).UnixMilli())
	if zerr := c.rdb.ZAdd(context.WithoutCancel(ctx), retryKey(c.cfg.Queue), redis.Z{Score: due, Member: string(data)}).Err(); zerr != nil {
		c.log.Error("Failed to schedule retry, job lost from retry set", map[string]interface{}{
			"queue":  c.cfg.Queue,
			"job_id": job.ID,
			"error":  zerr.Error(),
		})
		return
	}
	c.log.Warn("Job scheduled for retry", map[string]interface{}{
		"queue":    c.cfg.Queue,
		"job_id":   job.ID,
		"attempts": job.Attempts,
		"delay":    delay.String(),
		"error":    err.Error(),
	})
}

func (c *Consumer) deadLetter(ctx context.Context, raw, reason string) {
	metrics.JobsDeadLettered.WithLabelValues(c.cfg.Queue).Inc()
	entry, _ := json.Marshal(map[string]interface{}{
		"job":      json.RawMessage(raw),
		"reason":   reason,
		"failedAt": time.Now().UTC(),
	})
	if err := c.rdb.LPush(context.WithoutCancel(ctx), deadKey(c.cfg.Queue), entry).Err(); err != nil {
		c.log.Error("Failed to write dead letter", map[string]interface{}{
			"queue": c.cfg.Queue,
			"error": err.Error(),
		})
	}
}

// promoteLoop moves due retries back onto the pending list. ZRem gates
// the push, so concurrent promoters cannot double-deliver one entry.
func (c *Consumer) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.promoteDue(ctx)
		}
	}
}

func (c *Consumer) promoteDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := c.rdb.ZRangeByScore(ctx, retryKey(c.cfg.Queue), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("Retry promotion scan failed", map[string]interface{}{
				"queue": c.cfg.Queue,
				"error": err.Error(),
			})
		}
		return
	}
	for _, member := range due {
		removed, err := c.rdb.ZRem(ctx, retryKey(c.cfg.Queue), member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := c.rdb.LPush(ctx, pendingKey(c.cfg.Queue), member).Err(); err != nil {
			c.log.Error("Failed to promote retry", map[string]interface{}{
				"queue": c.cfg.Queue,
				"error": err.Error(),
			})
		}
	}
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
}

// DeadLetters returns up to limit entries from the dead list, newest
// first, for the operational endpoint.
func DeadLetters(ctx context.Context, rdb *redis.Client, queue string, limit int64) ([]string, error) {
	entries, err := rdb.LRange(ctx, deadKey(queue), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters for %s: %w", queue, err)
	}
	return entries, nil
}
