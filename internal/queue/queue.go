// internal/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/common/metrics"
)

// Dedup keys outlive any realistic retry horizon, then expire so the
// same logical job can be re-issued after an operator replay.
const dedupTTL = 24 * time.Hour

// Job is the envelope stored on the queue lists.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// ParseJobPayload is the payload for proposal parse jobs.
type ParseJobPayload struct {
	ProposalID string `json:"proposalId"`
}

// SendEmailJobPayload is the payload for outbound solicitation jobs.
type SendEmailJobPayload struct {
	LinkID string `json:"linkId"`
}

func dedupKey(jobID string) string {
	return "rfpq:job:" + jobID
}

func pendingKey(queue string) string {
	return "rfpq:" + queue + ":pending"
}

func activeKey(queue string) string {
	return "rfpq:" + queue + ":active"
}

func retryKey(queue string) string {
	return "rfpq:" + queue + ":retry"
}

func deadKey(queue string) string {
	return "rfpq:" + queue + ":dead"
}

// Publisher enqueues jobs with at-most-once semantics per job id: a
// duplicate enqueue within the dedup window is silently dropped.
type Publisher struct {
	rdb *redis.Client
	log logger.Logger
}

func NewPublisher(rdb *redis.Client, log logger.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: log}
}

// Enqueue pushes one job. Returns true when the job was accepted, false
// when the id was already seen.
func (p *Publisher) Enqueue(ctx context.Context, queue, jobID string, payload interface{}) (bool, error) {
	accepted, err := p.rdb.SetNX(ctx, dedupKey(jobID), 1, dedupTTL).Result()
	if err != nil {
		metrics.JobsEnqueued.WithLabelValues(queue, "error").Inc()
		return false, fmt.Errorf("failed to reserve job id %s: %w", jobID, err)
	}
	if !accepted {
		p.log.Debug("Duplicate job dropped", map[string]interface{}{
			"queue":  queue,
			"job_id": jobID,
		})
		metrics.JobsEnqueued.WithLabelValues(queue, "duplicate").Inc()
		return false, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode payload for job %s: %w", jobID, err)
	}
	job := Job{
		ID:         jobID,
		Queue:      queue,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to encode job %s: %w", jobID, err)
	}

	if err := p.rdb.LPush(ctx, pendingKey(queue), data).Err(); err != nil {
		metrics.JobsEnqueued.WithLabelValues(queue, "error").Inc()
		return false, fmt.Errorf("failed to push job %s: %w", jobID, err)
	}

	metrics.JobsEnqueued.WithLabelValues(queue, "accepted").Inc()
	p.log.Info("Job enqueued", map[string]interface{}{
		"queue":  queue,
		"job_id": jobID,
	})
	return true, nil
}

// EnqueueParse enqueues the parse job for a proposal. The job id is
// derived from the proposal id, which is what makes dispatch idempotent:
// re-ingesting the same proposal cannot double-enqueue.
func (p *Publisher) EnqueueParse(ctx context.Context, queue, proposalID string) (bool, error) {
	return p.Enqueue(ctx, queue, "parse_"+proposalID, ParseJobPayload{ProposalID: proposalID})
}

// EnqueueSendEmail enqueues the outbound solicitation job for one
// correspondence link.
func (p *Publisher) EnqueueSendEmail(ctx context.Context, queue, linkID string) (bool, error) {
	return p.Enqueue(ctx, queue, "send_"+linkID, SendEmailJobPayload{LinkID: linkID})
}
