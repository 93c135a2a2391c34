// Package queue carries campaign jobs from the HTTP layer to the dispatch
// workers. Production runs on RabbitMQ; tests and single-binary setups use
// the in-memory implementation.
package queue

import (
	"context"
	"errors"
)

// JobKind selects what the worker does with a campaign.
type JobKind string

const (
	// JobGenerate runs batch content generation for a campaign.
	JobGenerate JobKind = "generate"
	// JobDispatch sends the campaign's generated content.
	JobDispatch JobKind = "dispatch"
)

// Job is one unit of campaign work. Test sends never go through the
// queue; they run synchronously in the request handler.
type Job struct {
	CampaignID string  `json:"campaign_id"`
	Kind       JobKind `json:"kind"`
}

// Handler processes one job. Returning an error only logs; jobs are not
// redelivered because campaign state transitions make re-runs no-ops.
type Handler func(ctx context.Context, job Job) error

// ErrQueueClosed is returned by Publish after Close.
var ErrQueueClosed = errors.New("job queue closed")

// JobQueue decouples job submission from execution.
type JobQueue interface {
	// Publish enqueues a job for asynchronous processing.
	Publish(ctx context.Context, job Job) error
	// StartConsumer begins delivering jobs to the handler until Close.
	StartConsumer(handler Handler) error
	// Close stops the consumer and releases resources.
	Close() error
}
