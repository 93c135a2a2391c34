package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueDeliversJobsInOrder(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()

	var mu sync.Mutex
	var handled []string
	done := make(chan struct{})

	require.NoError(t, q.StartConsumer(func(_ context.Context, job Job) error {
		mu.Lock()
		handled = append(handled, job.CampaignID)
		if len(handled) == 3 {
			close(done)
		}
		mu.Unlock()
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Job{CampaignID: "c1", Kind: JobGenerate}))
	require.NoError(t, q.Publish(ctx, Job{CampaignID: "c2", Kind: JobDispatch}))
	require.NoError(t, q.Publish(ctx, Job{CampaignID: "c3", Kind: JobDispatch}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs not consumed in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c1", "c2", "c3"}, handled)
}

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), Job{CampaignID: "c1", Kind: JobGenerate})
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Close is idempotent.
	assert.NoError(t, q.Close())
}

func TestMemoryQueuePublishHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Job{CampaignID: "c1", Kind: JobGenerate}))

	// Buffer full and no consumer: a cancelled context unblocks Publish.
	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Publish(cancelled, Job{CampaignID: "c2", Kind: JobGenerate})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueueDrainsPendingJobsOnClose(t *testing.T) {
	q := NewMemoryQueue(8)

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Job{CampaignID: "c1", Kind: JobGenerate}))
	require.NoError(t, q.Publish(ctx, Job{CampaignID: "c2", Kind: JobGenerate}))

	var mu sync.Mutex
	var handled []string
	done := make(chan struct{})

	require.NoError(t, q.StartConsumer(func(_ context.Context, job Job) error {
		mu.Lock()
		handled = append(handled, job.CampaignID)
		if len(handled) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	}))
	require.NoError(t, q.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued jobs were dropped on close")
	}
}
