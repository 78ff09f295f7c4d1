package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/jobs"
)

func TestQueue_PublishAndConsume(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	var mu sync.Mutex
	handled := make(map[string]bool)
	done := make(chan struct{}, 3)

	err := q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		handled[job.GetID()] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	for _, user := range []string{"user-1", "user-2", "user-3"} {
		err := q.PublishProcessMailbox(context.Background(), &jobs.ProcessMailboxJob{
			JobID:  "job-" + user,
			UserID: user,
		})
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	assert.Len(t, handled, 3)
	mu.Unlock()
}

func TestQueue_PublishDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	job := &jobs.ProcessMailboxJob{UserID: "user-1"}
	require.NoError(t, q.PublishProcessMailbox(context.Background(), job))

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.False(t, job.Timestamp.IsZero())
	assert.Equal(t, 3, job.MaxRetries)

	saved, err := store.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", saved.UserID)
}

func TestQueue_ClosedRejectsPublish(t *testing.T) {
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Close())

	err := q.PublishProcessMailbox(context.Background(), &jobs.ProcessMailboxJob{UserID: "user-1"})
	assert.Error(t, err)
}

func TestStore_ListJobsFilters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveJob(ctx, &jobs.ProcessMailboxJob{JobID: "a", UserID: "user-1", Status: jobs.JobStatusPending}))
	require.NoError(t, store.SaveJob(ctx, &jobs.ProcessMailboxJob{JobID: "b", UserID: "user-1", Status: jobs.JobStatusCompleted}))
	require.NoError(t, store.SaveJob(ctx, &jobs.ProcessMailboxJob{JobID: "c", UserID: "user-2", Status: jobs.JobStatusPending}))

	byUser, err := store.ListJobs(ctx, jobs.JobFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byStatus, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusPending})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)
}
