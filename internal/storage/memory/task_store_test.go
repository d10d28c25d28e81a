package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

func TestTaskStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	task := scrape.Task{ID: "task-1", Source: "acme", Status: scrape.TaskStatusPending}
	require.NoError(t, store.CreateTask(context.Background(), task))
	require.Error(t, store.CreateTask(context.Background(), task))

	got, err := store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, scrape.TaskStatusPending, got.Status)

	_, err = store.GetTask(context.Background(), "missing")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestTaskStorePartialUpdate(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	require.NoError(t, store.CreateTask(context.Background(), scrape.Task{
		ID:     "task-1",
		Source: "acme",
		Status: scrape.TaskStatusPending,
	}))

	require.NoError(t, store.UpdateTaskStatus(context.Background(), "task-1", scrape.TaskUpdate{
		Status:   scrape.StatusPtr(scrape.TaskStatusProcessing),
		Progress: scrape.IntPtr(30),
	}))
	got, err := store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, scrape.TaskStatusProcessing, got.Status)
	require.Equal(t, 30, got.Progress)
	require.False(t, got.Updated.IsZero())

	// Fields absent from the update stay untouched.
	require.NoError(t, store.UpdateTaskStatus(context.Background(), "task-1", scrape.TaskUpdate{
		TotalItems: scrape.IntPtr(5),
	}))
	got, err = store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, scrape.TaskStatusProcessing, got.Status)
	require.Equal(t, 30, got.Progress)
	require.Equal(t, 5, got.TotalItems)

	reset := time.Unix(5000, 0).UTC()
	require.NoError(t, store.UpdateTaskStatus(context.Background(), "task-1", scrape.TaskUpdate{
		Status:           scrape.StatusPtr(scrape.TaskStatusRateLimited),
		RateLimitResetAt: scrape.TimePtr(reset),
	}))
	got, err = store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.NotNil(t, got.RateLimitResetAt)
	require.Equal(t, reset, *got.RateLimitResetAt)

	require.ErrorIs(t, store.UpdateTaskStatus(context.Background(), "missing", scrape.TaskUpdate{}), scrape.ErrNotFound)
}

func TestResultStoreAppendOnly(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	require.NoError(t, store.AppendResult(context.Background(), scrape.ResultItem{ID: "p1", TaskID: "task-1"}))
	require.NoError(t, store.AppendResult(context.Background(), scrape.ResultItem{ID: "p2", TaskID: "task-1"}))
	require.NoError(t, store.AppendResult(context.Background(), scrape.ResultItem{ID: "p3", TaskID: "task-2"}))

	items, err := store.ListResults(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "p1", items[0].ID)
	require.Equal(t, "p2", items[1].ID)

	other, err := store.ListResults(context.Background(), "task-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
}
