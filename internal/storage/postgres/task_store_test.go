package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

func TestTaskStoreCreateInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStoreWithPool(mock)
	require.NoError(t, err)

	submitted := time.Unix(1700000000, 0).UTC()
	task := scrape.Task{
		ID:        "task-1",
		Source:    "acme",
		Status:    scrape.TaskStatusPending,
		Submitted: submitted,
	}

	mock.ExpectExec("INSERT INTO scrape_tasks").
		WithArgs(task.ID, task.Source, task.Status, 0, 0, submitted, submitted).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateTask(context.Background(), task))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStoreCreateRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStoreWithPool(mock)
	require.NoError(t, err)
	require.Error(t, store.CreateTask(context.Background(), scrape.Task{}))
}

func TestTaskStoreGetTask(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStoreWithPool(mock)
	require.NoError(t, err)

	submitted := time.Unix(1700000000, 0).UTC()
	updated := submitted.Add(time.Minute)
	location := "https://storage.googleapis.com/bucket/exports/task-1.json"

	rows := pgxmock.NewRows([]string{
		"id", "source", "status", "progress", "total_items", "error_text", "challenge_type",
		"rate_limit_reset_at", "export_location", "submitted_at", "completed_at", "updated_at",
	}).AddRow(
		"task-1", "acme", scrape.TaskStatusCompleted, 100, 3, nil, nil,
		nil, &location, submitted, &updated, updated,
	)
	mock.ExpectQuery("SELECT id, source, status").
		WithArgs("task-1").
		WillReturnRows(rows)

	task, err := store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, scrape.TaskStatusCompleted, task.Status)
	require.Equal(t, 100, task.Progress)
	require.Equal(t, location, task.ExportLocation)
	require.Empty(t, task.ErrorText)
	require.NotNil(t, task.Completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStoreGetTaskNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, source, status").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "status", "progress", "total_items", "error_text", "challenge_type",
			"rate_limit_reset_at", "export_location", "submitted_at", "completed_at", "updated_at",
		}))

	_, err = store.GetTask(context.Background(), "missing")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestTaskStoreUpdateBuildsPartialSet(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE scrape_tasks SET updated_at = \$1, status = \$2, progress = \$3 WHERE id = \$4`).
		WithArgs(pgxmock.AnyArg(), scrape.TaskStatusProcessing, 40, "task-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.UpdateTaskStatus(context.Background(), "task-1", scrape.TaskUpdate{
		Status:   scrape.StatusPtr(scrape.TaskStatusProcessing),
		Progress: scrape.IntPtr(40),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStoreUpdateAlwaysBumpsUpdatedAt(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStoreWithPool(mock)
	require.NoError(t, err)

	// An empty update still touches updated_at.
	mock.ExpectExec(`UPDATE scrape_tasks SET updated_at = \$1 WHERE id = \$2`).
		WithArgs(pgxmock.AnyArg(), "task-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateTaskStatus(context.Background(), "task-1", scrape.TaskUpdate{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStoreUpdateMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTaskStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE scrape_tasks").
		WithArgs(pgxmock.AnyArg(), scrape.TaskStatusFailed, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateTaskStatus(context.Background(), "missing", scrape.TaskUpdate{
		Status: scrape.StatusPtr(scrape.TaskStatusFailed),
	})
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestNewTaskStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewTaskStoreWithPool(nil)
	require.Error(t, err)
}
