package scrape

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by stores when a task does not exist.
var ErrNotFound = errors.New("task not found")

// TaskStore persists task lifecycle state.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, update TaskUpdate) error
}

// ResultStore appends scraped result items.
type ResultStore interface {
	AppendResult(ctx context.Context, item ResultItem) error
	ListResults(ctx context.Context, taskID string) ([]ResultItem, error)
}

// BlobStore writes export artifacts and resolves their external location.
// PutObject is an idempotent overwrite keyed by path; Resolve derives the
// externally reachable URI from configuration, not from server responses.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	Resolve(path string) string
}

// ProgressFunc receives adapter progress increments. Implementations persist
// synchronously; the adapter must not continue until the call returns.
type ProgressFunc func(progress int, totalItems int)

// Adapter performs the actual scrape against the external source.
type Adapter interface {
	Scrape(ctx context.Context, source string, params TaskParameters, onProgress ProgressFunc) (Outcome, error)
}

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes status transition events to the notification side.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for export bundle integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task and result IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
