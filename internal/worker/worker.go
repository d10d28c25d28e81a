// Package worker implements the scrape pipeline execution loop.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/scrapedeck/scrapedeck/internal/export"
	"github.com/scrapedeck/scrapedeck/internal/metrics"
	"github.com/scrapedeck/scrapedeck/internal/notify"
	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

// Config controls Worker behavior.
type Config struct {
	ExportPrefix    string
	ContentType     string
	MaxRedeliveries int
}

// Worker consumes queue items and drives tasks through the status state
// machine: pending → processing → completed | failed | rate_limited |
// challenge_required.
type Worker struct {
	queue     scrape.Queue
	tasks     scrape.TaskStore
	results   scrape.ResultStore
	blobs     scrape.BlobStore
	publisher scrape.Publisher
	adapter   scrape.Adapter
	hasher    scrape.Hasher
	clock     scrape.Clock
	ids       scrape.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue scrape.Queue,
	tasks scrape.TaskStore,
	results scrape.ResultStore,
	blobs scrape.BlobStore,
	publisher scrape.Publisher,
	adapter scrape.Adapter,
	hasher scrape.Hasher,
	clock scrape.Clock,
	ids scrape.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	return &Worker{
		queue:     queue,
		tasks:     tasks,
		results:   results,
		blobs:     blobs,
		publisher: publisher,
		adapter:   adapter,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes. One job is
// processed to completion at a time; retryable failures are handed back to
// the queue for redelivery up to the configured ceiling.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("task_id", item.TaskID), zap.Int("attempt", item.Attempt))

		if err := w.ProcessJob(ctx, item); err != nil {
			if Retryable(err) && item.Attempt < w.cfg.MaxRedeliveries {
				item.Attempt++
				if enqErr := w.queue.Enqueue(ctx, item); enqErr != nil {
					w.logger.Error("redelivery enqueue failed",
						zap.String("task_id", item.TaskID), zap.Error(enqErr))
				}
				continue
			}
			w.logger.Error("job processing failed",
				zap.String("task_id", item.TaskID),
				zap.Int("attempt", item.Attempt),
				zap.Bool("retryable", Retryable(err)),
				zap.Error(err))
		}
	}
}

// ProcessJob runs one processing attempt for a dequeued job. Tasks already
// in a terminal state are treated as a fast-success no-op so queue
// redelivery cannot duplicate side effects.
func (w *Worker) ProcessJob(ctx context.Context, item scrape.QueueItem) (err error) {
	start := w.clock.Now()
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	task, err := w.tasks.GetTask(ctx, item.TaskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", item.TaskID, err)
	}
	if task.Status.IsTerminal() {
		w.logger.Info("skipping redelivered job for terminal task",
			zap.String("task_id", item.TaskID),
			zap.String("status", string(task.Status)))
		return nil
	}

	// The processing write lands before any adapter work so a crash leaves
	// the task visibly in progress instead of silently pending forever.
	if err := w.transition(ctx, item.TaskID, scrape.TaskUpdate{
		Status:    scrape.StatusPtr(scrape.TaskStatusProcessing),
		ErrorText: scrape.StringPtr(""),
	}); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during processing: %v", r)
			w.recordFailure(ctx, item.TaskID, err.Error())
		}
		if err == nil {
			return
		}
		metrics.ObserveTask(statusForError(err), w.clock.Now().Sub(start))
	}()

	outcome, err := w.invokeAdapter(ctx, item)
	if err != nil {
		w.recordFailure(ctx, item.TaskID, err.Error())
		return fmt.Errorf("adapter invocation: %w", err)
	}

	switch {
	case outcome.ChallengeRequired:
		// Expected terminal-for-this-attempt outcome; nothing raised to the
		// queue. An operator resolves the challenge and re-enqueues.
		if err := w.transition(ctx, item.TaskID, scrape.TaskUpdate{
			Status:        scrape.StatusPtr(scrape.TaskStatusChallengeRequired),
			ChallengeType: scrape.StringPtr(outcome.ChallengeType),
		}); err != nil {
			return err
		}
		metrics.ObserveTask(string(scrape.TaskStatusChallengeRequired), w.clock.Now().Sub(start))
		return nil

	case outcome.RateLimited:
		if err := w.transition(ctx, item.TaskID, scrape.TaskUpdate{
			Status:           scrape.StatusPtr(scrape.TaskStatusRateLimited),
			RateLimitResetAt: scrape.TimePtr(outcome.RateLimitResetAt),
		}); err != nil {
			return err
		}
		return &RetryableError{Err: fmt.Errorf("source rate limited until %s", outcome.RateLimitResetAt)}

	case outcome.ErrorText != "":
		w.recordFailure(ctx, item.TaskID, outcome.ErrorText)
		return fmt.Errorf("adapter error: %s", outcome.ErrorText)
	}

	if err := w.complete(ctx, item, outcome.Posts); err != nil {
		w.recordFailure(ctx, item.TaskID, err.Error())
		return err
	}
	metrics.ObserveTask(string(scrape.TaskStatusCompleted), w.clock.Now().Sub(start))
	return nil
}

// invokeAdapter runs the scrape with a progress callback that persists each
// increment before the adapter may continue. A mutex serializes callbacks so
// a concurrent adapter cannot make persisted progress regress.
func (w *Worker) invokeAdapter(ctx context.Context, item scrape.QueueItem) (scrape.Outcome, error) {
	var progressMu sync.Mutex
	onProgress := func(progress, totalItems int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if err := w.tasks.UpdateTaskStatus(ctx, item.TaskID, scrape.TaskUpdate{
			Progress:   scrape.IntPtr(progress),
			TotalItems: scrape.IntPtr(totalItems),
		}); err != nil {
			w.logger.Error("persist progress failed",
				zap.String("task_id", item.TaskID), zap.Error(err))
			return
		}
		w.publish(ctx, notify.KindScrapeUpdate, notify.ScrapeUpdatePayload{
			TaskID:     item.TaskID,
			Progress:   progress,
			TotalItems: totalItems,
		})
	}
	outcome, err := w.adapter.Scrape(ctx, item.Source, item.Params, onProgress)
	if err != nil {
		return scrape.Outcome{}, fmt.Errorf("scrape %s: %w", item.Source, err)
	}
	return outcome, nil
}

// complete appends the result rows, writes the export bundle, and moves the
// task to completed. The export key derives from the task ID, so a rerun
// overwrites the same object instead of creating a new one.
func (w *Worker) complete(ctx context.Context, item scrape.QueueItem, posts []scrape.ResultItem) error {
	for i := range posts {
		posts[i].TaskID = item.TaskID
		if posts[i].ID == "" {
			id, err := w.ids.NewID()
			if err != nil {
				return fmt.Errorf("generate result id: %w", err)
			}
			posts[i].ID = id
		}
		if err := w.results.AppendResult(ctx, posts[i]); err != nil {
			return fmt.Errorf("append result %s: %w", posts[i].ID, err)
		}
	}
	metrics.ObserveResultItems(len(posts))

	now := w.clock.Now()
	_, data, err := export.Build(item.TaskID, item.Source, posts, now, w.hasher)
	if err != nil {
		return fmt.Errorf("build export bundle: %w", err)
	}
	key := export.Key(w.cfg.ExportPrefix, item.TaskID)
	location, err := w.blobs.PutObject(ctx, key, w.cfg.ContentType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write export bundle: %w", err)
	}

	if err := w.transition(ctx, item.TaskID, scrape.TaskUpdate{
		Status:         scrape.StatusPtr(scrape.TaskStatusCompleted),
		Progress:       scrape.IntPtr(100),
		TotalItems:     scrape.IntPtr(len(posts)),
		ExportLocation: scrape.StringPtr(location),
		CompletedAt:    scrape.TimePtr(now),
	}); err != nil {
		return err
	}
	w.logger.Info("task completed",
		zap.String("task_id", item.TaskID),
		zap.Int("items", len(posts)),
		zap.String("export_location", location))
	return nil
}

// transition persists a status update and then publishes the matching
// notification. Store write first; the publish is best-effort and clients
// reconcile by re-fetching task state after a gap.
func (w *Worker) transition(ctx context.Context, taskID string, update scrape.TaskUpdate) error {
	if err := w.tasks.UpdateTaskStatus(ctx, taskID, update); err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	payload := notify.TaskUpdatePayload{TaskID: taskID}
	if update.Status != nil {
		payload.Status = *update.Status
	}
	if update.Progress != nil {
		payload.Progress = *update.Progress
	}
	if update.TotalItems != nil {
		payload.TotalItems = *update.TotalItems
	}
	if update.ErrorText != nil {
		payload.ErrorText = *update.ErrorText
	}
	if update.ChallengeType != nil {
		payload.ChallengeType = *update.ChallengeType
	}
	payload.RateLimitResetAt = update.RateLimitResetAt
	if update.ExportLocation != nil {
		payload.ExportLocation = *update.ExportLocation
	}
	w.publish(ctx, notify.KindTaskUpdate, payload)
	return nil
}

// recordFailure moves the task to failed with the error text. Failures to
// persist the failure are logged; the original error stays the caller's.
func (w *Worker) recordFailure(ctx context.Context, taskID, errText string) {
	if err := w.tasks.UpdateTaskStatus(ctx, taskID, scrape.TaskUpdate{
		Status:    scrape.StatusPtr(scrape.TaskStatusFailed),
		ErrorText: scrape.StringPtr(errText),
	}); err != nil {
		w.logger.Error("record failure failed",
			zap.String("task_id", taskID), zap.Error(err))
		return
	}
	w.publish(ctx, notify.KindTaskUpdate, notify.TaskUpdatePayload{
		TaskID:    taskID,
		Status:    scrape.TaskStatusFailed,
		ErrorText: errText,
	})
}

func (w *Worker) publish(ctx context.Context, kind notify.Kind, payload any) {
	if w.publisher == nil {
		return
	}
	if _, err := w.publisher.Publish(ctx, string(kind), payload); err != nil {
		w.logger.Warn("notification publish failed",
			zap.String("kind", string(kind)), zap.Error(err))
	}
}

func statusForError(err error) string {
	if Retryable(err) {
		return string(scrape.TaskStatusRateLimited)
	}
	return string(scrape.TaskStatusFailed)
}
