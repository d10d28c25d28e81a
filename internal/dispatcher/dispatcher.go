// Package dispatcher manages worker fan-out over the job queue and the
// submission path that feeds it.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
	"github.com/scrapedeck/scrapedeck/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   scrape.Queue
	tasks   scrape.TaskStore
	clock   scrape.Clock
	ids     scrape.IDGenerator
	workers []*worker.Worker
	logger  *zap.Logger

	events      scrape.Publisher
	eventsTopic string
}

// New creates a Dispatcher.
func New(
	queue scrape.Queue,
	tasks scrape.TaskStore,
	clock scrape.Clock,
	ids scrape.IDGenerator,
	workers []*worker.Worker,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		tasks:   tasks,
		clock:   clock,
		ids:     ids,
		workers: workers,
		logger:  logger,
	}
}

// WithQueueEvents publishes every enqueue to the given topic so out-of-process
// operators can observe submissions and resumes. Publish failures are logged,
// never surfaced to the caller.
func (d *Dispatcher) WithQueueEvents(pub scrape.Publisher, topic string) *Dispatcher {
	d.events = pub
	d.eventsTopic = topic
	return d
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit creates a pending task for the source and enqueues its first job.
func (d *Dispatcher) Submit(ctx context.Context, source string, params scrape.TaskParameters) (scrape.Task, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return scrape.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	now := d.clock.Now()
	task := scrape.Task{
		ID:         id,
		Source:     source,
		Status:     scrape.TaskStatusPending,
		Submitted:  now,
		Updated:    now,
		Parameters: params,
	}
	if err := d.tasks.CreateTask(ctx, task); err != nil {
		return scrape.Task{}, fmt.Errorf("create task: %w", err)
	}
	if err := d.queue.Enqueue(ctx, scrape.QueueItem{
		TaskID:    task.ID,
		Source:    source,
		Params:    params,
		Submitted: now.Unix(),
	}); err != nil {
		return scrape.Task{}, fmt.Errorf("queue enqueue: %w", err)
	}
	d.logger.Info("task submitted", zap.String("task_id", task.ID), zap.String("source", source))
	d.publishQueueEvent(ctx, "submitted", task.ID, source)
	return task, nil
}

// QueueEvent describes one enqueue for external observers.
type QueueEvent struct {
	Event  string `json:"event"`
	TaskID string `json:"task_id"`
	Source string `json:"source"`
}

func (d *Dispatcher) publishQueueEvent(ctx context.Context, event, taskID, source string) {
	if d.events == nil {
		return
	}
	if _, err := d.events.Publish(ctx, d.eventsTopic, QueueEvent{
		Event:  event,
		TaskID: taskID,
		Source: source,
	}); err != nil {
		d.logger.Warn("queue event publish failed",
			zap.String("event", event),
			zap.String("task_id", taskID),
			zap.Error(err))
	}
}

// Resume re-enqueues a task stuck in rate_limited or challenge_required after
// the operator has cleared the external condition. The status is reset to
// pending before the job lands back on the queue.
func (d *Dispatcher) Resume(ctx context.Context, taskID string) error {
	task, err := d.tasks.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	switch task.Status {
	case scrape.TaskStatusRateLimited, scrape.TaskStatusChallengeRequired:
	default:
		return fmt.Errorf("task %s is %s, not resumable", taskID, task.Status)
	}

	if err := d.tasks.UpdateTaskStatus(ctx, taskID, scrape.TaskUpdate{
		Status:        scrape.StatusPtr(scrape.TaskStatusPending),
		ErrorText:     scrape.StringPtr(""),
		ChallengeType: scrape.StringPtr(""),
	}); err != nil {
		return fmt.Errorf("reset task %s: %w", taskID, err)
	}
	if err := d.queue.Enqueue(ctx, scrape.QueueItem{
		TaskID:    task.ID,
		Source:    task.Source,
		Params:    task.Parameters,
		Submitted: d.clock.Now().Unix(),
	}); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	d.logger.Info("task resumed", zap.String("task_id", taskID))
	d.publishQueueEvent(ctx, "resumed", task.ID, task.Source)
	return nil
}
