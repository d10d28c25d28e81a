// Package memory provides in-memory stores for development/testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

// TaskStore keeps task rows in a map, applying partial updates the way the
// relational store does.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]scrape.Task
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]scrape.Task)}
}

// CreateTask stores a new task in pending status.
func (s *TaskStore) CreateTask(_ context.Context, task scrape.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return errors.New("task already exists")
	}
	s.tasks[task.ID] = task
	return nil
}

// GetTask fetches a task by ID.
func (s *TaskStore) GetTask(_ context.Context, taskID string) (scrape.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return scrape.Task{}, scrape.ErrNotFound
	}
	return task, nil
}

// UpdateTaskStatus merges the partial update into the stored row and bumps
// updated_at.
func (s *TaskStore) UpdateTaskStatus(_ context.Context, taskID string, update scrape.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return scrape.ErrNotFound
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.Progress != nil {
		task.Progress = *update.Progress
	}
	if update.TotalItems != nil {
		task.TotalItems = *update.TotalItems
	}
	if update.ErrorText != nil {
		task.ErrorText = *update.ErrorText
	}
	if update.ChallengeType != nil {
		task.ChallengeType = *update.ChallengeType
	}
	if update.RateLimitResetAt != nil {
		task.RateLimitResetAt = update.RateLimitResetAt
	}
	if update.ExportLocation != nil {
		task.ExportLocation = *update.ExportLocation
	}
	if update.CompletedAt != nil {
		task.Completed = update.CompletedAt
	}
	task.Updated = time.Now().UTC()
	s.tasks[taskID] = task
	return nil
}

// ResultStore appends result rows in memory.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string][]scrape.ResultItem
}

// NewResultStore constructs a ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string][]scrape.ResultItem)}
}

// AppendResult appends one result row for a task.
func (s *ResultStore) AppendResult(_ context.Context, item scrape.ResultItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[item.TaskID] = append(s.results[item.TaskID], item)
	return nil
}

// ListResults returns all recorded results for a task.
func (s *ResultStore) ListResults(_ context.Context, taskID string) ([]scrape.ResultItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.results[taskID]
	out := make([]scrape.ResultItem, len(items))
	copy(out, items)
	return out, nil
}
