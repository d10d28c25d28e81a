// Package scrape defines core types shared across subsystems.
package scrape

import (
	"time"
)

// TaskStatus represents the lifecycle state of a scrape task.
type TaskStatus string

// Task status values persisted in the task store.
const (
	TaskStatusPending           TaskStatus = "pending"
	TaskStatusProcessing        TaskStatus = "processing"
	TaskStatusCompleted         TaskStatus = "completed"
	TaskStatusFailed            TaskStatus = "failed"
	TaskStatusRateLimited       TaskStatus = "rate_limited"
	TaskStatusChallengeRequired TaskStatus = "challenge_required"
)

// IsTerminal reports whether the status never changes again within this
// processing attempt. rate_limited and challenge_required are terminal for
// the attempt but may be resumed by an external re-enqueue.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// TaskParameters captures per-task configuration knobs requested by the client.
type TaskParameters struct {
	MaxPosts       int               `json:"max_posts"`
	IncludeStories bool              `json:"include_stories"`
	Tags           map[string]string `json:"tags"`
}

// Task represents the metadata persisted for each submitted scrape request.
type Task struct {
	ID               string         `json:"id"`
	Source           string         `json:"source"`
	Status           TaskStatus     `json:"status"`
	Progress         int            `json:"progress"`
	TotalItems       int            `json:"total_items"`
	ErrorText        string         `json:"error_text,omitempty"`
	ChallengeType    string         `json:"challenge_type,omitempty"`
	RateLimitResetAt *time.Time     `json:"rate_limit_reset_at,omitempty"`
	ExportLocation   string         `json:"export_location,omitempty"`
	Submitted        time.Time      `json:"submitted_at"`
	Completed        *time.Time     `json:"completed_at,omitempty"`
	Updated          time.Time      `json:"updated_at"`
	Parameters       TaskParameters `json:"parameters"`
}

// TaskUpdate is a partial update merged into the persisted task row. Nil
// fields are left untouched; the store always bumps updated_at.
type TaskUpdate struct {
	Status           *TaskStatus
	Progress         *int
	TotalItems       *int
	ErrorText        *string
	ChallengeType    *string
	RateLimitResetAt *time.Time
	ExportLocation   *string
	CompletedAt      *time.Time
}

// ResultItem is one scraped post belonging to exactly one task. Rows are
// append-only; this pipeline never updates or deletes them.
type ResultItem struct {
	ID            string `json:"id"`
	TaskID        string `json:"task_id"`
	URL           string `json:"url"`
	Caption       string `json:"caption"`
	LikesCount    int    `json:"likes_count"`
	CommentsCount int    `json:"comments_count"`
}

// Outcome is the result of one adapter invocation. Exactly one of the four
// shapes is populated per call, checked in the order challenge, rate limit,
// error, posts.
type Outcome struct {
	ChallengeRequired bool
	ChallengeType     string

	RateLimited      bool
	RateLimitResetAt time.Time

	ErrorText string

	Posts []ResultItem
}

// QueueItem wraps a task ready to run.
type QueueItem struct {
	TaskID    string
	Source    string
	Params    TaskParameters
	Attempt   int
	Submitted int64
}

// StatusUpdateHelpers below keep partial-update construction readable at call
// sites; the store treats absent pointers as "leave as is".

// StatusPtr returns a pointer to the given status.
func StatusPtr(s TaskStatus) *TaskStatus { return &s }

// IntPtr returns a pointer to the given int.
func IntPtr(i int) *int { return &i }

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string { return &s }

// TimePtr returns a pointer to the given time.
func TimePtr(t time.Time) *time.Time { return &t }
