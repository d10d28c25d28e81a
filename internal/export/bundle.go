// Package export builds the durable artifact for completed tasks.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

// Bundle is the export artifact summarizing a completed task's results.
type Bundle struct {
	TaskID      string              `json:"task_id"`
	Source      string              `json:"source"`
	Items       []scrape.ResultItem `json:"items"`
	GeneratedAt time.Time           `json:"generated_at"`
	Checksum    string              `json:"checksum,omitempty"`
}

// Key derives the sink object key from the task identifier. The derivation
// is deterministic so re-writes on redelivery overwrite the same object.
func Key(prefix, taskID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s.json", taskID)
	}
	return fmt.Sprintf("%s/%s.json", prefix, taskID)
}

// Build assembles a bundle and stamps it with a content checksum.
func Build(taskID, source string, items []scrape.ResultItem, at time.Time, hasher scrape.Hasher) (Bundle, []byte, error) {
	b := Bundle{
		TaskID:      taskID,
		Source:      source,
		Items:       items,
		GeneratedAt: at,
	}
	body, err := json.Marshal(b)
	if err != nil {
		return Bundle{}, nil, fmt.Errorf("marshal bundle: %w", err)
	}
	if hasher != nil {
		sum, err := hasher.Hash(body)
		if err != nil {
			return Bundle{}, nil, fmt.Errorf("hash bundle: %w", err)
		}
		b.Checksum = sum
	}
	data, err := json.Marshal(b)
	if err != nil {
		return Bundle{}, nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return b, data, nil
}
