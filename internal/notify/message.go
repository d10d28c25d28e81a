// Package notify implements the persistent duplex notification channel and
// the typed subscription API layered on top of it.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

// Kind identifies the payload shape carried by a Message. The set is closed;
// inbound messages with any other kind are dropped at the parse boundary.
type Kind string

// Supported message kinds.
const (
	KindTaskUpdate   Kind = "task_update"
	KindScrapeUpdate Kind = "scrape_update"
	KindNotification Kind = "notification"
	KindError        Kind = "error"
)

// ValidKind reports whether k belongs to the closed kind set.
func ValidKind(k Kind) bool {
	switch k {
	case KindTaskUpdate, KindScrapeUpdate, KindNotification, KindError:
		return true
	default:
		return false
	}
}

// Message is the wire unit exchanged over the channel. Every message carries
// exactly one kind and a payload whose shape is determined by that kind.
type Message struct {
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TaskUpdatePayload mirrors a persisted task state transition.
type TaskUpdatePayload struct {
	TaskID           string            `json:"task_id"`
	Status           scrape.TaskStatus `json:"status"`
	Progress         int               `json:"progress"`
	TotalItems       int               `json:"total_items"`
	ErrorText        string            `json:"error_text,omitempty"`
	ChallengeType    string            `json:"challenge_type,omitempty"`
	RateLimitResetAt *time.Time        `json:"rate_limit_reset_at,omitempty"`
	ExportLocation   string            `json:"export_location,omitempty"`
}

// ScrapeUpdatePayload reports per-item scrape progress.
type ScrapeUpdatePayload struct {
	TaskID     string `json:"task_id"`
	Progress   int    `json:"progress"`
	TotalItems int    `json:"total_items"`
}

// NotificationPayload carries free-form operator-facing notices.
type NotificationPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// ErrorPayload carries channel- or server-side error notices.
type ErrorPayload struct {
	Code string `json:"code,omitempty"`
	Text string `json:"text"`
}

// NewMessage builds a Message of the given kind around the payload.
func NewMessage(kind Kind, payload any, ts time.Time) (Message, error) {
	if !ValidKind(kind) {
		return Message{}, fmt.Errorf("unknown message kind %q", kind)
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		raw = data
	}
	return Message{Kind: kind, Payload: raw, Timestamp: ts}, nil
}

// ParseMessage decodes wire bytes into a Message and validates the kind.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if !ValidKind(msg.Kind) {
		return Message{}, fmt.Errorf("unknown message kind %q", msg.Kind)
	}
	return msg, nil
}

// DecodePayload unmarshals the kind-specific payload into dst.
func (m Message) DecodePayload(dst any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", m.Kind)
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Kind, err)
	}
	return nil
}
