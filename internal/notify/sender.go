package notify

import (
	"context"
	"fmt"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

// Sender adapts a Channel to the scrape.Publisher interface so workers can
// emit status transitions without depending on the wire format. The topic is
// the message kind.
type Sender struct {
	ch    *Channel
	clock scrape.Clock
}

// NewSender builds a Sender over the channel.
func NewSender(ch *Channel, clock scrape.Clock) *Sender {
	return &Sender{ch: ch, clock: clock}
}

// Publish wraps payload in a Message of the kind named by topic and sends it.
// Sends while disconnected are dropped by the channel; the caller decides
// whether that matters (the worker logs and moves on, since clients reconcile
// by re-fetching task state on reconnect).
func (s *Sender) Publish(ctx context.Context, topic string, payload any) (string, error) {
	msg, err := NewMessage(Kind(topic), payload, s.clock.Now())
	if err != nil {
		return "", fmt.Errorf("build notification: %w", err)
	}
	if err := s.ch.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("send notification: %w", err)
	}
	return string(msg.Kind), nil
}
