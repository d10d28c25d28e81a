package notify

import (
	"go.uber.org/zap"
)

// Registry is the typed subscription API layered on a Channel. Each helper
// registers a handler for one message kind and returns an unsubscribe
// function that is safe to call more than once.
type Registry struct {
	ch     *Channel
	logger *zap.Logger
}

// NewRegistry wraps the channel.
func NewRegistry(ch *Channel, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{ch: ch, logger: logger}
}

// Subscribe registers a raw handler for one kind.
func (r *Registry) Subscribe(kind Kind, handler Handler) func() {
	return r.ch.Subscribe(kind, handler)
}

// OnTaskUpdate subscribes to task state transitions.
func (r *Registry) OnTaskUpdate(fn func(TaskUpdatePayload)) func() {
	return r.ch.Subscribe(KindTaskUpdate, r.decoding(func(msg Message) error {
		var payload TaskUpdatePayload
		if err := msg.DecodePayload(&payload); err != nil {
			return err
		}
		fn(payload)
		return nil
	}))
}

// OnScrapeUpdate subscribes to per-item progress events.
func (r *Registry) OnScrapeUpdate(fn func(ScrapeUpdatePayload)) func() {
	return r.ch.Subscribe(KindScrapeUpdate, r.decoding(func(msg Message) error {
		var payload ScrapeUpdatePayload
		if err := msg.DecodePayload(&payload); err != nil {
			return err
		}
		fn(payload)
		return nil
	}))
}

// OnNotification subscribes to operator-facing notices.
func (r *Registry) OnNotification(fn func(NotificationPayload)) func() {
	return r.ch.Subscribe(KindNotification, r.decoding(func(msg Message) error {
		var payload NotificationPayload
		if err := msg.DecodePayload(&payload); err != nil {
			return err
		}
		fn(payload)
		return nil
	}))
}

// OnError subscribes to error notices.
func (r *Registry) OnError(fn func(ErrorPayload)) func() {
	return r.ch.Subscribe(KindError, r.decoding(func(msg Message) error {
		var payload ErrorPayload
		if err := msg.DecodePayload(&payload); err != nil {
			return err
		}
		fn(payload)
		return nil
	}))
}

// Last returns the most recent message of any kind, independent of per-kind
// subscriptions.
func (r *Registry) Last() (Message, bool) {
	return r.ch.Last()
}

func (r *Registry) decoding(fn func(Message) error) Handler {
	return func(msg Message) {
		if err := fn(msg); err != nil {
			r.logger.Warn("dropping undecodable payload",
				zap.String("kind", string(msg.Kind)),
				zap.Error(err))
		}
	}
}
