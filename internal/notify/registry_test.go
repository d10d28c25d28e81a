package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_TypedSubscriptions(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	ch := newTestChannel(t, transport, Config{})
	require.NoError(t, ch.Connect(context.Background()))
	reg := NewRegistry(ch, zap.NewNop())

	tasks := make(chan TaskUpdatePayload, 2)
	reg.OnTaskUpdate(func(p TaskUpdatePayload) { tasks <- p })
	progress := make(chan ScrapeUpdatePayload, 2)
	reg.OnScrapeUpdate(func(p ScrapeUpdatePayload) { progress <- p })
	notices := make(chan NotificationPayload, 2)
	reg.OnNotification(func(p NotificationPayload) { notices <- p })
	errs := make(chan ErrorPayload, 2)
	reg.OnError(func(p ErrorPayload) { errs <- p })

	conn := transport.conn(0)
	conn.deliver(frame(t, KindTaskUpdate, TaskUpdatePayload{TaskID: "task-1", Progress: 50}))
	conn.deliver(frame(t, KindScrapeUpdate, ScrapeUpdatePayload{TaskID: "task-1", Progress: 50, TotalItems: 4}))
	conn.deliver(frame(t, KindNotification, NotificationPayload{Level: "info", Text: "hello"}))
	conn.deliver(frame(t, KindError, ErrorPayload{Code: "oops", Text: "bad"}))

	select {
	case p := <-tasks:
		require.Equal(t, "task-1", p.TaskID)
		require.Equal(t, 50, p.Progress)
	case <-time.After(time.Second):
		t.Fatal("task update not delivered")
	}
	select {
	case p := <-progress:
		require.Equal(t, 4, p.TotalItems)
	case <-time.After(time.Second):
		t.Fatal("scrape update not delivered")
	}
	select {
	case p := <-notices:
		require.Equal(t, "hello", p.Text)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
	select {
	case p := <-errs:
		require.Equal(t, "oops", p.Code)
	case <-time.After(time.Second):
		t.Fatal("error notice not delivered")
	}
}

func TestRegistry_UnsubscribeTwiceIsNoOp(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	ch := newTestChannel(t, transport, Config{})
	require.NoError(t, ch.Connect(context.Background()))
	reg := NewRegistry(ch, zap.NewNop())

	removed := make(chan TaskUpdatePayload, 2)
	unsub := reg.OnTaskUpdate(func(p TaskUpdatePayload) { removed <- p })
	kept := make(chan TaskUpdatePayload, 2)
	reg.OnTaskUpdate(func(p TaskUpdatePayload) { kept <- p })

	unsub()
	unsub()

	transport.conn(0).deliver(frame(t, KindTaskUpdate, TaskUpdatePayload{TaskID: "task-1"}))
	select {
	case <-kept:
	case <-time.After(time.Second):
		t.Fatal("surviving handler not invoked")
	}
	select {
	case <-removed:
		t.Fatal("unsubscribed handler invoked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistry_UndecodablePayloadSkipsHandler(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	ch := newTestChannel(t, transport, Config{})
	require.NoError(t, ch.Connect(context.Background()))
	reg := NewRegistry(ch, zap.NewNop())

	got := make(chan TaskUpdatePayload, 2)
	reg.OnTaskUpdate(func(p TaskUpdatePayload) { got <- p })

	// Valid kind, payload of the wrong shape.
	conn := transport.conn(0)
	conn.deliver([]byte(`{"kind":"task_update","payload":[1,2,3],"timestamp":"2026-01-01T00:00:00Z"}`))
	conn.deliver(frame(t, KindTaskUpdate, TaskUpdatePayload{TaskID: "task-2"}))

	select {
	case p := <-got:
		require.Equal(t, "task-2", p.TaskID)
	case <-time.After(time.Second):
		t.Fatal("valid update not delivered")
	}
}

func TestRegistry_LastAcrossKinds(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	ch := newTestChannel(t, transport, Config{})
	require.NoError(t, ch.Connect(context.Background()))
	reg := NewRegistry(ch, zap.NewNop())

	_, ok := reg.Last()
	require.False(t, ok)

	seen := make(chan struct{}, 2)
	reg.OnNotification(func(NotificationPayload) { seen <- struct{}{} })

	conn := transport.conn(0)
	conn.deliver(frame(t, KindTaskUpdate, TaskUpdatePayload{TaskID: "task-1"}))
	conn.deliver(frame(t, KindNotification, NotificationPayload{Text: "latest"}))
	<-seen

	// Last reflects the most recent message regardless of subscriptions.
	last, ok := reg.Last()
	require.True(t, ok)
	require.Equal(t, KindNotification, last.Kind)
}
