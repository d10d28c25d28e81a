package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewMessageRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := NewMessage(Kind("mystery"), nil, time.Unix(0, 0))
	require.Error(t, err)
}

func TestParseMessageRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1700000000, 0).UTC()
	msg, err := NewMessage(KindTaskUpdate, TaskUpdatePayload{TaskID: "task-1", Progress: 40}, ts)
	require.NoError(t, err)

	data := frame(t, KindTaskUpdate, TaskUpdatePayload{TaskID: "task-1", Progress: 40})
	parsed, err := ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, msg.Kind, parsed.Kind)

	var payload TaskUpdatePayload
	require.NoError(t, parsed.DecodePayload(&payload))
	require.Equal(t, "task-1", payload.TaskID)
	require.Equal(t, 40, payload.Progress)
}

func TestParseMessageRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := ParseMessage([]byte("{broken"))
	require.Error(t, err)

	_, err = ParseMessage([]byte(`{"kind":"mystery","timestamp":"2026-01-01T00:00:00Z"}`))
	require.Error(t, err)
}

func TestDecodePayloadRequiresPayload(t *testing.T) {
	t.Parallel()

	msg := Message{Kind: KindNotification}
	var payload NotificationPayload
	require.Error(t, msg.DecodePayload(&payload))
}

func TestValidKindCoversClosedSet(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindTaskUpdate, KindScrapeUpdate, KindNotification, KindError} {
		require.True(t, ValidKind(k))
	}
	require.False(t, ValidKind(Kind("")))
	require.False(t, ValidKind(Kind("TASK_UPDATE")))
}
