package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	// Collectors are nil until Init; helpers must be no-ops, not panics.
	ObserveTask("completed", time.Second)
	ObserveResultItems(3)
	IncActiveWorkers()
	DecActiveWorkers()
	ObserveMessageSent("task_update")
	ObserveMessageReceived("task_update")
	ObserveReconnectAttempt()
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, Handler())

	ObserveTask("failed", 2*time.Second)
	ObserveResultItems(1)
	IncActiveWorkers()
	DecActiveWorkers()
	ObserveMessageSent("scrape_update")
	ObserveMessageReceived("error")
	ObserveReconnectAttempt()
}
