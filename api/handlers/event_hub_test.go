package handlers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/vgrab-go/internal/domain"
	"go.uber.org/zap"
)

func decodeEvents(t *testing.T, batch [][]byte) []Event {
	t.Helper()
	events := make([]Event, 0, len(batch))
	for _, data := range batch {
		var e Event
		require.NoError(t, json.Unmarshal(data, &e))
		events = append(events, e)
	}
	return events
}

func TestEventHub_SlowClientKeepsTerminalEvents(t *testing.T) {
	hub := NewEventHub(zap.NewNop(), nil)
	client := hub.subscribe()
	defer hub.unsubscribe(client)

	for i := int64(0); i < 3*clientBuffer; i++ {
		hub.OnProgress(domain.Progress{JobID: "job-1", BytesDownloaded: i, BytesTotal: 1000, PercentKnown: true})
	}
	hub.OnFailure(domain.JobRecord{ID: "job-1", State: domain.StateFailed, ErrorMessage: "download cancelled"})
	hub.OnCompletion(domain.JobRecord{ID: "job-2", State: domain.StateSucceeded})

	events := decodeEvents(t, client.take())
	require.Len(t, events, clientBuffer+2)

	for _, e := range events[:clientBuffer] {
		assert.Equal(t, EventProgress, e.Type)
	}
	assert.Equal(t, int64(clientBuffer-1), events[clientBuffer-1].Progress.BytesDownloaded)

	failure := events[clientBuffer]
	assert.Equal(t, EventFailure, failure.Type)
	assert.Equal(t, "job-1", failure.JobID)
	assert.Equal(t, "download cancelled", failure.Message)
	require.NotNil(t, failure.Job)
	assert.Equal(t, domain.StateFailed, failure.Job.State)

	assert.Equal(t, EventCompletion, events[clientBuffer+1].Type)
	assert.Equal(t, "job-2", events[clientBuffer+1].JobID)
}

func TestEventHub_QueueRefillsAfterTake(t *testing.T) {
	hub := NewEventHub(zap.NewNop(), nil)
	client := hub.subscribe()
	defer hub.unsubscribe(client)

	for i := 0; i < clientBuffer+5; i++ {
		hub.OnProgress(domain.Progress{JobID: "job-1"})
	}
	assert.Len(t, client.take(), clientBuffer)
	assert.Empty(t, client.take())

	hub.OnProgress(domain.Progress{JobID: "job-1"})
	assert.Len(t, client.take(), 1)
}

func TestEventHub_Subscribers(t *testing.T) {
	hub := NewEventHub(zap.NewNop(), nil)
	a := hub.subscribe()
	b := hub.subscribe()
	assert.Equal(t, 2, hub.ClientCount())

	hub.unsubscribe(a)
	assert.Equal(t, 1, hub.ClientCount())

	hub.OnCompletion(domain.JobRecord{ID: "job-1"})
	assert.Empty(t, a.take())
	assert.Len(t, b.take(), 1)
}
