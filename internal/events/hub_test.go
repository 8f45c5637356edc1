package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scoped struct {
	Session string `json:"session"`
}

func (s scoped) EventSession() string { return s.Session }

func TestPublishExtractsSession(t *testing.T) {
	h := NewHub(8)
	h.Publish("session.created", scoped{Session: "s1"})
	h.Publish("operation.completed", map[string]any{"session_id": "s2", "op": "ocr"})
	h.Publish("scheduler.tick", nil)

	evs := h.SnapshotSince(0)
	require.Len(t, evs, 3)
	assert.Equal(t, "s1", evs[0].SessionID)
	assert.Equal(t, "s2", evs[1].SessionID)
	assert.Empty(t, evs[2].SessionID)
	assert.JSONEq(t, `{}`, string(evs[2].Data))

	var body map[string]any
	require.NoError(t, json.Unmarshal(evs[1].Data, &body))
	assert.Equal(t, "ocr", body["op"])
}

func TestRingOverwritesOldest(t *testing.T) {
	h := NewHub(2)
	for i := 0; i < 5; i++ {
		h.Publish("tick", map[string]any{"i": i})
	}
	evs := h.SnapshotSince(0)
	require.Len(t, evs, 2)
	assert.Equal(t, int64(4), evs[0].ID)
	assert.Equal(t, int64(5), evs[1].ID)

	assert.Len(t, h.SnapshotSince(4), 1)
}

func TestSnapshotFilter(t *testing.T) {
	h := NewHub(16)
	h.Publish("session.created", map[string]any{"session_id": "a"})
	h.Publish("operation.started", map[string]any{"session_id": "a"})
	h.Publish("operation.started", map[string]any{"session_id": "b"})

	got := h.Snapshot(0, Filter{SessionID: "a", TypePrefix: "operation."})
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestSubscribeFiltersAndCancels(t *testing.T) {
	h := NewHub(16)
	ch, cancel := h.Subscribe(Filter{SessionID: "a"})

	h.Publish("operation.started", map[string]any{"session_id": "b"})
	h.Publish("operation.started", map[string]any{"session_id": "a"})

	select {
	case ev := <-ch:
		assert.Equal(t, "a", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}
