package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEncodeDecode(t *testing.T) {
	deadline := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	ev := NewEvent(&NewActivityPayload{
		Activity: ActivityInfo{
			OrderID:    42,
			Title:      "Banner 3x1m",
			ClientRef:  "CX-881",
			Department: DeptImpressao,
			Deadline:   &deadline,
		},
	})

	frame, err := ev.Encode()
	require.NoError(t, err)

	got, err := DecodeEvent(frame)
	require.NoError(t, err)
	assert.Equal(t, EventNewActivity, got.Type)

	p, ok := got.Payload.(*NewActivityPayload)
	require.True(t, ok)
	assert.Equal(t, 42, p.Activity.OrderID)
	assert.Equal(t, DeptImpressao, p.Activity.Department)
	require.NotNil(t, p.Activity.Deadline)
	assert.True(t, deadline.Equal(*p.Activity.Deadline))
}

func TestEventTypeDerivedFromPayload(t *testing.T) {
	assert.Equal(t, EventPing, NewEvent(&PingPayload{Timestamp: 1}).Type)
	assert.Equal(t, EventReturned, NewEvent(&ReturnedPayload{From: DeptCorte}).Type)
	assert.Equal(t, EventReprintUpdate, NewEvent(&ReprintUpdatePayload{RequestID: 1}).Type)
}

func TestDecodeEventUnknownType(t *testing.T) {
	frame, err := json.Marshal(map[string]any{
		"type":      "order_deleted",
		"timestamp": time.Now(),
	})
	require.NoError(t, err)

	_, err = DecodeEvent(frame)
	assert.ErrorContains(t, err, "unknown event type")
}

func TestDecodeEventMalformed(t *testing.T) {
	_, err := DecodeEvent([]byte("{truncated"))
	assert.Error(t, err)

	// Valid envelope, garbage payload.
	frame := []byte(`{"type":"activity_completed","payload":[1,2,3],"timestamp":"2026-08-27T10:00:00Z"}`)
	_, err = DecodeEvent(frame)
	assert.ErrorContains(t, err, "malformed")
}

func TestHighPriorityRoundTrip(t *testing.T) {
	ev := NewEvent(&NewActivityPayload{Activity: ActivityInfo{OrderID: 1, Department: DeptCorte}})
	ev.HighPriority = true

	frame, err := ev.Encode()
	require.NoError(t, err)

	got, err := DecodeEvent(frame)
	require.NoError(t, err)
	assert.True(t, got.HighPriority)
}

func TestReprintProcess(t *testing.T) {
	req, err := NewReprintRequest(7, "joao", "panel misprint")
	require.NoError(t, err)
	assert.Equal(t, ReprintOpen, req.Status)

	require.NoError(t, req.Process("ana", true))
	assert.Equal(t, ReprintApproved, req.Status)
	require.NotNil(t, req.ProcessedBy)
	assert.Equal(t, "ana", *req.ProcessedBy)

	assert.ErrorIs(t, req.Process("ana", false), ErrReprintProcessed)
}

func TestNewReprintRequiresReason(t *testing.T) {
	_, err := NewReprintRequest(7, "joao", "")
	assert.Error(t, err)
}
