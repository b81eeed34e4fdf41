// ABOUTME: Tests for envelope construction and closed-union payload decoding.
// ABOUTME: Covers the type switch, unknown types, and wire field preservation.

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(TypeHeartbeat, HeartbeatPayload{Status: StatusBusy})

	assert.Equal(t, TypeHeartbeat, env.Type)
	assert.NotEmpty(t, env.MessageID)
	assert.NotZero(t, env.Timestamp)

	p, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, HeartbeatPayload{Status: StatusBusy}, p)
}

func TestDecode_TaskClaim(t *testing.T) {
	env := NewEnvelope(TypeTaskClaim, TaskClaimPayload{TaskID: "t-1", AgentID: "a-1"})

	p, err := env.Decode()
	require.NoError(t, err)

	claim, ok := p.(TaskClaimPayload)
	require.True(t, ok, "expected TaskClaimPayload, got %T", p)
	assert.Equal(t, "t-1", claim.TaskID)
	assert.Equal(t, "a-1", claim.AgentID)
}

func TestDecode_EmptyPayload(t *testing.T) {
	// A heartbeat may carry no payload at all.
	env := &Envelope{Type: TypeHeartbeat, MessageID: "m-1"}

	p, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, HeartbeatPayload{}, p)
}

func TestDecode_UnknownType(t *testing.T) {
	env := &Envelope{Type: "bogus", MessageID: "m-1"}

	_, err := env.Decode()
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), "bogus")
}

func TestDecode_UnsubscribeHasNoHandler(t *testing.T) {
	// The protocol names unsubscribe but no handler serves it; it decodes
	// like any unknown type.
	env := &Envelope{Type: TypeUnsubscribe, MessageID: "m-1"}

	_, err := env.Decode()
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestDecode_MalformedPayload(t *testing.T) {
	env := &Envelope{
		Type:    TypeRegister,
		Payload: json.RawMessage(`{"capabilities": "not-a-list"}`),
	}

	_, err := env.Decode()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownType)
}

func TestEnvelope_WireFieldNames(t *testing.T) {
	conf := 0.8
	env := NewEnvelope(TypePlazaMessage, PlazaMessagePayload{
		From:            "a-1",
		Content:         "hello",
		ConfidenceLevel: &conf,
		Timestamp:       42,
	})
	env.From = "a-1"

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "messageId")
	assert.Contains(t, raw, "timestamp")

	payload := raw["payload"].(map[string]any)
	assert.Equal(t, 0.8, payload["confidenceLevel"])
	assert.Equal(t, "hello", payload["content"])
}

func TestEnvelope_ConfidenceOmittedWhenNil(t *testing.T) {
	env := NewEnvelope(TypeDirectMessage, DirectMessagePayload{From: "a-1", Content: "psst"})

	var raw map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &raw))
	assert.NotContains(t, raw, "confidenceLevel")
}
