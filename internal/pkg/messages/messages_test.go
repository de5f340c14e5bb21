package messages

import (
	"encoding/json"
	"testing"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchMessage(t *testing.T) {
	assert.Equal(t, &BatchMessage{QueueMessage: amessages.QueueMessage{ID: "m1"}, UserID: "u1"},
		NewBatchMessage("m1", "u1"))
}

func TestEventMessage_JSON(t *testing.T) {
	b, err := json.Marshal(&EventMessage{QueueMessage: amessages.QueueMessage{ID: "m1"}, UserID: "u1",
		Event: json.RawMessage(`{"status":"s"}`)})
	require.Nil(t, err)
	var got EventMessage
	require.Nil(t, json.Unmarshal(b, &got))
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.JSONEq(t, `{"status":"s"}`, string(got.Event))
}
