package messages

import (
	"encoding/json"

	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "NOTES/"
	// Batch queue name, ID is the meeting id
	Batch = st + "Batch"
	// Event queue name, batch pipeline events for live subscribers
	Event = st + "Event"
)

// BatchMessage asks the worker to run the pipeline for one meeting
type BatchMessage struct {
	amessages.QueueMessage
	UserID string `json:"userID"`
}

// EventMessage carries one pipeline event of a batch run, ID is the meeting id
type EventMessage struct {
	amessages.QueueMessage
	UserID string          `json:"userID"`
	Event  json.RawMessage `json:"event"`
}

// NewBatchMessage creates a batch message
func NewBatchMessage(meetingID, userID string) *BatchMessage {
	return &BatchMessage{QueueMessage: amessages.QueueMessage{ID: meetingID}, UserID: userID}
}
