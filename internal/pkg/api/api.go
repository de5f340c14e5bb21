package api

import (
	"encoding/json"
	"time"
)

const (
	// PrmFile form file param name
	PrmFile = "file"
	// PrmMeetingAt form param for the logical meeting time
	PrmMeetingAt = "meetingAt"
)

// TranscribeRequest is the body of the transcription stage call
type TranscribeRequest struct {
	FilePath         string     `json:"filePath"`
	OriginalFileName string     `json:"originalFileName"`
	MeetingAt        *time.Time `json:"meetingAt,omitempty"`
	MeetingID        string     `json:"meetingId,omitempty"`
}

// SummarizeRequest is the body of the summarization stage call
type SummarizeRequest struct {
	Transcript []Segment `json:"transcript"`
	MeetingID  string    `json:"meetingId"`
}

// Segment is a speaker contiguous part of a transcript
type Segment struct {
	Speaker int     `json:"speaker"`
	Start   float64 `json:"start"`
	Text    string  `json:"text"`
}

// SpeakersRequest associates speaker indexes with contacts
type SpeakersRequest struct {
	SpeakerContacts map[string]*string `json:"speakerContacts"`
}

// UploadResult is returned after the audio is saved
type UploadResult struct {
	FilePath         string `json:"filePath"`
	OriginalFileName string `json:"originalFileName"`
}

// BatchResult is returned after batch files are queued
type BatchResult struct {
	MeetingIDs []string `json:"meetingIds"`
}

// ErrorResult is a non streaming failure body
type ErrorResult struct {
	Error string `json:"error"`
}

// TranscriptView is a transcript with resolved speaker names
type TranscriptView struct {
	MeetingID string        `json:"meetingId"`
	Title     string        `json:"title,omitempty"`
	Segments  []ViewSegment `json:"segments"`
}

// ViewSegment is a segment with a display name
type ViewSegment struct {
	Segment
	SpeakerName string `json:"speakerName"`
}

// Event is one message of the pipeline event stream.
// Payload keys are merged into the JSON object, named fields take precedence.
type Event struct {
	Status    string                     `json:"status,omitempty"`
	Message   string                     `json:"message,omitempty"`
	MeetingID string                     `json:"meetingId,omitempty"`
	Summary   *string                    `json:"summary,omitempty"`
	Title     *string                    `json:"title,omitempty"`
	Error     string                     `json:"error,omitempty"`
	Details   string                     `json:"details,omitempty"`
	Payload   map[string]json.RawMessage `json:"-"`
}

type eventFields Event

// MarshalJSON writes named fields together with the merged payload
func (e Event) MarshalJSON() ([]byte, error) {
	fb, err := json.Marshal(eventFields(e))
	if err != nil {
		return nil, err
	}
	if len(e.Payload) == 0 {
		return fb, nil
	}
	res := make(map[string]json.RawMessage, len(e.Payload)+4)
	for k, v := range e.Payload {
		res[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(fb, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		res[k] = v
	}
	return json.Marshal(res)
}

// UnmarshalJSON reads named fields, other keys go to Payload
func (e *Event) UnmarshalJSON(b []byte) error {
	var f eventFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, k := range []string{"status", "message", "meetingId", "summary", "title", "error", "details"} {
		delete(all, k)
	}
	*e = Event(f)
	if len(all) > 0 {
		e.Payload = all
	}
	return nil
}
