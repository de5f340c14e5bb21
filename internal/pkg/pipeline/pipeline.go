package pipeline

import (
	"context"
	"time"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/summarizer"
	tapi "github.com/airenas/meetnotes/internal/pkg/transcriber/api"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type (
	// DB is the meeting row store
	DB interface {
		InsertMeeting(ctx context.Context, m *persistence.Meeting) error
		LoadMeeting(ctx context.Context, id, userID string) (*persistence.Meeting, error)
		SaveTranscription(ctx context.Context, data *persistence.TranscriptionUpdate) error
		SaveSummary(ctx context.Context, data *persistence.SummaryUpdate) error
	}

	// AudioReader loads audio bytes with content type
	AudioReader interface {
		ReadFile(ctx context.Context, name string) ([]byte, string, error)
	}

	// Transcriber is the speech service
	Transcriber interface {
		Transcribe(ctx context.Context, audio []byte, contentType string) (*tapi.Result, error)
	}

	// Summarizer is the summarization service
	Summarizer interface {
		Summarize(ctx context.Context, transcript []api.Segment) (*summarizer.Result, error)
	}

	// Locker serializes runs per meeting
	Locker interface {
		Lock(ctx context.Context, id string) (func(), error)
	}

	// Emitter receives pipeline events in order
	Emitter interface {
		Emit(ctx context.Context, ev api.Event) error
	}
)

// Data keeps pipeline dependencies
type Data struct {
	DB          DB
	Reader      AudioReader
	Transcriber Transcriber
	Summarizer  Summarizer
	// Locker is optional
	Locker Locker
	// ProgressDelay spaces summary heartbeat events
	ProgressDelay time.Duration
	// SaveTimeout limits writes done after the client may have gone
	SaveTimeout time.Duration

	newID func() string
}

// Validate checks mandatory dependencies and sets defaults
func (d *Data) Validate() error {
	if d.DB == nil {
		return errors.New("no DB")
	}
	if d.Reader == nil {
		return errors.New("no audio reader")
	}
	if d.Transcriber == nil {
		return errors.New("no transcriber")
	}
	if d.Summarizer == nil {
		return errors.New("no summarizer")
	}
	if d.SaveTimeout <= 0 {
		d.SaveTimeout = time.Second * 20
	}
	return nil
}

func (d *Data) id() string {
	if d.newID != nil {
		return d.newID()
	}
	return uuid.NewString()
}

func (d *Data) lock(ctx context.Context, id string) (func(), error) {
	if d.Locker == nil {
		return func() {}, nil
	}
	return d.Locker.Lock(ctx, id)
}

// detached returns a context that survives client disconnect
func (d *Data) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.SaveTimeout)
}

// StreamError marks a failure after events were emitted, the stream must end abnormally
type StreamError struct {
	err error
}

func (e *StreamError) Error() string {
	return "stream failed: " + e.err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.err
}

func emitFailure(ctx context.Context, em Emitter, msg string, err error, meetingID string) error {
	_ = em.Emit(ctx, api.Event{Error: msg, Details: err.Error(), MeetingID: meetingID})
	return &StreamError{err: err}
}
