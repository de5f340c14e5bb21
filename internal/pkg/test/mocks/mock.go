package mocks

import (
	"context"
	"io"
	"net/http"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/summarizer"
	tapi "github.com/airenas/meetnotes/internal/pkg/transcriber/api"
	"github.com/stretchr/testify/mock"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	args := m.Called(ctx, name, r, size)
	return args.Error(0)
}

func (m *Filer) ReadFile(ctx context.Context, name string) ([]byte, string, error) {
	args := m.Called(ctx, name)
	return to[[]byte](args.Get(0)), args.String(1), args.Error(2)
}

func (m *Filer) Delete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// FileLoader is minio object loader mock
type FileLoader struct{ mock.Mock }

func (m *FileLoader) LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, name)
	return to[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

// DB is postgress DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertMeeting(ctx context.Context, meeting *persistence.Meeting) error {
	args := m.Called(ctx, meeting)
	return args.Error(0)
}

func (m *DB) LoadMeeting(ctx context.Context, id, userID string) (*persistence.Meeting, error) {
	args := m.Called(ctx, id, userID)
	return to[*persistence.Meeting](args.Get(0)), args.Error(1)
}

func (m *DB) SaveTranscription(ctx context.Context, data *persistence.TranscriptionUpdate) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *DB) SaveSummary(ctx context.Context, data *persistence.SummaryUpdate) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *DB) UpdateSpeakerNames(ctx context.Context, id, userID string, names persistence.SpeakerNames) (persistence.SpeakerNames, error) {
	args := m.Called(ctx, id, userID, names)
	return to[persistence.SpeakerNames](args.Get(0)), args.Error(1)
}

func (m *DB) DeleteMeeting(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *DB) CountContacts(ctx context.Context, userID string, ids []string) (int, error) {
	args := m.Called(ctx, userID, ids)
	return args.Int(0), args.Error(1)
}

func (m *DB) LoadContacts(ctx context.Context, userID string, ids []string) (map[string]*persistence.Contact, error) {
	args := m.Called(ctx, userID, ids)
	return to[map[string]*persistence.Contact](args.Get(0)), args.Error(1)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Transcriber is transcription client mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) Transcribe(ctx context.Context, audio []byte, contentType string) (*tapi.Result, error) {
	args := m.Called(ctx, audio, contentType)
	return to[*tapi.Result](args.Get(0)), args.Error(1)
}

// Summarizer is LLM client mock
type Summarizer struct{ mock.Mock }

func (m *Summarizer) Summarize(ctx context.Context, transcript []api.Segment) (*summarizer.Result, error) {
	args := m.Called(ctx, transcript)
	return to[*summarizer.Result](args.Get(0)), args.Error(1)
}

// Locker is meeting lock mock
type Locker struct{ mock.Mock }

func (m *Locker) Lock(ctx context.Context, id string) (func(), error) {
	args := m.Called(ctx, id)
	return to[func()](args.Get(0)), args.Error(1)
}

// Authenticator is auth mock
type Authenticator struct{ mock.Mock }

func (m *Authenticator) Authenticate(r *http.Request) (string, error) {
	args := m.Called(r)
	return args.String(0), args.Error(1)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
