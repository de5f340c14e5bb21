package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/filer"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/status"
	tapi "github.com/airenas/meetnotes/internal/pkg/transcriber/api"
	"github.com/airenas/meetnotes/internal/pkg/transcript"
	"github.com/airenas/meetnotes/internal/pkg/utils"
)

// Job is a transcription ready to be streamed
type Job struct {
	Meeting     *persistence.Meeting
	AudioPath   string
	Audio       []byte
	ContentType string
	release     func()
}

// Close releases the meeting lock
func (j *Job) Close() {
	if j != nil && j.release != nil {
		j.release()
		j.release = nil
	}
}

// TranscriptionOutcome is the result of a finished transcription stage
type TranscriptionOutcome struct {
	Segments     []api.Segment
	SpeakerNames persistence.SpeakerNames
	Saved        bool
}

// PrepareTranscription checks the request, creates or loads the meeting and loads the audio.
// Errors are returned before any event is emitted
func PrepareTranscription(ctx context.Context, data *Data, userID string, req *api.TranscribeRequest) (*Job, error) {
	if userID == "" {
		return nil, utils.NewErrWrongInput("no user")
	}
	if req == nil {
		return nil, utils.NewErrWrongInput("no request")
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, utils.NewErrWrongInput("no filePath")
	}
	if strings.TrimSpace(req.OriginalFileName) == "" {
		return nil, utils.NewErrWrongInput("no originalFileName")
	}
	if !ownFile(userID, req.FilePath) {
		goapp.Log.Warn().Str("user", userID).Str("file", goapp.Sanitize(req.FilePath)).Msg("foreign file")
		return nil, fmt.Errorf("file: %w", utils.ErrNotFound)
	}
	var m *persistence.Meeting
	release := func() {}
	if req.MeetingID == "" {
		m = &persistence.Meeting{ID: data.id(), UserID: userID, AudioFilePath: req.FilePath,
			OriginalFileName: req.OriginalFileName, MeetingAt: req.MeetingAt}
		if err := data.DB.InsertMeeting(ctx, m); err != nil {
			return nil, fmt.Errorf("can't create meeting: %w", err)
		}
		goapp.Log.Info().Str("ID", m.ID).Str("user", userID).Msg("created meeting")
	} else {
		var err error
		if m, err = data.DB.LoadMeeting(ctx, req.MeetingID, userID); err != nil {
			return nil, fmt.Errorf("can't load meeting: %w", err)
		}
		if release, err = data.lock(ctx, m.ID); err != nil {
			return nil, err
		}
		if m.AudioFilePath == "" {
			m.AudioFilePath, m.OriginalFileName = req.FilePath, req.OriginalFileName
		}
		goapp.Log.Info().Str("ID", m.ID).Str("user", userID).Msg("resume meeting")
	}
	job, err := loadAudio(ctx, data, m, req.FilePath)
	if err != nil {
		release()
		return nil, err
	}
	job.release = release
	return job, nil
}

// PrepareStored prepares transcription of the audio kept on the meeting record
func PrepareStored(ctx context.Context, data *Data, m *persistence.Meeting) (*Job, error) {
	if m.AudioFilePath == "" {
		return nil, utils.NewErrWrongInput("no audio_file_path")
	}
	release, err := data.lock(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	job, err := loadAudio(ctx, data, m, m.AudioFilePath)
	if err != nil {
		release()
		return nil, err
	}
	job.release = release
	return job, nil
}

func loadAudio(ctx context.Context, data *Data, m *persistence.Meeting, path string) (*Job, error) {
	defer goapp.Estimate("load audio")()
	audio, ct, err := data.Reader.ReadFile(ctx, path)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", m.ID).Str("file", path).Str("storage", filer.Describe(err)).Msg("can't load audio")
		if filer.IsNotFound(err) {
			return nil, fmt.Errorf("audio: %w", utils.ErrNotFound)
		}
		return nil, fmt.Errorf("can't load audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, utils.NewErrWrongInput("empty audio")
	}
	return &Job{Meeting: m, AudioPath: path, Audio: audio, ContentType: ct}, nil
}

// RunTranscription is the streamed part of the transcription stage.
// A returned *StreamError means the error event was emitted and the stream must end abnormally
func RunTranscription(ctx context.Context, data *Data, job *Job, em Emitter) (*TranscriptionOutcome, error) {
	start, result := time.Now(), resultFailed
	defer observe(stageTranscription, start, &result)

	id := job.Meeting.ID
	if err := em.Emit(ctx, api.Event{Status: status.Started.String(), MeetingID: id}); err != nil {
		return nil, err
	}
	res, err := data.Transcriber.Transcribe(ctx, job.Audio, job.ContentType)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("transcription failed")
		return nil, emitFailure(ctx, em, "Transcription failed", err, id)
	}
	raw, err := rawResult(res)
	if err != nil {
		return nil, emitFailure(ctx, em, "Transcription failed", err, id)
	}
	res.Raw = raw

	outcome := &TranscriptionOutcome{
		Segments:     transcript.Normalize(res.Words()),
		SpeakerNames: transcript.InitialSpeakerNames(transcript.UniqueSpeakers(res.AllUtterances()), job.Meeting.SpeakerNames),
	}
	formatted, err := json.Marshal(outcome.Segments)
	if err != nil {
		return nil, emitFailure(ctx, em, "Transcription failed", err, id)
	}
	saveErr := saveTranscription(ctx, data, &persistence.TranscriptionUpdate{ID: id, UserID: job.Meeting.UserID,
		AudioFilePath: job.Meeting.AudioFilePath, OriginalFileName: job.Meeting.OriginalFileName, Transcription: raw, FormattedTranscript: formatted, SpeakerNames: outcome.SpeakerNames})
	outcome.Saved = saveErr == nil

	if err := em.Emit(ctx, resultEvent(id, raw, formatted)); err != nil {
		return outcome, err
	}
	result = resultOK
	if saveErr != nil {
		result = resultSaveError
		if err := em.Emit(ctx, api.Event{Error: "Failed to save transcription", Details: saveErr.Error(), MeetingID: id}); err != nil {
			return outcome, err
		}
	}
	if err := em.Emit(ctx, api.Event{Status: status.Completed.String(), MeetingID: id}); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func saveTranscription(ctx context.Context, data *Data, upd *persistence.TranscriptionUpdate) error {
	sCtx, cf := data.detached(ctx)
	defer cf()
	if err := data.DB.SaveTranscription(sCtx, upd); err != nil {
		goapp.Log.Error().Err(err).Str("ID", upd.ID).Msg("can't save transcription")
		return err
	}
	goapp.Log.Info().Str("ID", upd.ID).Int("speakers", len(upd.SpeakerNames)).Msg("saved transcription")
	return nil
}

func rawResult(res *tapi.Result) ([]byte, error) {
	if res == nil {
		return nil, fmt.Errorf("no transcription result")
	}
	if len(res.Raw) > 0 {
		return res.Raw, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("can't marshal result: %w", err)
	}
	return b, nil
}

func resultEvent(id string, raw, formatted []byte) api.Event {
	payload := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", id).Msg("result is not an object")
		payload = map[string]json.RawMessage{"results": raw}
	}
	if payload == nil {
		payload = map[string]json.RawMessage{}
	}
	payload["formattedTranscript"] = formatted
	return api.Event{MeetingID: id, Payload: payload}
}

// ownFile accepts only clean paths inside the user's prefix
func ownFile(userID, p string) bool {
	if userID == "" || path.Clean(p) != p {
		return false
	}
	for _, s := range strings.Split(p, "/") {
		if s == ".." || s == "." {
			return false
		}
	}
	return strings.HasPrefix(p, userID+"/")
}
