package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/guard"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/status"
	"github.com/airenas/meetnotes/internal/pkg/summarizer"
	"github.com/airenas/meetnotes/internal/pkg/utils"
)

var progressSteps = []int{33, 66, 99}

// SummaryOutcome is the result of a finished summarization stage
type SummaryOutcome struct {
	Result *summarizer.Result
	Saved  bool
}

type summaryJSON struct {
	Title        *string `json:"title"`
	SummaryNotes *string `json:"summary_notes"`
}

// RunSummary streams the summarization stage.
// Input and ownership problems end the stream normally after an error event;
// a returned *StreamError means the stream must end abnormally
func RunSummary(ctx context.Context, data *Data, userID string, req *api.SummarizeRequest, em Emitter) (*SummaryOutcome, error) {
	start, result := time.Now(), resultRejected
	defer observe(stageSummary, start, &result)

	if req == nil || req.MeetingID == "" {
		return nil, em.Emit(ctx, api.Event{Error: "meetingId is required"})
	}
	id := req.MeetingID
	if len(req.Transcript) == 0 {
		return nil, em.Emit(ctx, api.Event{Error: "transcript is required", MeetingID: id})
	}
	m, err := data.DB.LoadMeeting(ctx, id, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, em.Emit(ctx, api.Event{Error: "Meeting not found or access denied", MeetingID: id})
		}
		result = resultFailed
		return nil, emitFailure(ctx, em, "Failed to load meeting", err, id)
	}
	release, err := data.lock(ctx, m.ID)
	if err != nil {
		if errors.Is(err, guard.ErrLocked) {
			return nil, em.Emit(ctx, api.Event{Error: "Meeting is being processed", MeetingID: id})
		}
		result = resultFailed
		return nil, emitFailure(ctx, em, "Failed to lock meeting", err, id)
	}
	defer release()

	result = resultFailed
	if err := em.Emit(ctx, api.Event{Message: "Request received for summary", MeetingID: id}); err != nil {
		return nil, err
	}
	for _, p := range progressSteps {
		if err := em.Emit(ctx, api.Event{Message: fmt.Sprintf("Processing summary... %d%%", p), MeetingID: id}); err != nil {
			return nil, err
		}
		if err := wait(ctx, data.ProgressDelay); err != nil {
			return nil, err
		}
	}

	res, err := data.Summarizer.Summarize(ctx, req.Transcript)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("summarization failed")
		return nil, emitFailure(ctx, em, "Summarization failed", err, id)
	}
	outcome := &SummaryOutcome{Result: res}
	if res.Empty() {
		result = resultEmpty
		goapp.Log.Warn().Str("ID", id).Msg("empty summary")
		if err := em.Emit(ctx, api.Event{Error: "OpenAI returned empty content", MeetingID: id}); err != nil {
			return outcome, err
		}
	} else {
		result = resultOK
		if err := em.Emit(ctx, api.Event{Summary: res.SummaryNotes, Title: res.Title, MeetingID: id}); err != nil {
			return outcome, err
		}
		if saveErr := saveSummary(ctx, data, m, req.Transcript, res); saveErr != nil {
			result = resultSaveError
			if err := em.Emit(ctx, api.Event{Error: "Failed to save summary", Details: saveErr.Error(), MeetingID: id}); err != nil {
				return outcome, err
			}
		} else {
			outcome.Saved = true
		}
	}
	if err := em.Emit(ctx, api.Event{Status: status.Completed.String(), MeetingID: id}); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func saveSummary(ctx context.Context, data *Data, m *persistence.Meeting, tr []api.Segment, res *summarizer.Result) error {
	formatted, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("can't marshal transcript: %w", err)
	}
	sj, err := json.Marshal(summaryJSON{Title: res.Title, SummaryNotes: res.SummaryNotes})
	if err != nil {
		return fmt.Errorf("can't marshal summary: %w", err)
	}
	sCtx, cf := data.detached(ctx)
	defer cf()
	err = data.DB.SaveSummary(sCtx, &persistence.SummaryUpdate{ID: m.ID, UserID: m.UserID, OpenAIResponse: res.Raw,
		FormattedTranscript: formatted, SummaryJSON: sj,
		Summary: utils.PtrToSQLStr(res.SummaryNotes), Title: utils.PtrToSQLStr(res.Title)})
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", m.ID).Msg("can't save summary")
		return err
	}
	goapp.Log.Info().Str("ID", m.ID).Msg("saved summary")
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
