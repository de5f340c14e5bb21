package speakers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	tapi "github.com/airenas/meetnotes/internal/pkg/transcriber/api"
	"github.com/airenas/meetnotes/internal/pkg/transcript"
	"github.com/airenas/meetnotes/internal/pkg/utils"
)

// DB provides meeting and contact access
type DB interface {
	LoadMeeting(ctx context.Context, id, userID string) (*persistence.Meeting, error)
	UpdateSpeakerNames(ctx context.Context, id, userID string, names persistence.SpeakerNames) (persistence.SpeakerNames, error)
	CountContacts(ctx context.Context, userID string, ids []string) (int, error)
	LoadContacts(ctx context.Context, userID string, ids []string) (map[string]*persistence.Contact, error)
}

// Update replaces meeting speaker names with speakerContacts.
// All referenced contacts must belong to the user, otherwise nothing is changed
func Update(ctx context.Context, db DB, userID, meetingID string, speakerContacts map[string]*string) (persistence.SpeakerNames, error) {
	if userID == "" {
		return nil, utils.NewErrWrongInput("no user")
	}
	if meetingID == "" {
		return nil, utils.NewErrWrongInput("no meetingId")
	}
	names := make(persistence.SpeakerNames, len(speakerContacts))
	for k, v := range speakerContacts {
		if _, err := strconv.Atoi(k); err != nil {
			return nil, utils.WrapErrWrongInput(fmt.Sprintf("wrong speaker '%s'", goapp.Sanitize(k)), err)
		}
		if v != nil && *v == "" {
			v = nil
		}
		names[k] = v
	}
	ids := transcript.ContactIDs(names)
	if len(ids) > 0 {
		n, err := db.CountContacts(ctx, userID, ids)
		if err != nil {
			return nil, err
		}
		if n != len(ids) {
			goapp.Log.Warn().Str("ID", meetingID).Int("found", n).Int("want", len(ids)).Msg("foreign contacts")
			return nil, fmt.Errorf("contacts: %w", utils.ErrNotFound)
		}
	}
	res, err := db.UpdateSpeakerNames(ctx, meetingID, userID, names)
	if err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("ID", meetingID).Int("speakers", len(res)).Msg("updated speakers")
	return res, nil
}

// Transcript returns the formatted transcript with resolved speaker names
func Transcript(ctx context.Context, db DB, userID, meetingID string) (*api.TranscriptView, error) {
	m, err := db.LoadMeeting(ctx, meetingID, userID)
	if err != nil {
		return nil, err
	}
	segments, err := Segments(m)
	if err != nil {
		return nil, err
	}
	contacts, err := db.LoadContacts(ctx, userID, transcript.ContactIDs(m.SpeakerNames))
	if err != nil {
		return nil, err
	}
	res := &api.TranscriptView{MeetingID: m.ID, Title: utils.FromSQLStr(m.Title), Segments: make([]api.ViewSegment, 0, len(segments))}
	for _, s := range segments {
		res.Segments = append(res.Segments, api.ViewSegment{Segment: s,
			SpeakerName: transcript.DisplayName(s.Speaker, m.SpeakerNames, contacts)})
	}
	return res, nil
}

// Segments returns the stored formatted transcript, or normalizes the raw transcription if that is missing
func Segments(m *persistence.Meeting) ([]api.Segment, error) {
	if len(m.FormattedTranscript) > 0 && string(m.FormattedTranscript) != "null" {
		var res []api.Segment
		if err := json.Unmarshal(m.FormattedTranscript, &res); err != nil {
			return nil, fmt.Errorf("can't unmarshal formatted transcript: %w", err)
		}
		if res == nil {
			res = []api.Segment{}
		}
		return res, nil
	}
	if len(m.Transcription) > 0 && string(m.Transcription) != "null" {
		var tr tapi.Result
		if err := json.Unmarshal(m.Transcription, &tr); err != nil {
			return nil, fmt.Errorf("can't unmarshal transcription: %w", err)
		}
		return transcript.Normalize(tr.Words()), nil
	}
	return []api.Segment{}, nil
}
