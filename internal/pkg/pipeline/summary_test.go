package pipeline

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/guard"
	"github.com/airenas/meetnotes/internal/pkg/persistence"
	"github.com/airenas/meetnotes/internal/pkg/summarizer"
	"github.com/airenas/meetnotes/internal/pkg/test"
	"github.com/airenas/meetnotes/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func strP(s string) *string {
	return &s
}

func newSummaryReq() *api.SummarizeRequest {
	return &api.SummarizeRequest{MeetingID: "m1", Transcript: []api.Segment{{Speaker: 0, Start: 0, Text: "Hi"}}}
}

func messages(evs []api.Event) []string {
	res := make([]string, 0, len(evs))
	for _, e := range evs {
		res = append(res, e.Message)
	}
	return res
}

func TestRunSummary(t *testing.T) {
	initTest(t)
	dbMock.On("LoadMeeting", mock.Anything, "m1", "u1").Return(&persistence.Meeting{ID: "m1", UserID: "u1"}, nil)
	summarizerMock.On("Summarize", mock.Anything, newSummaryReq().Transcript).Return(&summarizer.Result{
		Title: strP("Planning"), SummaryNotes: strP("# Notes"), Raw: `{"id":"c1"}`}, nil)
	dbMock.On("SaveSummary", mock.Anything, mock.Anything).Return(nil)
	em := &testEmitter{}

	res, err := RunSummary(test.Ctx(t), tData, "u1", newSummaryReq(), em)

	require.Nil(t, err)
	assert.True(t, res.Saved)
	require.Equal(t, 6, len(em.events))
	assert.Equal(t, []string{"Request received for summary", "Processing summary... 33%", "Processing summary... 66%",
		"Processing summary... 99%", "", ""}, messages(em.events))
	for _, e := range em.events {
		assert.Equal(t, "m1", e.MeetingID)
	}
	assert.Equal(t, api.Event{Summary: strP("# Notes"), Title: strP("Planning"), MeetingID: "m1"}, em.events[4])
	assert.Equal(t, "Processing completed", em.events[5].Status)

	upd := dbMock.Calls[1].Arguments[1].(*persistence.SummaryUpdate)
	assert.Equal(t, "m1", upd.ID)
	assert.Equal(t, "u1", upd.UserID)
	assert.Equal(t, `{"id":"c1"}`, upd.OpenAIResponse)
	assert.JSONEq(t, `[{"speaker":0,"start":0,"text":"Hi"}]`, string(upd.FormattedTranscript))
	assert.JSONEq(t, `{"title":"Planning","summary_notes":"# Notes"}`, string(upd.SummaryJSON))
	assert.Equal(t, sql.NullString{String: "# Notes", Valid: true}, upd.Summary)
	assert.Equal(t, sql.NullString{String: "Planning", Valid: true}, upd.Title)
}

func TestRunSummary_NullTitle(t *testing.T) {
	initTest(t)
	dbMock.On("LoadMeeting", mock.Anything, "m1", "u1").Return(&persistence.Meeting{ID: "m1", UserID: "u1",
		Title: sql.NullString{String: "Old", Valid: true}}, nil)
	summarizerMock.On("Summarize", mock.Anything, mock.Anything).Return(&summarizer.Result{SummaryNotes: strP("Notes.")}, nil)
	dbMock.On("SaveSummary", mock.Anything, mock.Anything).Return(nil)

	_, err := RunSummary(test.Ctx(t), tData, "u1", newSummaryReq(), &testEmitter{})

	require.Nil(t, err)
	upd := dbMock.Calls[1].Arguments[1].(*persistence.SummaryUpdate)
	assert.Equal(t, sql.NullString{String: "Notes.", Valid: true}, upd.Summary)
	assert.False(t, upd.Title.Valid)
	assert.JSONEq(t, `{"title":null,"summary_notes":"Notes."}`, string(upd.SummaryJSON))
}

func TestRunSummary_WrongInput(t *testing.T) {
	tests := []struct {
		name string
		req  *api.SummarizeRequest
		want api.Event
	}{
		{name: "nil", req: nil, want: api.Event{Error: "meetingId is required"}},
		{name: "no meeting", req: &api.SummarizeRequest{Transcript: []api.Segment{{Text: "a"}}},
			want: api.Event{Error: "meetingId is required"}},
		{name: "empty transcript", req: &api.SummarizeRequest{MeetingID: "m1", Transcript: []api.Segment{}},
			want: api.Event{Error: "transcript is required", MeetingID: "m1"}},
		{name: "nil transcript", req: &api.SummarizeRequest{MeetingID: "m1"},
			want: api.Event{Error: "transcript is required", MeetingID: "m1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			em := &testEmitter{}
			res, err := RunSummary(test.Ctx(t), tData, "u1", tt.req, em)
			assert.Nil(t, err)
			assert.Nil(t, res)
			assert.Equal(t, []api.Event{tt.want}, em.events)
			summarizerMock.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
			dbMock.AssertNotCalled(t, "LoadMeeting", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRunSummary_NotOwned(t *testing.T) {
	initTest(t)
	dbMock.On("LoadMeeting", mock.Anything, "m1", "u2").Return(nil, utils.ErrNotFound)
	em := &testEmitter{}

	_, err := RunSummary(test.Ctx(t), tData, "u2", newSummaryReq(), em)

	assert.Nil(t, err)
	assert.Equal(t, []api.Event{{Error: "Meeting not found or access denied", MeetingID: "m1"}}, em.events)
	summarizerMock.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
}

func TestRunSummary_LoadFail(t *testing.T) {
	initTest(t)
	dbMock.On("LoadMeeting", mock.Anything, "m1", "u1").Return(nil, errors.New("db down"))
	em := &testEmitter{}

	_, err := RunSummary(test.Ctx(t), tData, "u1", newSummaryReq(), em)

	var se *StreamError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, []api.Event{{Error: "Failed to load meeting", Details: "db down", MeetingID: "m1"}}, em.events)
}

func TestRunSummary_Locked(t *testing.T) {
	initTest(t)
	tData.Locker = lockerMock
	dbMock.On("LoadMeeting", mock.Anything, "m1", "u1").Return(&persistence.Meeting{ID: "m1", UserID: "u1"}, nil)
	lockerMock.On("Lock", mock.Anything, "m1").Return(nil, guard.ErrLocked)
	em := &testEmitter{}

	_, err := RunSummary(test.Ctx(t), tData, "u1", newSummaryReq(), em)

	assert.Nil(t, err)
	assert.Equal(t, []api.Event{{Error: "Meeting is being processed", MeetingID: "m1"}}, em.events)
}

func TestRunSummary_ReleasesLock(t *testing.T) {
	initTest(t)
	tData.Locker = lockerMock
	released := false
	dbMock.On("LoadMeeting", mock.Anything, "m1", "u1").Return(&persistence.Meeting{ID: "m1", UserID: "u1"}, nil)
	lockerMock.On("Lock", mock.Anything, "m1").Return(func() { released = true }, nil)
	summarizerMock.On("Summarize", mock.Anything, mock.Anything).Return(&summarizer.Result{}, nil)

	_, err := RunSummary(test.Ctx(t), tData, "u1", newSummaryReq(), &testEmitter{})

	assert.Nil(t, err)
	assert.True(t, released)
}

func TestRunSummary_Empty(t *testing.T) {
	initTest(t)
	dbMock.On("LoadMeeting", mock.Anything, "m1", "u1").Return(&persistence.Meeting{ID: "m1", UserID: "u1"}, nil)
	summarizerMock.On("Summarize", mock.Anything, mock.Anything).Return(&summarizer.Result{Raw: "{}"}, nil)
	em := &testEmitter{}

	res, err := RunSummary(test.Ctx(t), tData, "u1", newSummaryReq(), em)

	require.Nil(t, err)
	assert.False(t, res.Saved)
	require.Equal(t, 6, len(em.events))
	assert.Equal(t, api.Event{Error: "OpenAI returned empty content", MeetingID: "m1"}, em.events[4])
	assert.Equal(t, "Processing completed", em.events[5].Status)
	dbMock.AssertNotCalled(t, "SaveSummary", mock.Anything, mock.Anything)
}

func TestRunSummary_ServiceFail(t *testing.T) {
	initTest(t)
	dbMock.On("LoadMeeting", mock.Anything, "m1", "u1").Return(&persistence.Meeting{ID: "m1", UserID: "u1"}, nil)
	summarizerMock.On("Summarize", mock.Anything, mock.Anything).Return(nil, errors.New("olia"))
	em := &testEmitter{}

	_, err := RunSummary(test.Ctx(t), tData, "u1", newSummaryReq(), em)

	var se *StreamError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 5, len(em.events))
	assert.Equal(t, api.Event{Error: "Summarization failed", Details: "olia", MeetingID: "m1"}, em.events[4])
	dbMock.AssertNotCalled(t, "SaveSummary", mock.Anything, mock.Anything)
}

func TestRunSummary_SaveFail(t *testing.T) {
	initTest(t)
	dbMock.On("LoadMeeting", mock.Anything, "m1", "u1").Return(&persistence.Meeting{ID: "m1", UserID: "u1"}, nil)
	summarizerMock.On("Summarize", mock.Anything, mock.Anything).Return(&summarizer.Result{SummaryNotes: strP("Notes.")}, nil)
	dbMock.On("SaveSummary", mock.Anything, mock.Anything).Return(errors.New("db down"))
	em := &testEmitter{}

	res, err := RunSummary(test.Ctx(t), tData, "u1", newSummaryReq(), em)

	require.Nil(t, err)
	assert.False(t, res.Saved)
	require.Equal(t, 7, len(em.events))
	assert.Equal(t, strP("Notes."), em.events[4].Summary)
	assert.Equal(t, api.Event{Error: "Failed to save summary", Details: "db down", MeetingID: "m1"}, em.events[5])
	assert.Equal(t, "Processing completed", em.events[6].Status)
}
