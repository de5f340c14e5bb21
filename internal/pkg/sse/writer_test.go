package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noFlushWriter struct {
	http.ResponseWriter
}

func TestStart(t *testing.T) {
	rec := httptest.NewRecorder()

	w, err := Start(rec)

	require.Nil(t, err)
	require.NotNil(t, w)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.True(t, rec.Flushed)
}

func TestStart_Fail(t *testing.T) {
	_, err := Start(noFlushWriter{ResponseWriter: httptest.NewRecorder()})

	assert.NotNil(t, err)
}

func TestEmit(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := Start(rec)
	require.Nil(t, err)

	require.Nil(t, w.Emit(test.Ctx(t), api.Event{Status: "Processing started", MeetingID: "m1"}))
	require.Nil(t, w.Emit(test.Ctx(t), api.Event{Status: "Processing completed", MeetingID: "m1"}))

	assert.Equal(t, "data: {\"status\":\"Processing started\",\"meetingId\":\"m1\"}\n\n"+
		"data: {\"status\":\"Processing completed\",\"meetingId\":\"m1\"}\n\n", rec.Body.String())
	assert.Equal(t, 2, w.Count())
	evs := test.Events(t, rec.Body)
	require.Equal(t, 2, len(evs))
	assert.Equal(t, "Processing completed", evs[1].Status)
}

func TestEmit_Closed(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := Start(rec)
	require.Nil(t, err)
	ctx, cf := context.WithCancel(context.Background())
	cf()

	err = w.Emit(ctx, api.Event{Status: "s"})

	assert.NotNil(t, err)
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, "", rec.Body.String())
}

func TestFormat(t *testing.T) {
	b, err := Format(api.Event{Error: "olia"})
	require.Nil(t, err)
	assert.Equal(t, "data: {\"error\":\"olia\"}\n\n", string(b))
}
