//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/status"
	"github.com/airenas/meetnotes/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	ingestURL  string
	dbURL      string
	secret     string
	httpclient *http.Client
}

var cfg config

func TestMain(m *testing.M) {
	cfg.ingestURL = GetEnvOrFail("INGEST_URL")
	cfg.dbURL = GetEnvOrFail("DB_URL")
	cfg.secret = GetEnvOrFail("AUTH_SECRET")
	cfg.httpclient = &http.Client{Timeout: time.Second * 30}

	tCtx, cf := context.WithTimeout(context.Background(), time.Second*20)
	defer cf()
	WaitForOpenOrFail(tCtx, cfg.dbURL)
	WaitForOpenOrFail(tCtx, cfg.ingestURL)
	waitForDB(tCtx, cfg.dbURL)

	// speech and llm services are mocked, ingest is configured to call this port
	l, ts := startMockService(9876)
	defer ts.Close()
	defer l.Close()

	os.Exit(m.Run())
}

func TestLive(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.ingestURL, "/live", "", nil)), http.StatusOK)
}

func TestUpload(t *testing.T) {
	t.Parallel()
	resp := test.Invoke(t, cfg.httpclient, newUploadRequest(t, "/upload", "u1", []string{"audio.mp3"}, nil))
	test.CheckCode(t, resp, http.StatusOK)
	res := test.Decode[api.UploadResult](t, resp)
	assert.True(t, strings.HasPrefix(res.FilePath, "u1/"))
	assert.Equal(t, "audio.mp3", res.OriginalFileName)
}

func TestUpload_Fail(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, newUploadRequest(t, "/upload", "", []string{"audio.mp3"}, nil)),
		http.StatusUnauthorized)
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, newUploadRequest(t, "/upload", "u1", []string{}, nil)),
		http.StatusBadRequest)
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, newUploadRequest(t, "/upload", "u1", []string{"audio.exe"}, nil)),
		http.StatusBadRequest)
}

func TestTranscribe_Fail_Unauthorized(t *testing.T) {
	t.Parallel()
	req := NewRequest(t, http.MethodPost, cfg.ingestURL, "/transcribe", "",
		api.TranscribeRequest{FilePath: "u1/a.mp3", OriginalFileName: "a.mp3"})
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, req), http.StatusUnauthorized)
}

func TestTranscript_Fail_NotFound(t *testing.T) {
	t.Parallel()
	resp := test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.ingestURL, "/meetings/missing/transcript", "u1", nil))
	test.CheckCode(t, resp, http.StatusNotFound)
}

func TestPipeline(t *testing.T) {
	t.Parallel()
	resp := test.Invoke(t, cfg.httpclient, newUploadRequest(t, "/upload", "u2", []string{"meeting.wav"}, nil))
	test.CheckCode(t, resp, http.StatusOK)
	up := test.Decode[api.UploadResult](t, resp)

	resp = test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.ingestURL, "/transcribe", "u2",
		api.TranscribeRequest{FilePath: up.FilePath, OriginalFileName: up.OriginalFileName}))
	test.CheckCode(t, resp, http.StatusOK)
	evs := test.Events(t, resp.Body)
	require.Equal(t, 3, len(evs))
	assert.Equal(t, status.Started, status.From(evs[0].Status))
	id := evs[0].MeetingID
	require.NotEmpty(t, id)
	assert.NotEmpty(t, evs[1].Payload["results"])
	assert.Equal(t, status.Completed, status.From(evs[2].Status))

	resp = test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.ingestURL, "/meetings/"+id+"/transcript", "u2", nil))
	test.CheckCode(t, resp, http.StatusOK)
	tv := test.Decode[api.TranscriptView](t, resp)
	require.Equal(t, 2, len(tv.Segments))
	assert.Equal(t, "Speaker 0", tv.Segments[0].SpeakerName)
	assert.Equal(t, "Labas rytas.", tv.Segments[0].Text)

	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.ingestURL, "/meetings/"+id+"/transcript", "u1", nil)),
		http.StatusNotFound)

	segs := make([]api.Segment, 0, len(tv.Segments))
	for _, s := range tv.Segments {
		segs = append(segs, s.Segment)
	}
	resp = test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.ingestURL, "/summarize", "u2",
		api.SummarizeRequest{MeetingID: id, Transcript: segs}))
	test.CheckCode(t, resp, http.StatusOK)
	evs = test.Events(t, resp.Body)
	require.Equal(t, 6, len(evs))
	require.NotNil(t, evs[4].Title)
	assert.Equal(t, "Rytinis susitikimas", *evs[4].Title)
	assert.Equal(t, status.Completed.String(), evs[5].Status)

	resp = test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPut, cfg.ingestURL, "/meetings/"+id+"/speakers", "u2",
		api.SpeakersRequest{SpeakerContacts: map[string]*string{"0": nil, "1": nil}}))
	test.CheckCode(t, resp, http.StatusOK)

	resp = test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.ingestURL, "/meetings/"+id+"/audio", "u2", nil))
	test.CheckCode(t, resp, http.StatusOK)
	assert.Equal(t, "meeting.wav", test.RStr(t, resp.Body))

	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodDelete, cfg.ingestURL, "/meetings/"+id, "u2", nil)),
		http.StatusNoContent)
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.ingestURL, "/meetings/"+id+"/transcript", "u2", nil)),
		http.StatusNotFound)
}

func TestResume_ScheduledMeeting(t *testing.T) {
	t.Parallel()
	id := fmt.Sprintf("scheduled-%d", time.Now().UnixNano())
	insertScheduledMeeting(t, id, "u3")

	resp := test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.ingestURL, "/meetings/"+id+"/transcript", "u3", nil))
	test.CheckCode(t, resp, http.StatusOK)
	assert.Empty(t, test.Decode[api.TranscriptView](t, resp).Segments)
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.ingestURL, "/meetings/"+id+"/audio", "u3", nil)),
		http.StatusNotFound)

	resp = test.Invoke(t, cfg.httpclient, newUploadRequest(t, "/upload", "u3", []string{"later.wav"}, nil))
	test.CheckCode(t, resp, http.StatusOK)
	up := test.Decode[api.UploadResult](t, resp)
	resp = test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.ingestURL, "/transcribe", "u3",
		api.TranscribeRequest{FilePath: up.FilePath, OriginalFileName: up.OriginalFileName, MeetingID: id}))
	test.CheckCode(t, resp, http.StatusOK)
	evs := test.Events(t, resp.Body)
	require.Equal(t, 3, len(evs))
	assert.Equal(t, id, evs[0].MeetingID)

	resp = test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.ingestURL, "/meetings/"+id+"/audio", "u3", nil))
	test.CheckCode(t, resp, http.StatusOK)
	assert.Equal(t, "later.wav", test.RStr(t, resp.Body))
}

func newUploadRequest(t *testing.T, urlSuffix, user string, files []string, params [][2]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i, f := range files {
		n := "file"
		if i > 0 {
			n = fmt.Sprintf("file%d", i+1)
		}
		part, _ := writer.CreateFormFile(n, f)
		_, _ = io.Copy(part, strings.NewReader(f))
	}
	for _, p := range params {
		_ = writer.WriteField(p[0], p[1])
	}
	writer.Close()
	req, err := http.NewRequest(http.MethodPost, cfg.ingestURL+urlSuffix, body)
	require.Nil(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	addToken(t, req, user)
	return req
}

const transcriptionResponse = `{"results":{"channels":[{"alternatives":[{"transcript":"labas rytas sveiki",
"words":[{"word":"labas","punctuated_word":"Labas","start":0.1,"end":0.5,"confidence":0.9,"speaker":0},
{"word":"rytas","punctuated_word":"rytas.","start":0.5,"end":0.9,"confidence":0.9,"speaker":0},
{"word":"sveiki","punctuated_word":"Sveiki.","start":1.2,"end":1.6,"confidence":0.9,"speaker":1}]}]}],
"utterances":[{"start":0.1,"end":0.9,"transcript":"Labas rytas.","speaker":0},
{"start":1.2,"end":1.6,"transcript":"Sveiki.","speaker":1}]}}`

const summaryResponse = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant",
"content":"{\"title\":\"Rytinis susitikimas\",\"summary_notes\":\"- pasisveikinta\"}"}}]}`

func startMockService(port int) (net.Listener, *httptest.Server) {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Fatalf("can't start mock service: %v", err)
	}
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/listen":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.Copy(w, strings.NewReader(transcriptionResponse))
		case "/v1/chat/completions":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.Copy(w, strings.NewReader(summaryResponse))
		default:
			log.Printf("Unknown request to: %s", r.URL.String())
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ts.Listener.Close()
	ts.Listener = l

	ts.Start()
	log.Printf("started mock srv on port: %d", port)
	return l, ts
}
