package summarizer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/airenas/meetnotes/internal/pkg/test"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestServer(t *testing.T, code int, content string) (*Client, *[]map[string]interface{}) {
	t.Helper()
	resRequest := make([]map[string]interface{}, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		b, _ := io.ReadAll(req.Body)
		var r map[string]interface{}
		_ = json.Unmarshal(b, &r)
		resRequest = append(resRequest, r)
		if req.URL.Path != "/v1/chat/completions" {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(code)
		if code != http.StatusOK {
			_, _ = rw.Write([]byte(`{"error":{"message":"bad","type":"invalid_request_error"}}`))
			return
		}
		cb, _ := json.Marshal(content)
		_, _ = rw.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,
			"message":{"role":"assistant","content":` + string(cb) + `},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(func() { server.Close() })
	res, err := NewClient("k1", "gpt-4o-mini", server.URL+"/v1", time.Second)
	require.Nil(t, err)
	res.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	return res, &resRequest
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", "m", "", 0)
	assert.NotNil(t, err)
	_, err = NewClient("k", "", "", 0)
	assert.NotNil(t, err)
	c, err := NewClient("k", "m", "", 0)
	require.Nil(t, err)
	assert.Equal(t, time.Minute*5, c.timeout)
}

func TestSummarize(t *testing.T) {
	c, reqs := initTestServer(t, http.StatusOK, `{"title":"Planning","summary_notes":"# Notes"}`)

	r, err := c.Summarize(test.Ctx(t), []api.Segment{{Speaker: 0, Start: 0, Text: "Hi"}})

	require.Nil(t, err)
	require.NotNil(t, r.Title)
	assert.Equal(t, "Planning", *r.Title)
	require.NotNil(t, r.SummaryNotes)
	assert.Equal(t, "# Notes", *r.SummaryNotes)
	assert.False(t, r.Empty())
	assert.Contains(t, r.Raw, `"id":"c1"`)

	require.Equal(t, 1, len(*reqs))
	req := (*reqs)[0]
	assert.Equal(t, "gpt-4o-mini", req["model"])
	msgs := req["messages"].([]interface{})
	require.Equal(t, 2, len(msgs))
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Contains(t, msgs[0].(map[string]interface{})["content"], "To be clarified")
	assert.JSONEq(t, `[{"speaker":0,"start":0,"text":"Hi"}]`, msgs[1].(map[string]interface{})["content"].(string))
	rf := req["response_format"].(map[string]interface{})
	assert.Equal(t, "json_schema", rf["type"])
}

func TestSummarize_NullTitle(t *testing.T) {
	c, _ := initTestServer(t, http.StatusOK, `{"title":null,"summary_notes":"Notes."}`)

	r, err := c.Summarize(test.Ctx(t), []api.Segment{{Text: "Hi"}})

	require.Nil(t, err)
	assert.Nil(t, r.Title)
	require.NotNil(t, r.SummaryNotes)
	assert.Equal(t, "Notes.", *r.SummaryNotes)
}

func TestSummarize_Empty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "spaces", content: "  "},
		{name: "empty fields", content: `{"title":"","summary_notes":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := initTestServer(t, http.StatusOK, tt.content)
			r, err := c.Summarize(test.Ctx(t), []api.Segment{{Text: "Hi"}})
			require.Nil(t, err)
			assert.True(t, r.Empty())
			assert.NotEmpty(t, r.Raw)
		})
	}
}

func TestSummarize_WrongContent_Fails(t *testing.T) {
	c, _ := initTestServer(t, http.StatusOK, `# not json`)

	_, err := c.Summarize(test.Ctx(t), []api.Segment{{Text: "Hi"}})

	assert.NotNil(t, err)
}

func TestSummarize_Code_Fails(t *testing.T) {
	c, _ := initTestServer(t, http.StatusBadRequest, "")

	_, err := c.Summarize(test.Ctx(t), []api.Segment{{Text: "Hi"}})

	assert.NotNil(t, err)
}

func TestResult_Empty(t *testing.T) {
	s := "a"
	assert.True(t, (*Result)(nil).Empty())
	assert.True(t, (&Result{}).Empty())
	assert.False(t, (&Result{Title: &s}).Empty())
	assert.False(t, (&Result{SummaryNotes: &s}).Empty())
}
