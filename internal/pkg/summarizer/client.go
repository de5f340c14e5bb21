package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetnotes/internal/pkg/api"
	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const systemPrompt = `You are an assistant that writes meeting notes from a meeting transcript.
The transcript is a JSON list of segments with a speaker index, a start time in seconds and the spoken text.
Write the notes in Markdown with these sections: title, date, participants, agenda, key points, action items, next steps.
Omit a section if the transcript has no information for it.
Mark ambiguous or unclear content as "To be clarified".
Use a professional tone. Do not invent facts, names, dates or decisions that are not in the transcript.
Return a short meeting title in "title" and the Markdown notes in "summary_notes".`

// Result of the summarization
type Result struct {
	Title        *string
	SummaryNotes *string
	// Raw is the whole service response as JSON
	Raw string
}

// Empty returns true if the service gave no usable content
func (r *Result) Empty() bool {
	return r == nil || (r.Title == nil && r.SummaryNotes == nil)
}

type notes struct {
	Title        *string `json:"title"`
	SummaryNotes *string `json:"summary_notes"`
}

// Client calls the LLM chat completion api
type Client struct {
	cli     *openai.Client
	model   string
	timeout time.Duration
	backoff func() backoff.BackOff
}

// NewClient creates a summarization client
func NewClient(key, model, baseURL string, timeout time.Duration) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("no key")
	}
	if model == "" {
		return nil, fmt.Errorf("no model")
	}
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	res := &Client{cli: openai.NewClientWithConfig(cfg), model: model, timeout: timeout}
	if res.timeout <= 0 {
		res.timeout = time.Minute * 5
	}
	res.backoff = newSimpleBackoff
	goapp.Log.Info().Str("model", model).Str("url", cfg.BaseURL).Dur("timeout", res.timeout).Msg("summarizer")
	return res, nil
}

// Summarize produces a title and Markdown notes for the transcript
func (c *Client) Summarize(ctx context.Context, transcript []api.Segment) (*Result, error) {
	tb, err := json.Marshal(transcript)
	if err != nil {
		return nil, fmt.Errorf("can't marshal transcript: %w", err)
	}
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(tb)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "meeting_notes",
				Schema: notesSchema(),
				Strict: true,
			},
		},
	}
	resp, err := goapp.InvokeWithBackoff(ctx, func() (openai.ChatCompletionResponse, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		goapp.Log.Info().Str("model", c.model).Int("len", len(tb)).Msg("call")
		resp, err := c.cli.CreateChatCompletion(ctx, req)
		if err != nil {
			return resp, isRetryable(err), fmt.Errorf("can't call: %w", err)
		}
		return resp, false, nil
	}, c.backoff())
	if err != nil {
		return nil, err
	}
	return parse(resp)
}

func parse(resp openai.ChatCompletionResponse) (*Result, error) {
	rb, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("can't marshal response: %w", err)
	}
	res := &Result{Raw: string(rb)}
	if len(resp.Choices) == 0 {
		return res, nil
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return res, nil
	}
	var n notes
	if err := json.Unmarshal([]byte(content), &n); err != nil {
		return nil, fmt.Errorf("can't decode content: %w", err)
	}
	res.Title = nonEmpty(n.Title)
	res.SummaryNotes = nonEmpty(n.SummaryNotes)
	return res, nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func notesSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"title":         {Type: jsonschema.String, Description: "short meeting title, empty if unknown"},
			"summary_notes": {Type: jsonschema.String, Description: "meeting notes in Markdown"},
		},
		Required:             []string{"title", "summary_notes"},
		AdditionalProperties: false,
	}
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return goapp.IsRetryableCode(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return goapp.IsRetryableCode(reqErr.HTTPStatusCode)
	}
	return goapp.IsRetryableErr(err)
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 2)
}
