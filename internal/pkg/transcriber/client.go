package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	tapi "github.com/airenas/meetnotes/internal/pkg/transcriber/api"
	"github.com/cenkalti/backoff/v4"
)

// Client comunicates with the speech transcription service
type Client struct {
	httpclient *http.Client
	url        string
	key        string
	model      string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a transcriber client
func NewClient(urlStr, key, model string, timeout time.Duration) (*Client, error) {
	res := Client{}
	if urlStr == "" {
		return nil, fmt.Errorf("no URL")
	}
	if key == "" {
		return nil, fmt.Errorf("no key")
	}
	if _, err := url.Parse(urlStr); err != nil {
		return nil, fmt.Errorf("wrong URL '%s': %w", urlStr, err)
	}
	res.url = urlStr
	res.key = key
	res.model = model
	res.timeout = timeout
	if res.timeout <= 0 {
		res.timeout = time.Minute * 10
	}
	res.httpclient = asrHTTPClient()
	res.backoff = newSimpleBackoff
	goapp.Log.Info().Str("url", urlStr).Str("model", model).Dur("timeout", res.timeout).Msg("transcriber")
	return &res, nil
}

// Transcribe sends audio and waits for the diarized, punctuated result
func (sp *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (*tapi.Result, error) {
	urlStr, err := sp.makeURL()
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return goapp.InvokeWithBackoff(ctx, func() (*tapi.Result, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(audio))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Token "+sp.key)
		goapp.Log.Info().Str("url", req.URL.String()).Int("len", len(audio)).Msg("call")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 500); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		br, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't read body: %w", err)
		}
		res := &tapi.Result{}
		if err := json.Unmarshal(br, res); err != nil {
			return nil, false, fmt.Errorf("can't decode response: %w", err)
		}
		res.Raw = br
		return res, false, nil
	}, sp.backoff())
}

func (sp *Client) makeURL() (string, error) {
	u, err := url.Parse(sp.url)
	if err != nil {
		return "", fmt.Errorf("can't parse url: %w", err)
	}
	q := u.Query()
	q.Set("diarize", "true")
	q.Set("punctuate", "true")
	q.Set("utterances", "true")
	if sp.model != "" {
		q.Set("model", sp.model)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func asrHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 20
	res.MaxIdleConns = 10
	res.MaxIdleConnsPerHost = 10
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
