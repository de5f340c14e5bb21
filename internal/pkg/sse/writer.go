package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/airenas/meetnotes/internal/pkg/api"
)

// Writer writes pipeline events as a text/event-stream
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	lock    sync.Mutex
	count   int
}

// Start writes stream headers and returns the event writer
func Start(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Writer{w: w, flusher: f}, nil
}

// Emit writes one event and flushes it to the client
func (s *Writer) Emit(ctx context.Context, ev api.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stream closed: %w", err)
	}
	b, err := Format(ev)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("can't write event: %w", err)
	}
	s.flusher.Flush()
	s.count++
	return nil
}

// Count returns the number of written events
func (s *Writer) Count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.count
}

// Format frames the event as `data: <json>\n\n`
func Format(ev api.Event) ([]byte, error) {
	eb, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("can't marshal event: %w", err)
	}
	var b bytes.Buffer
	b.Grow(len(eb) + 8)
	b.WriteString("data: ")
	b.Write(eb)
	b.WriteString("\n\n")
	return b.Bytes(), nil
}
