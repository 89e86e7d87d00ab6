package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Writer sends Server-Sent Events to an http.ResponseWriter.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the event-stream headers and returns a Writer, or nil if the
// ResponseWriter cannot flush.
func NewWriter(w http.ResponseWriter) *Writer {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}
}

// SendEvent writes a labelled event with a JSON payload.
func (s *Writer) SendEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal sse data")
	}
	if _, err := fmt.Fprintf(s.w, "%s%s\n%s%s\n\n", EventPrefix, event, DataPrefix, payload); err != nil {
		return errors.Wrap(err, "write sse event")
	}
	s.flusher.Flush()
	return nil
}

// SendData writes an unlabelled event.
func (s *Writer) SendData(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal sse data")
	}
	if _, err := fmt.Fprintf(s.w, "%s%s\n\n", DataPrefix, payload); err != nil {
		return errors.Wrap(err, "write sse data")
	}
	s.flusher.Flush()
	return nil
}

// SendComment writes a comment line, used as a keep-alive.
func (s *Writer) SendComment(text string) {
	_, _ = fmt.Fprintf(s.w, ": %s\n\n", text)
	s.flusher.Flush()
}

const (
	EventPrefix = "event: "
	DataPrefix  = "data: "
)
