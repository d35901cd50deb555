// Package sse writes server-sent event streams for long-running
// operations. Every stream opens with an "open" event and terminates
// with a "done" event regardless of outcome, so clients never have to
// infer completion from the connection closing.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Open is the payload of the initial event on every stream.
type Open struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Done is the payload of the terminal event on every stream. Code is the
// process exit status, or -1 when no process ran to completion.
type Done struct {
	OK   bool `json:"ok"`
	Code int  `json:"code"`
}

// Writer frames events onto an http.ResponseWriter and flushes after
// each one so lines reach the client as they are produced.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the stream headers and returns a Writer. It fails when
// the ResponseWriter cannot flush, which means the handler is running
// behind a buffering wrapper that streaming cannot work through.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Tell nginx not to buffer the stream.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &Writer{w: w, flusher: flusher}, nil
}

// Event writes a named event with a raw data payload.
func (s *Writer) Event(name, data string) {
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.flusher.Flush()
}

// Line writes an unnamed data frame, the per-line relay format.
func (s *Writer) Line(text string) {
	fmt.Fprintf(s.w, "data: %s\n\n", text)
	s.flusher.Flush()
}

// JSON marshals v and writes it as a named event.
func (s *Writer) JSON(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		// Payload types here are plain structs; this cannot happen
		// outside programmer error.
		s.Event("error", fmt.Sprintf("encode %s event: %v", name, err))
		return
	}
	s.Event(name, string(data))
}

// SendOpen emits the initial event.
func (s *Writer) SendOpen(message string) {
	s.JSON("open", Open{OK: true, Message: message})
}

// SendError emits an error event with a plain-text message. The stream
// is still expected to end with SendDone.
func (s *Writer) SendError(message string) {
	s.Event("error", message)
}

// SendDone emits the terminal event.
func (s *Writer) SendDone(ok bool, code int) {
	s.JSON("done", Done{OK: ok, Code: code})
}
