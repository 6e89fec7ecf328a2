// Package sse implements the text/event-stream framing shared by the relay
// and the relay client.
//
// Events are delimited by a blank line. Network reads may split an event (or
// the delimiter itself) at any byte offset, so a Framer buffers input until at
// least one complete event is available and keeps the remainder for the next
// read.
package sse

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Done is the literal payload that terminates an OpenAI-style stream.
const Done = "[DONE]"

// ContentType is the media type of an event stream response.
const ContentType = "text/event-stream"

var delimiter = []byte("\n\n")

// Framer splits a byte stream into the data payloads of complete events.
// The zero value is ready to use.
type Framer struct {
	buf []byte
}

// Feed appends p to the receive buffer and returns the data payload of every
// event that is now complete. Events carrying no data lines (comments,
// keep-alives) are dropped.
func (f *Framer) Feed(p []byte) []string {
	for _, b := range p {
		// CRLF streams are normalised to LF so that "\r\n\r\n" split across
		// reads is still recognised as one delimiter.
		if b == '\r' {
			continue
		}
		f.buf = append(f.buf, b)
	}

	var payloads []string
	for {
		idx := bytes.Index(f.buf, delimiter)
		if idx < 0 {
			break
		}
		unit := f.buf[:idx]
		f.buf = f.buf[idx+len(delimiter):]
		if payload, ok := parseUnit(unit); ok {
			payloads = append(payloads, payload)
		}
	}

	// Reclaim the backing array once everything has been consumed.
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return payloads
}

// Flush returns the payload of a trailing event that was never terminated by
// a blank line, and resets the framer. It is meant to be called at EOF.
func (f *Framer) Flush() (string, bool) {
	unit := bytes.TrimRight(f.buf, "\n")
	f.buf = nil
	if len(unit) == 0 {
		return "", false
	}
	return parseUnit(unit)
}

// Buffered reports how many bytes are waiting for a delimiter.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func parseUnit(unit []byte) (string, bool) {
	var data []string
	for _, line := range strings.Split(string(unit), "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			// event:, id: and retry: fields carry nothing we relay
			continue
		}
		data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}
	if len(data) == 0 {
		return "", false
	}
	return strings.Join(data, "\n"), true
}

// Write frames payload as a single event.
func Write(w io.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
	return nil
}

// WriteDone writes the terminal sentinel event.
func WriteDone(w io.Writer) error {
	return Write(w, []byte(Done))
}

// SetHeaders prepares an HTTP response for streaming.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType+"; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
