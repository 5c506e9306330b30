// Package sse implements the line-delimited event-stream framing used both
// toward the upstream provider and toward our own clients.
//
// A record is one or more field lines terminated by a blank line. Only data
// lines carry payload; each data line is surfaced on its own.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// DonePayload is the sentinel payload that terminates an upstream stream.
const DonePayload = "[DONE]"

var dataPrefix = []byte("data:")

// Reader yields data-line payloads from an event stream.
// Lines split across arbitrary read boundaries are reassembled before they
// are inspected; a read never has to line up with a record.
type Reader struct {
	r    *bufio.Reader
	done bool
}

// NewReader creates a new event-stream reader from an io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the payload of the next data line.
// Blank separators, comments and other fields (event:, id:, retry:) are skipped.
// Returns io.EOF when the stream ends. A trailing data line without a line
// terminator is still delivered before io.EOF.
func (r *Reader) Next() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}
	for {
		line, err := r.r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			// A partial line before an I/O failure is never surfaced.
			return nil, err
		}
		if err != nil {
			r.done = true
		}

		if payload, ok := dataPayload(line); ok {
			return payload, nil
		}
		if r.done {
			return nil, io.EOF
		}
	}
}

func dataPayload(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := line[len(dataPrefix):]
	// A single space after the colon is part of the framing, not the payload.
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	return payload, true
}

// IsDone reports whether payload is the termination sentinel.
func IsDone(payload []byte) bool {
	return string(bytes.TrimSpace(payload)) == DonePayload
}
