package sse

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for {
		payload, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, string(payload))
	}
}

func TestReaderFraming(t *testing.T) {
	input := ": keep-alive\n\n" +
		"event: message\ndata: first\n\n" +
		"id: 7\r\ndata:second\r\n\r\n" +
		"retry: 100\n\n" +
		"data: third"

	got := readAll(t, NewReader(strings.NewReader(input)))
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestReaderSplitReads(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: [DONE]\n\n"

	whole := readAll(t, NewReader(strings.NewReader(input)))
	oneByte := readAll(t, NewReader(iotest.OneByteReader(strings.NewReader(input))))
	half := readAll(t, NewReader(iotest.HalfReader(strings.NewReader(input))))

	assert.Equal(t, []string{`{"a":1}`, "[DONE]"}, whole)
	assert.Equal(t, whole, oneByte)
	assert.Equal(t, whole, half)
}

func TestReaderPropagatesIOError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(io.MultiReader(
		strings.NewReader("data: ok\n\ndata: partial"),
		iotest.ErrReader(boom),
	))

	payload, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(payload))

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestReaderEOFIsSticky(t *testing.T) {
	r := NewReader(strings.NewReader("data: x\n"))
	_, err := r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestIsDone(t *testing.T) {
	assert.True(t, IsDone([]byte("[DONE]")))
	assert.True(t, IsDone([]byte(" [DONE] ")))
	assert.False(t, IsDone([]byte(`{"done":true}`)))
}

func TestWriterRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	require.NoError(t, w.WriteJSON(map[string]string{"type": "chunk", "content": "Hi"}))
	require.NoError(t, w.WriteComment("ping"))
	require.NoError(t, w.WriteData([]byte("[DONE]")))

	assert.True(t, rec.Flushed)
	assert.Equal(t, "data: {\"content\":\"Hi\",\"type\":\"chunk\"}\n\n: ping\n\ndata: [DONE]\n\n", rec.Body.String())

	got := readAll(t, NewReader(bytes.NewReader(rec.Body.Bytes())))
	assert.Equal(t, []string{`{"content":"Hi","type":"chunk"}`, "[DONE]"}, got)
}

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec.Header())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}
