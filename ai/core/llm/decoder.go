package llm

import (
	"errors"
	"io"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/hrygo/divinechat/internal/sse"
)

const deltaContentPath = "choices.0.delta.content"

// Decoder turns an upstream event stream into content increments.
// Corrupt records and records without a content delta are skipped; only a
// failure of the underlying reader is returned as an error.
type Decoder struct {
	r       *sse.Reader
	done    bool
	skipped int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: sse.NewReader(r)}
}

// Next returns the next non-empty increment, or io.EOF after the [DONE]
// sentinel or the end of the stream.
func (d *Decoder) Next() (string, error) {
	for !d.done {
		payload, err := d.r.Next()
		if errors.Is(err, io.EOF) {
			d.done = true
			break
		}
		if err != nil {
			return "", err
		}

		if sse.IsDone(payload) {
			d.done = true
			break
		}
		if !gjson.ValidBytes(payload) {
			d.skipped++
			slog.Debug("LLM: skipping malformed stream record", "size", len(payload))
			continue
		}

		if errMsg := gjson.GetBytes(payload, "error.message"); errMsg.Exists() {
			slog.Warn("LLM: upstream reported an error record mid-stream", "message", errMsg.String())
			continue
		}

		delta := gjson.GetBytes(payload, deltaContentPath)
		if delta.Type != gjson.String || delta.Str == "" {
			// role announcement, finish_reason, usage, keep-alive
			continue
		}
		return delta.Str, nil
	}
	return "", io.EOF
}

// Skipped reports how many corrupt records were dropped so far.
func (d *Decoder) Skipped() int {
	return d.skipped
}
