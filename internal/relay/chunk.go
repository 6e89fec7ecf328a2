package relay

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

type chunkKind int

const (
	chunkEmpty chunkKind = iota // valid payload without text
	chunkText
	chunkError
)

// chunk is one decoded upstream payload.
type chunk struct {
	kind     chunkKind
	text     string
	message  string
	code     int
	provider string
}

var errMalformed = errors.New("malformed chunk")

// decodeChunk interprets one upstream data payload. Shapes are tried in a
// fixed order: error object, string delta, content-part delta, full
// message, then nothing.
func decodeChunk(payload string) (chunk, error) {
	if !gjson.Valid(payload) {
		return chunk{}, errMalformed
	}
	root := gjson.Parse(payload)
	if !root.IsObject() {
		return chunk{}, errMalformed
	}

	c := chunk{provider: root.Get("provider").String()}

	if e := root.Get("error"); e.Exists() {
		c.kind = chunkError
		c.message, c.code = decodeError(e)
		return c, nil
	}

	content := root.Get("choices.0.delta.content")
	switch {
	case content.Type == gjson.String:
		c.kind, c.text = chunkText, content.String()
		return c, nil
	case content.IsArray():
		var b strings.Builder
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Type == gjson.String {
				b.WriteString(part.String())
				return true
			}
			if t := part.Get("type").String(); t != "" && t != "text" && t != "output_text" {
				return true
			}
			b.WriteString(part.Get("text").String())
			return true
		})
		c.kind, c.text = chunkText, b.String()
		return c, nil
	}

	if msg := root.Get("choices.0.message.content"); msg.Type == gjson.String {
		c.kind, c.text = chunkText, msg.String()
		return c, nil
	}
	if text := root.Get("choices.0.text"); text.Type == gjson.String {
		c.kind, c.text = chunkText, text.String()
		return c, nil
	}

	c.kind = chunkEmpty
	return c, nil
}

// decodeError accepts {"error":"msg"} and {"error":{"message","code"}},
// where code may be numeric or a numeric string.
func decodeError(e gjson.Result) (string, int) {
	if e.Type == gjson.String {
		return e.String(), 0
	}
	message := e.Get("message").String()
	code := 0
	for _, path := range []string{"code", "status"} {
		v := e.Get(path)
		if v.Type == gjson.Number || (v.Type == gjson.String && v.Int() != 0) {
			code = int(v.Int())
			break
		}
	}
	if message == "" {
		message = e.Raw
	}
	return message, code
}
