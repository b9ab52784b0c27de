package llm

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/pkg/logger"
)

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// decodeStream reads newline-delimited JSON objects from r and passes the
// text of each to onChunk. Malformed lines are skipped and an unterminated
// last line is still decoded. It reports whether onChunk asked to stop.
func decodeStream(r io.Reader, onChunk func(string) bool) (bool, error) {
	reader := bufio.NewReader(r)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			text, err := decodeLine(line)
			if err != nil {
				return false, err
			}
			if text != "" && !onChunk(text) {
				return true, nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return false, nil
			}
			return false, &BackendError{Err: readErr}
		}
	}
}

// decodeLine extracts the text of one stream line. SSE framing is accepted
// so OpenAI-compatible servers can share the decoder.
func decodeLine(line []byte) (string, error) {
	line = bytes.TrimSpace(line)
	if bytes.HasPrefix(line, dataPrefix) {
		line = bytes.TrimSpace(line[len(dataPrefix):])
	}
	if len(line) == 0 || bytes.Equal(line, doneMarker) {
		return "", nil
	}
	if !gjson.ValidBytes(line) {
		logger.Debug("Skipping malformed stream line", zap.Int("bytes", len(line)))
		return "", nil
	}

	if msg := gjson.GetBytes(line, "error"); msg.Exists() {
		return "", &BackendError{Body: msg.String()}
	}
	return chunkText(line), nil
}

// chunkText picks the generated text out of a decoded object. Chat, generate
// and delta shapes are recognised.
func chunkText(obj []byte) string {
	message := gjson.GetBytes(obj, "message")
	switch {
	case message.IsObject():
		return message.Get("content").String()
	case message.Type == gjson.String:
		return message.String()
	}
	if response := gjson.GetBytes(obj, "response"); response.Exists() {
		return response.String()
	}
	if delta := gjson.GetBytes(obj, "delta.content"); delta.Exists() {
		return delta.String()
	}
	return gjson.GetBytes(obj, "choices.0.delta.content").String()
}
