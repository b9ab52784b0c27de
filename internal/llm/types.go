package llm

import (
	"context"
	"errors"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request carries one prompt in both shapes: chat messages and a flattened
// text for completion-style endpoints.
type Request struct {
	Messages []Message
	Prompt   string
}

// Backend is one generation server protocol.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request, params Params) (string, error)
	// Stream delivers incremental text to onChunk until the response ends or
	// onChunk returns false. A consumer stop is not an error.
	Stream(ctx context.Context, req Request, params Params, onChunk func(string) bool) error
	Ping(ctx context.Context) error
}

var (
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	ErrEmptyResponse      = errors.New("generation backend returned an empty response")
)

// BackendError describes a failed call to the generation backend. It always
// matches ErrBackendUnavailable.
type BackendError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *BackendError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("backend request failed: %v", e.Err)
	case e.Body != "":
		return fmt.Sprintf("backend error: %s", e.Body)
	default:
		return ErrBackendUnavailable.Error()
	}
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}
