package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newOpenAIServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"object":"list","data":[{"id":"m","object":"model"}]}`)
		case "/v1/chat/completions":
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "m", gjson.GetBytes(body, "model").String())
			assert.Greater(t, gjson.GetBytes(body, "temperature").Float(), 0.0)
			assert.InDelta(t, 0.5, gjson.GetBytes(body, "frequency_penalty").Float(), 1e-6)

			if gjson.GetBytes(body, "stream").Bool() {
				w.Header().Set("Content-Type", "text/event-stream")
				for _, part := range []string{"Хер", "сонський"} {
					fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
				}
				fmt.Fprint(w, "data: [DONE]\n\n")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":" Відповідь "},"finish_reason":"stop"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIBackend_Complete(t *testing.T) {
	srv := newOpenAIServer(t)
	backend := NewOpenAIBackend(srv.URL, "key", "m")

	answer, err := backend.Complete(context.Background(), chatRequest(), Params{Temperature: 0, TopP: 0.25, NumPredict: 100, RepeatPenalty: 1.5})
	require.NoError(t, err)
	assert.Equal(t, "Відповідь", answer)
}

func TestOpenAIBackend_Stream(t *testing.T) {
	srv := newOpenAIServer(t)
	backend := NewOpenAIBackend(srv.URL+"/v1", "key", "m")

	var chunks []string
	err := backend.Stream(context.Background(), chatRequest(), Params{Temperature: 0.1, RepeatPenalty: 1.5}, func(s string) bool {
		chunks = append(chunks, s)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Хер", "сонський"}, chunks)
}

func TestOpenAIBackend_PingAndErrors(t *testing.T) {
	srv := newOpenAIServer(t)
	assert.NoError(t, NewOpenAIBackend(srv.URL, "key", "m").Ping(context.Background()))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer broken.Close()

	_, err := NewOpenAIBackend(broken.URL, "key", "m").Complete(context.Background(), chatRequest(), defaultProfile)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusInternalServerError, backendErr.StatusCode)
}

func TestFrequencyPenalty(t *testing.T) {
	assert.InDelta(t, 0.5, frequencyPenalty(1.5), 1e-6)
	assert.Equal(t, float32(2), frequencyPenalty(4))
	assert.Equal(t, float32(0), frequencyPenalty(0))
}
