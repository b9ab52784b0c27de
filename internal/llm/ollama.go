package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Protocol names the wire format spoken by the generation server.
type Protocol string

const (
	ProtocolAuto     Protocol = "auto"
	ProtocolChat     Protocol = "chat"
	ProtocolGenerate Protocol = "generate"
	ProtocolOpenAI   Protocol = "openai"
)

const maxErrorBody = 4096

// OllamaBackend speaks the native /api/chat and /api/generate endpoints.
type OllamaBackend struct {
	baseURL    string
	model      string
	protocol   Protocol
	httpClient *http.Client
}

func NewOllamaBackend(baseURL, model string, protocol Protocol, httpClient *http.Client) *OllamaBackend {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if protocol != ProtocolGenerate {
		protocol = ProtocolChat
	}
	return &OllamaBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		protocol:   protocol,
		httpClient: httpClient,
	}
}

func (b *OllamaBackend) Name() string {
	return string(b.protocol)
}

type chatPayload struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Params    `json:"options"`
}

type generatePayload struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options Params `json:"options"`
}

func (b *OllamaBackend) payload(req Request, params Params, stream bool) (string, interface{}) {
	if b.protocol == ProtocolGenerate {
		return "/api/generate", generatePayload{Model: b.model, Prompt: req.Prompt, Stream: stream, Options: params}
	}
	return "/api/chat", chatPayload{Model: b.model, Messages: req.Messages, Stream: stream, Options: params}
}

func (b *OllamaBackend) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &BackendError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}

func (b *OllamaBackend) Complete(ctx context.Context, req Request, params Params) (string, error) {
	path, payload := b.payload(req, params, false)
	resp, err := b.post(ctx, path, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &BackendError{Err: err}
	}
	if !gjson.ValidBytes(data) {
		return "", &BackendError{StatusCode: resp.StatusCode, Body: "invalid JSON response"}
	}

	answer := strings.TrimSpace(chunkText(data))
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

func (b *OllamaBackend) Stream(ctx context.Context, req Request, params Params, onChunk func(string) bool) error {
	path, payload := b.payload(req, params, true)
	resp, err := b.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, err = decodeStream(resp.Body, onChunk)
	return err
}

// Ping checks the model listing, then the version endpoint.
func (b *OllamaBackend) Ping(ctx context.Context) error {
	if err := probe(ctx, b.httpClient, b.baseURL+"/api/tags"); err == nil {
		return nil
	}
	return probe(ctx, b.httpClient, b.baseURL+"/api/version")
}

func probe(ctx context.Context, httpClient *http.Client, url string) error {
	_, err := fetch(ctx, httpClient, url)
	return err
}

func fetch(ctx context.Context, httpClient *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &BackendError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &BackendError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{StatusCode: resp.StatusCode}
	}
	return data, nil
}
