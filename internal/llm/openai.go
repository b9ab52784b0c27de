package llm

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend talks to any OpenAI-compatible chat completions server.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

func NewOpenAIBackend(baseURL, apiKey, model string) *OpenAIBackend {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		base := strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		config.BaseURL = base
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (b *OpenAIBackend) Name() string {
	return string(ProtocolOpenAI)
}

func (b *OpenAIBackend) request(req Request, params Params, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	// A zero temperature is dropped by the client's omitempty tags.
	temperature := float32(params.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return openai.ChatCompletionRequest{
		Model:            b.model,
		Messages:         messages,
		Temperature:      temperature,
		TopP:             float32(params.TopP),
		MaxTokens:        params.NumPredict,
		FrequencyPenalty: frequencyPenalty(params.RepeatPenalty),
		Stream:           stream,
	}
}

// frequencyPenalty maps a multiplicative repeat penalty onto the additive
// OpenAI range [-2, 2].
func frequencyPenalty(repeat float64) float32 {
	if repeat <= 0 {
		return 0
	}
	return float32(math.Max(-2, math.Min(2, repeat-1)))
}

func (b *OpenAIBackend) Complete(ctx context.Context, req Request, params Params) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, b.request(req, params, false))
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

func (b *OpenAIBackend) Stream(ctx context.Context, req Request, params Params, onChunk func(string) bool) error {
	stream, err := b.client.CreateChatCompletionStream(ctx, b.request(req, params, true))
	if err != nil {
		return wrapOpenAIError(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return wrapOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" && !onChunk(text) {
			return nil
		}
	}
}

func (b *OpenAIBackend) Ping(ctx context.Context) error {
	if _, err := b.client.ListModels(ctx); err != nil {
		return wrapOpenAIError(err)
	}
	return nil
}

func wrapOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &BackendError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &BackendError{Err: err}
}
