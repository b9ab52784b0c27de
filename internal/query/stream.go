package query

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/llm"
	"github.com/ksu-assistant/backend/internal/metrics"
	"github.com/ksu-assistant/backend/pkg/logger"
)

// AnswerStream is Answer with incremental delivery. Cached and fallback
// answers arrive as a single chunk. onChunk returning false stops the
// stream; what was generated so far is returned but not cached. Streamed
// answers are validated once complete and never regenerated.
func (e *Engine) AnswerStream(ctx context.Context, req QueryRequest, onChunk func(string) bool) (*QueryResponse, error) {
	p := e.prepare(ctx, req)

	logger.Info("Processing streaming query",
		zap.String("query_id", p.id),
		zap.String("query", p.query),
	)

	if p.query == "" {
		onChunk(emptyQueryAnswer)
		return e.respond(p, emptyQueryAnswer), nil
	}

	if hit := e.lookup(ctx, p); hit != nil {
		onChunk(hit.response)
		return e.finishFromCache(ctx, p, hit), nil
	}

	p.history = e.loadHistory(ctx, req)
	pr := e.builder.Build(p.intent, p.context, p.query, p.background, p.history)
	params := llm.ProfileFor(p.intent).Adapt(p.query)

	var (
		answer  strings.Builder
		chunks  int
		stopped bool
	)
	err := e.generator.Stream(ctx, pr.Request(), params, func(chunk string) bool {
		answer.WriteString(chunk)
		chunks++
		if !onChunk(chunk) {
			stopped = true
			return false
		}
		return true
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		generationFailed("stream", err)
		if chunks == 0 {
			resp := e.finishFallback(ctx, p, err)
			onChunk(resp.Response)
			return resp, nil
		}
		logger.Warn("Stream interrupted, returning partial answer",
			zap.String("query_id", p.id),
			zap.Int("chunks", chunks),
			zap.Error(err),
		)
		stopped = true
	} else {
		metrics.GenerationRequests.WithLabelValues("stream", "ok").Inc()
	}

	text := strings.TrimSpace(answer.String())
	result := e.validator.Validate(text, p.query)
	observeValidation(result)
	critical := result.IsCritical(e.cfg.CriticalKinds, e.cfg.MinCriticalLength)

	switch {
	case stopped:
		logger.Info("Stream stopped early, answer not cached", zap.String("query_id", p.id), zap.Int("chunks", chunks))
	case result.Valid || !critical:
		e.populate(ctx, p, text)
	default:
		logger.Warn("Streamed answer not cached after failed validation",
			zap.String("query_id", p.id),
			zap.Strings("errors", result.Messages()),
		)
	}

	resp := e.respond(p, text)
	resp.Valid = result.Valid
	resp.ValidationErrors = result.Messages()

	if !stopped {
		e.saveHistory(ctx, p, text)
	}
	e.record(p, resp)
	return resp, nil
}
