package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/cache"
	cacheredis "github.com/ksu-assistant/backend/internal/cache/redis"
	"github.com/ksu-assistant/backend/internal/metrics"
	"github.com/ksu-assistant/backend/pkg/logger"
)

const (
	tierExact    = "exact"
	tierShared   = "redis"
	tierSemantic = "semantic"

	sharedTimeout = 2 * time.Second
)

type cacheHit struct {
	tier       string
	response   string
	similarity float64
}

// lookup probes the exact cache, the shared tier and the semantic cache in
// that order. A shared hit also warms the exact cache.
func (e *Engine) lookup(ctx context.Context, p *prepared) *cacheHit {
	if response, ok := e.exact.Get(p.query, p.context); ok {
		metrics.CacheHits.WithLabelValues(tierExact).Inc()
		return &cacheHit{tier: tierExact, response: response, similarity: 1.0}
	}
	metrics.CacheMisses.WithLabelValues(tierExact).Inc()

	if response, ok := e.lookupShared(ctx, p); ok {
		metrics.CacheHits.WithLabelValues(tierShared).Inc()
		e.exact.Set(p.query, p.context, response)
		return &cacheHit{tier: tierShared, response: response, similarity: 1.0}
	}

	if match, ok := e.semantic.Get(p.query, p.context); ok {
		metrics.CacheHits.WithLabelValues(tierSemantic).Inc()
		metrics.SemanticSimilarity.Observe(match.Similarity)
		return &cacheHit{tier: tierSemantic, response: match.Response, similarity: match.Similarity}
	}
	metrics.CacheMisses.WithLabelValues(tierSemantic).Inc()
	return nil
}

func (e *Engine) lookupShared(ctx context.Context, p *prepared) (string, bool) {
	if e.shared == nil {
		return "", false
	}
	key, err := cache.Key(p.query, p.context)
	if err != nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, sharedTimeout)
	defer cancel()

	stored, ok, err := e.shared.GetResponse(ctx, key)
	if err != nil {
		logger.Warn("Shared cache lookup failed", zap.String("query_id", p.id), zap.Error(err))
		return "", false
	}
	if !ok || stored.Response == "" {
		metrics.CacheMisses.WithLabelValues(tierShared).Inc()
		return "", false
	}
	return stored.Response, true
}

// populate stores an answer in every cache tier. Failures only cost a future hit.
func (e *Engine) populate(ctx context.Context, p *prepared, answer string) {
	e.exact.Set(p.query, p.context, answer)
	e.semantic.Set(p.query, p.context, answer)

	if e.shared == nil {
		return
	}
	key, err := cache.Key(p.query, p.context)
	if err != nil {
		logger.Debug("Shared cache skipped", zap.String("query_id", p.id), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sharedTimeout)
	defer cancel()

	err = e.shared.SetResponse(ctx, key, cacheredis.StoredResponse{
		Response:  answer,
		Intent:    p.intent.String(),
		CreatedAt: time.Now(),
	}, e.cfg.CacheTTL)
	if err != nil {
		logger.Warn("Failed to store answer in shared cache", zap.String("query_id", p.id), zap.Error(err))
	}
}

// CacheStats reports the in-process caches by tier.
func (e *Engine) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		tierExact:    e.exact.Stats(),
		tierSemantic: e.semantic.Stats(),
	}
}

// ClearCaches empties every tier and returns how many shared entries were removed.
func (e *Engine) ClearCaches(ctx context.Context) (int, error) {
	e.exact.Clear()
	e.semantic.Clear()
	logger.Info("Response caches cleared")

	if e.shared == nil {
		return 0, nil
	}
	deleted, err := e.shared.InvalidateResponses(ctx)
	if err != nil {
		return deleted, fmt.Errorf("failed to clear shared cache: %w", err)
	}
	return deleted, nil
}
