package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/cache"
	cacheredis "github.com/ksu-assistant/backend/internal/cache/redis"
	"github.com/ksu-assistant/backend/internal/classifier"
	"github.com/ksu-assistant/backend/internal/contextopt"
	"github.com/ksu-assistant/backend/internal/knowledge"
	"github.com/ksu-assistant/backend/internal/llm"
	"github.com/ksu-assistant/backend/internal/metrics"
	"github.com/ksu-assistant/backend/internal/prompt"
	"github.com/ksu-assistant/backend/internal/selection"
	"github.com/ksu-assistant/backend/internal/storage/models"
	"github.com/ksu-assistant/backend/internal/validation"
	"github.com/ksu-assistant/backend/pkg/logger"
)

const (
	emptyQueryAnswer = "Вибач, не зрозумів питання. Спробуй переформулювати."
	fallbackAnswer   = "Вибач, не вдалося отримати відповідь. Спробуй переформулювати питання або звернися до приймальної комісії ХДУ:"
)

// Generator produces answers from the generation backend.
type Generator interface {
	Generate(ctx context.Context, req llm.Request, params llm.Params) (string, error)
	Stream(ctx context.Context, req llm.Request, params llm.Params, onChunk func(string) bool) error
	GenerateCandidates(ctx context.Context, req llm.Request, base llm.Params, k int) ([]string, error)
}

// SharedCache is a response cache shared between instances.
type SharedCache interface {
	GetResponse(ctx context.Context, key string) (*cacheredis.StoredResponse, bool, error)
	SetResponse(ctx context.Context, key string, response cacheredis.StoredResponse, ttl time.Duration) error
	InvalidateResponses(ctx context.Context) (int, error)
}

// HistoryStore keeps the conversation of each user.
type HistoryStore interface {
	SaveMessage(ctx context.Context, userID, userMessage, botResponse string) (int64, error)
	GetRecentMessages(ctx context.Context, userID string, limit int) ([]models.Message, error)
}

type Config struct {
	Parallel            bool
	Candidates          int
	MaxRegenerations    int
	MinCriticalLength   int
	CriticalKinds       []validation.Kind
	CacheSize           int
	CacheTTL            time.Duration
	SimilarityThreshold float64
	ContextBudget       int
	SoftOverflow        float64
	FallbackPhones      []string
}

func DefaultConfig() Config {
	return Config{
		Candidates:          3,
		MaxRegenerations:    2,
		MinCriticalLength:   20,
		CriticalKinds:       validation.DefaultCriticalKinds,
		CacheSize:           cache.DefaultMaxSize,
		CacheTTL:            cache.DefaultTTL,
		SimilarityThreshold: 0.7,
		ContextBudget:       contextopt.DefaultBudget,
		SoftOverflow:        contextopt.DefaultSoftOverflow,
		FallbackPhones:      []string{"+380 552 494375"},
	}
}

type Option func(*Engine)

func WithSharedCache(shared SharedCache) Option {
	return func(e *Engine) { e.shared = shared }
}

func WithHistory(history HistoryStore) Option {
	return func(e *Engine) { e.history = history }
}

func WithCollector(collector *metrics.Collector) Option {
	return func(e *Engine) { e.collector = collector }
}

func WithCacheOptions(opts ...cache.Option) Option {
	return func(e *Engine) { e.cacheOpts = opts }
}

// Engine answers questions: it classifies, trims the knowledge context,
// consults the caches and only then asks the generation backend, validating
// and if needed regenerating what comes back.
type Engine struct {
	cfg        Config
	classifier *classifier.Classifier
	optimizer  *contextopt.Optimizer
	builder    *prompt.Builder
	validator  *validation.MultiLevelValidator
	provider   knowledge.Provider
	generator  Generator

	exact     *cache.ExactCache
	semantic  *cache.SemanticCache
	shared    SharedCache
	cacheOpts []cache.Option

	history   HistoryStore
	collector *metrics.Collector
}

type QueryRequest struct {
	Query   string
	UserID  string
	History []prompt.Turn
}

type QueryResponse struct {
	ID               string            `json:"id"`
	Query            string            `json:"query"`
	Response         string            `json:"response"`
	Intent           classifier.Intent `json:"intent"`
	FromCache        bool              `json:"from_cache"`
	CacheTier        string            `json:"cache_tier,omitempty"`
	Similarity       float64           `json:"similarity,omitempty"`
	Valid            bool              `json:"valid"`
	ValidationErrors []string          `json:"validation_errors,omitempty"`
	Regenerations    int               `json:"regenerations"`
	Fallback         bool              `json:"fallback"`
	LatencyMS        int               `json:"latency_ms"`
}

func NewEngine(provider knowledge.Provider, generator Generator, cfg Config, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.Candidates <= 0 {
		cfg.Candidates = defaults.Candidates
	}
	if cfg.MaxRegenerations < 0 {
		cfg.MaxRegenerations = 0
	}
	if cfg.MinCriticalLength <= 0 {
		cfg.MinCriticalLength = defaults.MinCriticalLength
	}
	if cfg.CriticalKinds == nil {
		cfg.CriticalKinds = defaults.CriticalKinds
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaults.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = defaults.SimilarityThreshold
	}

	c := classifier.New()
	e := &Engine{
		cfg:        cfg,
		classifier: c,
		optimizer:  contextopt.New(cfg.ContextBudget, cfg.SoftOverflow),
		builder:    prompt.NewBuilder(c),
		validator:  validation.NewMultiLevelValidator(),
		provider:   provider,
		generator:  generator,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.collector == nil {
		e.collector = metrics.NewCollector(metrics.DefaultWindowSize, metrics.DefaultQueueSize, nil)
	}
	e.exact = cache.NewExactCache(cfg.CacheSize, cfg.CacheTTL, e.cacheOpts...)
	e.semantic = cache.NewSemanticCache(cfg.CacheSize, cfg.CacheTTL, cfg.SimilarityThreshold, e.cacheOpts...)

	return e
}

// prepared is the per-request state shared by the blocking and streaming paths.
type prepared struct {
	id         string
	start      time.Time
	query      string
	userID     string
	intent     classifier.Intent
	background string
	doc        *knowledge.Document
	context    *contextopt.Context
	history    []prompt.Turn
}

func (e *Engine) prepare(ctx context.Context, req QueryRequest) *prepared {
	p := &prepared{
		id:     uuid.New().String(),
		start:  time.Now(),
		query:  strings.TrimSpace(req.Query),
		userID: req.UserID,
	}
	if p.query == "" {
		return p
	}

	p.intent = e.classifier.Classify(p.query)

	if e.provider != nil {
		pc, err := e.provider.ContextForPrompt(ctx, p.query)
		if err != nil {
			logger.Warn("Knowledge context unavailable", zap.String("query_id", p.id), zap.Error(err))
		} else {
			p.background = pc.Text
			p.doc = pc.Document
		}
	}

	p.context = e.optimizer.Optimize(p.query, p.doc)
	metrics.ContextSize.Observe(float64(p.context.Size()))

	logger.Debug("Query prepared",
		zap.String("query_id", p.id),
		zap.String("intent", p.intent.String()),
		zap.Strings("sections", p.context.Names()),
		zap.Int("context_size", p.context.Size()),
	)
	return p
}

// Answer runs the whole pipeline for one question. It always produces an
// answer; an error is returned only when ctx ends first.
func (e *Engine) Answer(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	p := e.prepare(ctx, req)

	logger.Info("Processing query",
		zap.String("query_id", p.id),
		zap.String("query", p.query),
	)

	if p.query == "" {
		return e.respond(p, emptyQueryAnswer), nil
	}

	if hit := e.lookup(ctx, p); hit != nil {
		return e.finishFromCache(ctx, p, hit), nil
	}

	p.history = e.loadHistory(ctx, req)
	pr := e.builder.Build(p.intent, p.context, p.query, p.background, p.history)
	params := llm.ProfileFor(p.intent).Adapt(p.query)

	answer, err := e.generate(ctx, pr, params, p)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.finishFallback(ctx, p, err), nil
	}

	result := e.validator.Validate(answer, p.query)
	observeValidation(result)
	critical := result.IsCritical(e.cfg.CriticalKinds, e.cfg.MinCriticalLength)

	regenerations := 0
	for critical && regenerations < e.cfg.MaxRegenerations {
		regenerations++
		e.collector.RecordRegeneration()

		logger.Info("Regenerating after critical validation failure",
			zap.String("query_id", p.id),
			zap.Int("attempt", regenerations),
			zap.Strings("errors", result.Messages()),
		)

		retry, err := e.generator.Generate(ctx, pr.WithErrorsToAvoid(result.Messages()).Request(), params.Strict())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			generationFailed("regenerate", err)
			logger.Warn("Regeneration failed, keeping previous answer",
				zap.String("query_id", p.id),
				zap.Error(err),
			)
			break
		}
		metrics.GenerationRequests.WithLabelValues("regenerate", "ok").Inc()

		answer = retry
		result = e.validator.Validate(answer, p.query)
		observeValidation(result)
		critical = result.IsCritical(e.cfg.CriticalKinds, e.cfg.MinCriticalLength)
	}

	// A critical failure is cached only once regeneration has fixed it.
	cacheable := result.Valid || (regenerations == 0 && !critical)
	if cacheable {
		e.populate(ctx, p, answer)
	} else {
		logger.Warn("Answer not cached after failed validation",
			zap.String("query_id", p.id),
			zap.Strings("errors", result.Messages()),
		)
	}

	resp := e.respond(p, answer)
	resp.Valid = result.Valid
	resp.ValidationErrors = result.Messages()
	resp.Regenerations = regenerations

	e.saveHistory(ctx, p, answer)
	e.record(p, resp)

	logger.Info("Query processed successfully",
		zap.String("query_id", p.id),
		zap.Bool("valid", resp.Valid),
		zap.Int("regenerations", regenerations),
		zap.Int("latency_ms", resp.LatencyMS),
	)
	return resp, nil
}

func (e *Engine) generate(ctx context.Context, pr prompt.Prompt, params llm.Params, p *prepared) (string, error) {
	req := pr.Request()
	if !e.cfg.Parallel || e.cfg.Candidates <= 1 {
		answer, err := e.generator.Generate(ctx, req, params)
		if err != nil {
			generationFailed("single", err)
			return "", err
		}
		metrics.GenerationRequests.WithLabelValues("single", "ok").Inc()
		return answer, nil
	}

	candidates, err := e.generator.GenerateCandidates(ctx, req, params, e.cfg.Candidates)
	if err != nil {
		generationFailed("parallel", err)
		return "", err
	}
	metrics.GenerationRequests.WithLabelValues("parallel", "ok").Inc()
	return selection.Select(candidates, p.query, p.intent), nil
}

func (e *Engine) respond(p *prepared, answer string) *QueryResponse {
	return &QueryResponse{
		ID:        p.id,
		Query:     p.query,
		Response:  answer,
		Intent:    p.intent,
		Valid:     true,
		LatencyMS: int(time.Since(p.start).Milliseconds()),
	}
}

func (e *Engine) finishFromCache(ctx context.Context, p *prepared, hit *cacheHit) *QueryResponse {
	resp := e.respond(p, hit.response)
	resp.FromCache = true
	resp.CacheTier = hit.tier
	resp.Similarity = hit.similarity

	e.saveHistory(ctx, p, hit.response)
	e.record(p, resp)

	logger.Info("Query answered from cache",
		zap.String("query_id", p.id),
		zap.String("tier", hit.tier),
		zap.Float64("similarity", hit.similarity),
	)
	return resp
}

func (e *Engine) finishFallback(ctx context.Context, p *prepared, cause error) *QueryResponse {
	logger.Error("Generation failed, returning fallback answer",
		zap.String("query_id", p.id),
		zap.Error(cause),
	)

	resp := e.respond(p, e.fallback(p.doc))
	resp.Valid = false
	resp.Fallback = true
	e.record(p, resp)
	return resp
}

// fallback points the user at the admissions office, using the phones of the
// knowledge document when it has any.
func (e *Engine) fallback(doc *knowledge.Document) string {
	phones := doc.ContactPhones()
	if len(phones) == 0 {
		phones = e.cfg.FallbackPhones
	}
	lines := make([]string, 0, len(phones))
	for _, phone := range phones {
		lines = append(lines, "📞 "+phone)
	}
	return fmt.Sprintf("%s\n\n%s", fallbackAnswer, strings.Join(lines, "\n"))
}

func (e *Engine) loadHistory(ctx context.Context, req QueryRequest) []prompt.Turn {
	if len(req.History) > 0 {
		return req.History
	}
	if req.UserID == "" || e.history == nil {
		return nil
	}

	messages, err := e.history.GetRecentMessages(ctx, req.UserID, prompt.MaxHistory)
	if err != nil {
		logger.Warn("Failed to load dialogue history", zap.String("user_id", req.UserID), zap.Error(err))
		return nil
	}
	turns := make([]prompt.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, prompt.Turn{Question: m.UserMessage, Answer: m.BotResponse})
	}
	return turns
}

func (e *Engine) saveHistory(ctx context.Context, p *prepared, answer string) {
	if p.userID == "" || e.history == nil {
		return
	}
	if _, err := e.history.SaveMessage(ctx, p.userID, p.query, answer); err != nil {
		logger.Warn("Failed to save dialogue history", zap.String("user_id", p.userID), zap.Error(err))
	}
}

func (e *Engine) record(p *prepared, resp *QueryResponse) {
	e.collector.RecordRequest(models.RequestMetric{
		QueryID:      p.id,
		Query:        p.query,
		Response:     resp.Response,
		ResponseTime: time.Since(p.start),
		FromCache:    resp.FromCache,
		Intent:       p.intent.String(),
		Valid:        resp.Valid,
		Regenerated:  resp.Regenerations,
	})
}

// Statistics returns the in-memory request aggregates.
func (e *Engine) Statistics() metrics.Statistics {
	return e.collector.Statistics()
}

func observeValidation(result validation.Result) {
	for _, err := range result.Errors {
		metrics.ValidationFailures.WithLabelValues(string(err.Level), string(err.Kind)).Inc()
	}
}

func generationFailed(mode string, err error) {
	status := "error"
	if errors.Is(err, context.Canceled) {
		status = "canceled"
	}
	metrics.GenerationRequests.WithLabelValues(mode, status).Inc()
}
