package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ksu-assistant/backend/pkg/circuitbreaker"
	"github.com/ksu-assistant/backend/pkg/logger"
	"github.com/ksu-assistant/backend/pkg/retry"
	"github.com/ksu-assistant/backend/pkg/utils"
)

// MinCandidateLength is the shortest parallel candidate worth scoring.
const MinCandidateLength = 20

type Config struct {
	Timeout       time.Duration
	StreamTimeout time.Duration
	HealthTimeout time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:       60 * time.Second,
		StreamTimeout: 120 * time.Second,
		HealthTimeout: 5 * time.Second,
		MaxAttempts:   3,
		RetryBackoff:  time.Second,
	}
}

// Client wraps a backend with per-call timeouts, fixed-backoff retries and a
// circuit breaker.
type Client struct {
	backend     Backend
	cfg         Config
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(backend Backend, cfg Config) *Client {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = defaults.StreamTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = defaults.HealthTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		IgnoreErrors:     []error{ErrEmptyResponse},
		Logger:           logger.GetLogger(),
	})

	logger.Info("LLM client initialized",
		zap.String("backend", backend.Name()),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_attempts", cfg.MaxAttempts),
	)

	rc := retry.Constant(cfg.MaxAttempts, cfg.RetryBackoff, logger.GetLogger())
	rc.RetryIf = retryable

	return &Client{
		backend:     backend,
		cfg:         cfg,
		cb:          cb,
		retryConfig: rc,
	}
}

// retryable reports whether another attempt can succeed. Transport failures,
// timeouts, empty answers, 5xx, 408 and 429 are retried; other 4xx responses
// mean the request itself is wrong and are returned at once.
func retryable(err error) bool {
	var backendErr *BackendError
	if !errors.As(err, &backendErr) || backendErr.StatusCode == 0 {
		return true
	}
	switch code := backendErr.StatusCode; {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 400 && code < 500:
		return false
	default:
		return true
	}
}

func (c *Client) Protocol() string {
	return c.backend.Name()
}

// Generate returns one complete answer. Backend failures are retried with a
// fixed backoff; the last error is returned once attempts run out.
func (c *Client) Generate(ctx context.Context, req Request, params Params) (string, error) {
	return c.generate(ctx, req, params, c.retryConfig)
}

func (c *Client) generate(ctx context.Context, req Request, params Params, rc retry.Config) (string, error) {
	var answer string
	start := time.Now()

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, rc, func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()

			text, err := c.backend.Complete(callCtx, req, params)
			if err != nil {
				if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
					return &BackendError{Err: fmt.Errorf("request timed out after %s: %w", c.cfg.Timeout, err)}
				}
				return err
			}
			answer = text
			return nil
		})
	})
	if err != nil {
		return "", c.wrap(err)
	}

	logger.Debug("LLM completion generated",
		zap.String("backend", c.backend.Name()),
		zap.Int("response_length", utils.RuneLen(answer)),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}

// Stream delivers the answer incrementally. It is not retried: chunks may
// already have reached the consumer.
func (c *Client) Stream(ctx context.Context, req Request, params Params, onChunk func(string) bool) error {
	streamCtx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
	defer cancel()

	err := c.cb.Execute(ctx, func() error {
		return c.backend.Stream(streamCtx, req, params, onChunk)
	})
	if err != nil {
		return c.wrap(err)
	}
	return nil
}

// GenerateCandidates issues one request per parameter variation at once and
// waits for all of them. Failed or too-short candidates are dropped; if none
// survive, one more request is made with the base parameters.
func (c *Client) GenerateCandidates(ctx context.Context, req Request, base Params, k int) ([]string, error) {
	if k <= 1 {
		answer, err := c.Generate(ctx, req, base)
		if err != nil {
			return nil, err
		}
		return []string{answer}, nil
	}

	variations := base.Variations(k)
	results := make([]string, len(variations))
	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	for i, params := range variations {
		i, params := i, params
		g.Go(func() error {
			text, err := c.Generate(ctx, req, params)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = text
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]string, 0, len(results))
	for _, text := range results {
		if utils.RuneLen(strings.TrimSpace(text)) >= MinCandidateLength {
			candidates = append(candidates, text)
		}
	}

	logger.Debug("Parallel candidates generated",
		zap.Int("requested", k),
		zap.Int("usable", len(candidates)),
		zap.Int("failed", len(errs)),
	)

	if len(candidates) > 0 {
		return candidates, nil
	}

	logger.Warn("No usable parallel candidates, falling back to single request",
		zap.Error(errors.Join(errs...)),
	)
	answer, err := c.Generate(ctx, req, base)
	if err != nil {
		return nil, err
	}
	return []string{answer}, nil
}

// Ping reports whether the backend answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()
	return c.backend.Ping(ctx)
}

func (c *Client) wrap(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return &BackendError{Err: err}
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrEmptyResponse):
		return err
	default:
		return &BackendError{Err: err}
	}
}
