package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ksu-assistant/backend/pkg/utils"
)

// ErrNoContext is returned when a key is requested without a context.
var ErrNoContext = errors.New("cache context is nil")

// Context is the part of an optimized prompt context the caches key on.
type Context interface {
	Fingerprint() (string, error)
}

// Normalize lower-cases the query, drops punctuation other than '?', and
// returns its distinct words sorted and joined by single spaces.
func Normalize(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))
	stripped := strings.Map(func(r rune) rune {
		if r == '?' || unicode.IsSpace(r) || unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.Is(unicode.Mn, r) {
			return r
		}
		return -1
	}, lower)

	words := strings.Fields(stripped)
	if len(words) == 0 {
		return ""
	}
	sort.Strings(words)

	unique := words[:1]
	for _, w := range words[1:] {
		if w != unique[len(unique)-1] {
			unique = append(unique, w)
		}
	}
	return strings.Join(unique, " ")
}

// Key derives the cache key of a query in a context.
func Key(query string, ctx Context) (string, error) {
	hash, err := contextHash(ctx)
	if err != nil {
		return "", err
	}
	return keyFor(query, hash), nil
}

func keyFor(query, contextHash string) string {
	return utils.HashString(Normalize(query) + ":" + contextHash)
}

func contextHash(ctx Context) (string, error) {
	if ctx == nil {
		return "", ErrNoContext
	}
	hash, err := ctx.Fingerprint()
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint context: %w", err)
	}
	return hash, nil
}

// Stats describes the occupancy of one cache.
type Stats struct {
	Size                int     `json:"size"`
	MaxSize             int     `json:"max_size"`
	UsagePercent        float64 `json:"usage_percent"`
	Hits                int64   `json:"hits"`
	Misses              int64   `json:"misses"`
	IndexedKeywords     int     `json:"indexed_keywords,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

func usagePercent(size, maxSize int) float64 {
	if maxSize <= 0 {
		return 0
	}
	return float64(size) / float64(maxSize) * 100
}

const (
	DefaultMaxSize = 200
	DefaultTTL     = 24 * time.Hour
)

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
