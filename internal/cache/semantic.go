package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/pkg/logger"
	"github.com/ksu-assistant/backend/pkg/utils"
)

const DefaultSimilarityThreshold = 0.7

// Conversational filler is listed next to function words so that polite
// rephrasings reduce to the same keywords.
var semanticStopWords = utils.NewStopWords(
	"як", "що", "де", "коли", "чому", "чи", "або", "та", "і", "в", "на", "з", "до", "для", "про",
	"можна", "може", "можуть", "бути", "є", "було", "буде", "були", "будуть",
	"будь", "ласка", "назви", "скажи", "скажіть", "розкажи", "розкажіть", "підкажи", "підкажіть",
	"дякую", "привіт", "добрий", "день", "мені", "будьласка",
)

// importantTerms are the domain words that add to the similarity score when
// both keyword sets contain them. Only the exact form counts: inflected forms
// such as "вступу" or "документи" get no boost.
var importantTerms = map[string]struct{}{
	"хду": {}, "університет": {}, "вступ": {}, "вартість": {}, "факультет": {},
	"спеціальність": {}, "документ": {}, "нмт": {}, "кампанія": {},
}

// ExtractKeywords returns the distinct words of text with at least four runes
// that are not stop words, in first-seen order.
func ExtractKeywords(text string) []string {
	return utils.Keywords(text, semanticStopWords, 4, true)
}

// Similarity is the Jaccard index of two keyword sets plus 0.1 for every
// shared domain term, at most 0.2, capped at 1.0. It is symmetric.
func Similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}

	intersection, important := 0, 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
			if _, ok := importantTerms[w]; ok {
				important++
			}
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}

	boost := float64(important) * 0.1
	if boost > 0.2 {
		boost = 0.2
	}
	score := float64(intersection)/float64(union) + boost
	if score > 1.0 {
		score = 1.0
	}
	return score
}

type semanticEntry struct {
	key         string
	response    string
	created     time.Time
	contextHash string
	keywords    []string
}

// Match is a semantic cache hit.
type Match struct {
	Response   string
	Similarity float64
}

// SemanticCache answers paraphrased questions asked in the same context.
type SemanticCache struct {
	mu        sync.Mutex
	entries   map[string]*semanticEntry
	index     map[string]map[string]struct{}
	maxSize   int
	ttl       time.Duration
	threshold float64
	now       func() time.Time
	hits      int64
	misses    int64
}

func NewSemanticCache(maxSize int, ttl time.Duration, threshold float64, opts ...Option) *SemanticCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	o := buildOptions(opts)
	return &SemanticCache{
		entries:   make(map[string]*semanticEntry),
		index:     make(map[string]map[string]struct{}),
		maxSize:   maxSize,
		ttl:       ttl,
		threshold: threshold,
		now:       o.now,
	}
}

func (c *SemanticCache) Get(query string, ctx Context) (Match, bool) {
	if query == "" {
		return Match{}, false
	}
	hash, err := contextHash(ctx)
	if err != nil {
		logger.Debug("Semantic cache lookup skipped", zap.Error(err))
		return Match{}, false
	}
	key := keyFor(query, hash)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpired(c.now())
	if entry, ok := c.entries[key]; ok {
		c.hits++
		return Match{Response: entry.response, Similarity: 1.0}, true
	}

	keywords := ExtractKeywords(query)
	var best *semanticEntry
	bestScore := 0.0
	for _, candidate := range c.candidates(keywords) {
		if candidate.contextHash != hash {
			continue
		}
		score := Similarity(keywords, candidate.keywords)
		if score < c.threshold {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && older(candidate, best)) {
			best, bestScore = candidate, score
		}
	}

	if best == nil {
		c.misses++
		return Match{}, false
	}
	c.hits++
	return Match{Response: best.response, Similarity: bestScore}, true
}

// candidates returns the entries sharing at least one keyword with the query.
// Entries without a shared keyword cannot reach a positive similarity.
func (c *SemanticCache) candidates(keywords []string) []*semanticEntry {
	seen := make(map[string]bool)
	var out []*semanticEntry
	for _, kw := range keywords {
		for key := range c.index[kw] {
			if seen[key] {
				continue
			}
			seen[key] = true
			if entry, ok := c.entries[key]; ok {
				out = append(out, entry)
			}
		}
	}
	return out
}

// older breaks similarity ties: the entry stored first wins.
func older(a, b *semanticEntry) bool {
	if !a.created.Equal(b.created) {
		return a.created.Before(b.created)
	}
	return a.key < b.key
}

// purgeExpired drops every expired entry, not only those sharing a keyword
// with the current query, so Len and Stats never count stale entries.
func (c *SemanticCache) purgeExpired(now time.Time) {
	for _, entry := range c.entries {
		if c.expired(entry, now) {
			c.remove(entry)
		}
	}
}

func (c *SemanticCache) expired(entry *semanticEntry, now time.Time) bool {
	return now.Sub(entry.created) >= c.ttl
}

func (c *SemanticCache) Set(query string, ctx Context, response string) {
	if query == "" || response == "" {
		return
	}
	hash, err := contextHash(ctx)
	if err != nil {
		logger.Debug("Semantic cache store skipped", zap.Error(err))
		return
	}
	key := keyFor(query, hash)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.remove(existing)
	} else if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	entry := &semanticEntry{
		key:         key,
		response:    response,
		created:     c.now(),
		contextHash: hash,
		keywords:    ExtractKeywords(query),
	}
	c.entries[key] = entry
	for _, kw := range entry.keywords {
		keys, ok := c.index[kw]
		if !ok {
			keys = make(map[string]struct{})
			c.index[kw] = keys
		}
		keys[key] = struct{}{}
	}
}

func (c *SemanticCache) evictOldest() {
	var oldest *semanticEntry
	for _, entry := range c.entries {
		if oldest == nil || entry.created.Before(oldest.created) ||
			(entry.created.Equal(oldest.created) && entry.key < oldest.key) {
			oldest = entry
		}
	}
	if oldest != nil {
		c.remove(oldest)
	}
}

// remove deletes the entry and its keywords from the index.
func (c *SemanticCache) remove(entry *semanticEntry) {
	delete(c.entries, entry.key)
	for _, kw := range entry.keywords {
		keys := c.index[kw]
		delete(keys, entry.key)
		if len(keys) == 0 {
			delete(c.index, kw)
		}
	}
}

func (c *SemanticCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SemanticCache) Threshold() float64 {
	return c.threshold
}

func (c *SemanticCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*semanticEntry)
	c.index = make(map[string]map[string]struct{})
}

func (c *SemanticCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:                len(c.entries),
		MaxSize:             c.maxSize,
		UsagePercent:        usagePercent(len(c.entries), c.maxSize),
		Hits:                c.hits,
		Misses:              c.misses,
		IndexedKeywords:     len(c.index),
		SimilarityThreshold: c.threshold,
	}
}
