package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext string

func (f fakeContext) Fingerprint() (string, error) {
	return string(f), nil
}

type brokenContext struct{}

func (brokenContext) Fingerprint() (string, error) {
	return "", errors.New("unserializable")
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  Які   факультети є?  ", "факультети які є?"},
		{"Скільки коштує, навчання на 121?", "121? коштує на навчання скільки"},
		{"ціна ціна ЦІНА!", "ціна"},
		{"факультети Які", "факультети які"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"Скільки коштує навчання на 121?",
		"  Назви   факультети, будь ласка!!! ",
		"Комп'ютерні науки — вартість?? (2026)",
		"?",
		"a_b c-d",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}

func TestKeyDeterminism(t *testing.T) {
	k1, err := Key("Які факультети є?", fakeContext("abc"))
	require.NoError(t, err)
	k2, err := Key("факультети,   Які є?", fakeContext("abc"))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := Key("Які факультети є?", fakeContext("abd"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	_, err = Key("x", nil)
	assert.ErrorIs(t, err, ErrNoContext)
	_, err = Key("x", brokenContext{})
	assert.Error(t, err)
}

func TestExactCacheGetSet(t *testing.T) {
	c := NewExactCache(10, time.Hour)
	ctx := fakeContext("ctx")

	_, ok := c.Get("Скільки коштує навчання?", ctx)
	assert.False(t, ok)

	c.Set("Скільки коштує навчання?", ctx, "32000 грн на рік")

	got, ok := c.Get("  скільки  коштує навчання?", ctx)
	require.True(t, ok)
	assert.Equal(t, "32000 грн на рік", got)

	_, ok = c.Get("Скільки коштує навчання?", fakeContext("other"))
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 10.0, stats.UsagePercent, 1e-9)
}

func TestExactCacheSkipsUnserializableContext(t *testing.T) {
	c := NewExactCache(10, time.Hour)
	c.Set("питання", brokenContext{}, "відповідь")
	assert.Equal(t, 0, c.Len())

	c.Set("", fakeContext("x"), "відповідь")
	c.Set("питання", fakeContext("x"), "")
	assert.Equal(t, 0, c.Len())
}

func TestExactCacheTTLExpiry(t *testing.T) {
	clk := newClock()
	c := NewExactCache(10, 24*time.Hour, WithClock(clk.now))
	ctx := fakeContext("ctx")

	c.Set("питання", ctx, "відповідь")
	clk.advance(24*time.Hour - time.Second)
	_, ok := c.Get("питання", ctx)
	assert.True(t, ok)

	clk.advance(time.Second)
	_, ok = c.Get("питання", ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestExactCacheEvictsOldest(t *testing.T) {
	clk := newClock()
	const capacity = 5
	c := NewExactCache(capacity, time.Hour, WithClock(clk.now))
	ctx := fakeContext("ctx")

	for i := 0; i < capacity; i++ {
		c.Set(fmt.Sprintf("питання %d", i), ctx, "відповідь")
		clk.advance(time.Second)
	}
	// Refreshing an existing key must not evict anything.
	c.Set("питання 0", ctx, "нова відповідь")
	assert.Equal(t, capacity, c.Len())

	c.Set("питання нове", ctx, "відповідь")
	assert.Equal(t, capacity, c.Len())

	_, ok := c.Get("питання 1", ctx)
	assert.False(t, ok, "oldest entry should be evicted")
	got, ok := c.Get("питання 0", ctx)
	assert.True(t, ok)
	assert.Equal(t, "нова відповідь", got)
}

func TestExactCacheClear(t *testing.T) {
	c := NewExactCache(10, time.Hour)
	c.Set("питання", fakeContext("x"), "відповідь")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestExtractKeywords(t *testing.T) {
	assert.Equal(t, []string{"факультети"}, ExtractKeywords("Які факультети є?"))
	assert.Equal(t, []string{"факультети"}, ExtractKeywords("Назви факультети, будь ласка"))
	assert.Equal(t, []string{"скільки", "коштує", "навчання"}, ExtractKeywords("Скільки коштує навчання на 121?"))
	assert.Equal(t, []string{"вартість"}, ExtractKeywords("вартість вартість"))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, Similarity(nil, []string{"a"}))
	assert.Equal(t, 1.0, Similarity([]string{"факультети"}, []string{"факультети"}))
	assert.InDelta(t, 0.5, Similarity([]string{"гуртожиток", "ціни"}, []string{"гуртожиток"}), 1e-9)
	assert.InDelta(t, 1.0/3.0+0.1, Similarity([]string{"вартість", "навчання"}, []string{"вартість", "гуртожитку"}), 1e-9)
	assert.InDelta(t, 2.0/4.0+0.1, Similarity(
		[]string{"вступ", "документи", "магістратура"},
		[]string{"вступ", "документи", "бакалаврат"},
	), 1e-9)
	assert.InDelta(t, 0.5, Similarity(
		[]string{"документи", "вступу", "магістратуру"},
		[]string{"документи", "вступу", "аспірантуру"},
	), 1e-9, "inflected forms get no domain boost")
	assert.InDelta(t, 3.0/6.0+0.2, Similarity(
		[]string{"хду", "вступ", "нмт", "гуртожиток"},
		[]string{"хду", "вступ", "нмт", "бібліотека", "стипендія"},
	), 1e-9, "boost is capped at 0.2")
}

func TestSimilarityIsSymmetric(t *testing.T) {
	sets := [][]string{
		{},
		{"факультети"},
		{"вартість", "навчання", "факультет"},
		{"вступ", "документи", "нмт", "кампанія"},
		{"гуртожиток", "навчання"},
		{"хду", "університет", "вступ"},
	}
	for _, a := range sets {
		for _, b := range sets {
			assert.Equal(t, Similarity(a, b), Similarity(b, a), "%v vs %v", a, b)
		}
	}
}

func TestSemanticCacheExactFastPath(t *testing.T) {
	c := NewSemanticCache(10, time.Hour, 0.7)
	ctx := fakeContext("ctx")

	c.Set("Скільки коштує навчання на 121?", ctx, "32000 грн")
	m, ok := c.Get("скільки  коштує навчання на 121?", ctx)
	require.True(t, ok)
	assert.Equal(t, 1.0, m.Similarity)
	assert.Equal(t, "32000 грн", m.Response)
}

func TestSemanticCacheParaphraseHit(t *testing.T) {
	c := NewSemanticCache(10, time.Hour, 0.7)
	ctx := fakeContext("ctx")

	c.Set("Які факультети є?", ctx, "У ХДУ є такі факультети: ...")
	m, ok := c.Get("Назви факультети, будь ласка", ctx)
	require.True(t, ok)
	assert.GreaterOrEqual(t, m.Similarity, 0.7)
	assert.Equal(t, "У ХДУ є такі факультети: ...", m.Response)

	_, ok = c.Get("Назви факультети, будь ласка", fakeContext("other"))
	assert.False(t, ok, "different context must not match")

	_, ok = c.Get("Де знаходиться гуртожиток?", ctx)
	assert.False(t, ok)
}

func TestSemanticCachePrefersBestScore(t *testing.T) {
	clk := newClock()
	c := NewSemanticCache(10, time.Hour, 0.3, WithClock(clk.now))
	ctx := fakeContext("ctx")

	c.Set("гуртожиток ціни поселення", ctx, "weak")
	clk.advance(time.Second)
	c.Set("гуртожиток ціни", ctx, "strong")

	m, ok := c.Get("ціни гуртожиток студентам", ctx)
	require.True(t, ok)
	assert.Equal(t, "strong", m.Response)
}

func TestSemanticCacheKeepsStudyLevelsApart(t *testing.T) {
	c := NewSemanticCache(10, time.Hour, 0.7)
	ctx := fakeContext("ctx")

	c.Set("Які документи для вступу в магістратуру?", ctx, "магістратура")
	_, ok := c.Get("Які документи для вступу в аспірантуру?", ctx)
	assert.False(t, ok)
	_, ok = c.Get("Які документи для вступу на бакалаврат?", ctx)
	assert.False(t, ok)
}

func TestSemanticCacheTieGoesToFirstStored(t *testing.T) {
	clk := newClock()
	c := NewSemanticCache(10, time.Hour, 0.3, WithClock(clk.now))
	ctx := fakeContext("ctx")

	c.Set("гуртожиток ціни", ctx, "first")
	clk.advance(time.Second)
	c.Set("гуртожиток поселення", ctx, "second")

	m, ok := c.Get("гуртожиток студентам", ctx)
	require.True(t, ok)
	assert.InDelta(t, 1.0/3.0, m.Similarity, 1e-9)
	assert.Equal(t, "first", m.Response)
}

func TestSemanticCacheLookupPurgesUnrelatedExpired(t *testing.T) {
	clk := newClock()
	c := NewSemanticCache(10, time.Hour, 0.7, WithClock(clk.now))
	ctx := fakeContext("ctx")

	c.Set("гуртожиток", ctx, "1")
	c.Set("стипендія", ctx, "2")
	clk.advance(2 * time.Hour)
	c.Set("бібліотека", ctx, "3")

	_, ok := c.Get("спортзал", ctx)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Stats().IndexedKeywords)
}

func TestSemanticCacheTTLExpiry(t *testing.T) {
	clk := newClock()
	c := NewSemanticCache(10, 24*time.Hour, 0.7, WithClock(clk.now))
	ctx := fakeContext("ctx")

	c.Set("Які факультети є?", ctx, "відповідь")
	clk.advance(25 * time.Hour)

	_, ok := c.Get("Назви факультети", ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Stats().IndexedKeywords)

	c.Set("Які факультети є?", ctx, "відповідь")
	clk.advance(25 * time.Hour)
	_, ok = c.Get("Які факультети є?", ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestSemanticCacheEvictionUpdatesIndex(t *testing.T) {
	clk := newClock()
	const capacity = 3
	c := NewSemanticCache(capacity, time.Hour, 0.7, WithClock(clk.now))
	ctx := fakeContext("ctx")

	c.Set("гуртожиток", ctx, "1")
	clk.advance(time.Second)
	c.Set("стипендія", ctx, "2")
	clk.advance(time.Second)
	c.Set("бібліотека", ctx, "3")
	clk.advance(time.Second)
	c.Set("спортзал", ctx, "4")

	assert.Equal(t, capacity, c.Len())
	stats := c.Stats()
	assert.Equal(t, capacity, stats.IndexedKeywords)
	assert.Equal(t, 0.7, stats.SimilarityThreshold)

	_, ok := c.Get("гуртожиток", ctx)
	assert.False(t, ok)
	_, ok = c.Get("стипендія", ctx)
	assert.True(t, ok)
}

func TestSemanticCacheClear(t *testing.T) {
	c := NewSemanticCache(10, time.Hour, 0.7)
	c.Set("гуртожиток", fakeContext("x"), "1")
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Stats().IndexedKeywords)
}
