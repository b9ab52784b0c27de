package contextopt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksu-assistant/backend/internal/knowledge"
)

func section(runes int) string {
	return strings.Repeat("а", runes)
}

func testDocument(sizes map[string]int) *knowledge.Document {
	data := map[string]interface{}{
		"university": map[string]interface{}{"name": "ХДУ"},
		"contacts":   map[string]interface{}{"phone": "+380 552 494375"},
	}
	for name, n := range sizes {
		data[name] = section(n)
	}
	return knowledge.NewDocument(data,
		"university", "contacts", "admission", "documents", "faculties", "tuition", "fields", "achievements", "international")
}

func TestExtractKeywords(t *testing.T) {
	assert.Equal(t, []string{"скільки", "коштує", "навчання", "121"}, ExtractKeywords("Скільки коштує навчання на 121?"))
	assert.Empty(t, ExtractKeywords("як і де?"))
	assert.Empty(t, ExtractKeywords(""))
}

func TestOptimizeIncludesStandardSectionsInTierOrder(t *testing.T) {
	doc := knowledge.NewDocument(map[string]interface{}{
		"tuition":    map[string]interface{}{"121": "32000 грн"},
		"faculties":  []interface{}{"Факультет комп'ютерних наук"},
		"university": map[string]interface{}{"name": "ХДУ"},
		"contacts":   map[string]interface{}{"phone": "+380 552 494375"},
		"canteen":    map[string]interface{}{"menu": "борщ"},
	}, "tuition", "faculties", "university", "contacts", "canteen")

	ctx := New(DefaultBudget, DefaultSoftOverflow).Optimize("Скільки коштує навчання на 121?", doc)

	assert.Equal(t, []string{"university", "contacts", "faculties", "tuition"}, ctx.Names())
	assert.Contains(t, ctx.Relevance(), "tuition")
}

func TestOptimizeAppendsRelevantExtraSections(t *testing.T) {
	doc := knowledge.NewDocument(map[string]interface{}{
		"university": map[string]interface{}{"name": "ХДУ"},
		"contacts":   map[string]interface{}{"phone": "+380 552 494375"},
		"canteen":    map[string]interface{}{"menu": "борщ"},
		"sports":     map[string]interface{}{"club": "футбол"},
	}, "university", "contacts", "canteen", "sports")

	ctx := New(DefaultBudget, DefaultSoftOverflow).Optimize("Де поїсти борщ?", doc)

	assert.True(t, ctx.Has("canteen"))
	assert.False(t, ctx.Has("sports"))
	assert.InDelta(t, 0.5, ctx.Relevance()["canteen"], 1e-9)
}

func TestOptimizeEmptyQueryStillPromotesStandardSections(t *testing.T) {
	doc := testDocument(map[string]int{"admission": 10, "tuition": 10})
	ctx := New(DefaultBudget, DefaultSoftOverflow).Optimize("", doc)

	assert.Equal(t, []string{"university", "contacts", "admission", "tuition"}, ctx.Names())
	assert.Empty(t, ctx.Relevance())
}

func TestOptimizeStopsAtBudget(t *testing.T) {
	doc := testDocument(map[string]int{"admission": 900, "documents": 900, "faculties": 900, "tuition": 50})
	ctx := New(DefaultBudget, DefaultSoftOverflow).Optimize("вступ", doc)

	assert.Equal(t, []string{"university", "contacts", "admission", "documents"}, ctx.Names())
	assert.LessOrEqual(t, ctx.Size(), DefaultBudget)
}

func TestOptimizeAllowsOneSoftOverflow(t *testing.T) {
	doc := testDocument(map[string]int{"admission": 1200, "documents": 1200, "faculties": 10})
	ctx := New(DefaultBudget, DefaultSoftOverflow).Optimize("вступ", doc)

	assert.Equal(t, []string{"university", "contacts", "admission", "documents"}, ctx.Names())
	assert.Greater(t, ctx.Size(), DefaultBudget)
	assert.False(t, ctx.Has("faculties"))
}

func TestOptimizeBudgetInvariant(t *testing.T) {
	opt := New(DefaultBudget, DefaultSoftOverflow)
	sizes := []int{0, 40, 400, 900, 1500, 2600}
	names := []string{"admission", "faculties", "international"}

	for _, a := range sizes {
		for _, b := range sizes {
			for _, c := range sizes {
				doc := testDocument(map[string]int{names[0]: a, names[1]: b, names[2]: c})
				ctx := opt.Optimize("вступ факультет", doc)

				require.True(t, ctx.Has("university"))
				require.True(t, ctx.Has("contacts"))

				if ctx.Size() <= DefaultBudget {
					continue
				}
				order := ctx.Names()
				last := order[len(order)-1]
				without := make(map[string]knowledge.Value)
				for _, name := range order[:len(order)-1] {
					v, _ := ctx.Get(name)
					without[name] = v
				}
				assert.Less(t, float64(NewContext(without).Size()), DefaultBudget*DefaultSoftOverflow,
					"overflow section %s added past the soft limit (sizes %d/%d/%d)", last, a, b, c)
			}
		}
	}
}

func TestFingerprint(t *testing.T) {
	opt := New(DefaultBudget, DefaultSoftOverflow)
	doc := testDocument(map[string]int{"tuition": 20})

	first, err := opt.Optimize("вартість", doc).Fingerprint()
	require.NoError(t, err)
	second, err := opt.Optimize("вартість", doc).Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	changed := testDocument(map[string]int{"tuition": 21})
	third, err := opt.Optimize("вартість", changed).Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestContextJSONIsSorted(t *testing.T) {
	ctx := NewContext(map[string]knowledge.Value{
		"contacts":   knowledge.String("+380"),
		"university": knowledge.String("ХДУ"),
	})
	raw, err := ctx.JSON()
	require.NoError(t, err)
	assert.Equal(t, `{"contacts":"+380","university":"ХДУ"}`, string(raw))
}
