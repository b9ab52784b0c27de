package contextopt

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/knowledge"
	"github.com/ksu-assistant/backend/pkg/logger"
	"github.com/ksu-assistant/backend/pkg/utils"
)

const (
	DefaultBudget       = 2000
	DefaultSoftOverflow = 0.8
)

var tiers = [][]string{
	{knowledge.SectionUniversity, knowledge.SectionContacts, knowledge.SectionAdmission, knowledge.SectionDocuments},
	{knowledge.SectionFaculties, knowledge.SectionTuition, knowledge.SectionFields},
	{knowledge.SectionAchievements, knowledge.SectionInternational},
}

var anchors = []string{knowledge.SectionUniversity, knowledge.SectionContacts}

var stopWords = utils.NewStopWords("як", "що", "де", "коли", "чи", "для", "про", "на", "в", "з", "та", "і", "або")

type Optimizer struct {
	budget       int
	softOverflow float64
}

func New(budget int, softOverflow float64) *Optimizer {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if softOverflow <= 0 || softOverflow > 1 {
		softOverflow = DefaultSoftOverflow
	}
	return &Optimizer{budget: budget, softOverflow: softOverflow}
}

func (o *Optimizer) Budget() int {
	return o.budget
}

// Optimize selects the sections of doc relevant to query and trims them to
// the character budget. The anchor sections are always carried over.
func (o *Optimizer) Optimize(query string, doc *knowledge.Document) *Context {
	keywords := ExtractKeywords(query)
	relevance := relevantSections(keywords, doc)

	selected := newContext()
	for _, tier := range tiers {
		for _, name := range tier {
			if v, ok := doc.Section(name); ok {
				selected.put(name, v)
			}
		}
	}
	for _, name := range doc.Names() {
		if _, ok := relevance[name]; ok && !selected.Has(name) {
			v, _ := doc.Section(name)
			selected.put(name, v)
		}
	}

	out := selected
	if size := selected.Size(); size > o.budget {
		out = o.limit(selected)
		logger.Debug("Context trimmed to budget",
			zap.Int("before", size),
			zap.Int("after", out.Size()),
			zap.Int("budget", o.budget),
		)
	}

	for _, name := range anchors {
		if v, ok := doc.Section(name); ok {
			out.put(name, v)
		}
	}
	out.relevance = relevance
	return out
}

// limit rebuilds the context tier by tier while it fits the budget. One
// section may overflow the budget if usage is still under the soft limit;
// nothing is added after it.
func (o *Optimizer) limit(c *Context) *Context {
	limited := newContext()
	used := 2
	soft := float64(o.budget) * o.softOverflow

	for _, tier := range tiers {
		for _, name := range tier {
			v, ok := c.Get(name)
			if !ok {
				continue
			}
			cost := entryCost(name, v)
			if used+cost <= o.budget {
				limited.put(name, v)
				used += cost
				continue
			}
			if float64(used) < soft {
				limited.put(name, v)
			}
			return limited
		}
	}
	return limited
}

// entryCost is the size of one `"name":value,` member of the serialized map.
func entryCost(name string, v knowledge.Value) int {
	return utils.RuneLen(knowledge.String(name).Text()) + 1 + utils.RuneLen(v.Text()) + 1
}

// ExtractKeywords tokenizes query and keeps words longer than two runes that
// are not stop words.
func ExtractKeywords(query string) []string {
	return utils.Keywords(query, stopWords, 3, false)
}

func relevantSections(keywords []string, doc *knowledge.Document) map[string]float64 {
	relevance := make(map[string]float64)
	if len(keywords) == 0 {
		return relevance
	}

	for _, name := range doc.Names() {
		v, _ := doc.Section(name)
		if v.IsNull() {
			continue
		}
		text := strings.ToLower(v.Text())
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				matches++
			}
		}
		if matches > 0 {
			relevance[name] = float64(matches) / float64(len(keywords))
		}
	}
	return relevance
}
