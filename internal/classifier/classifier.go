package classifier

import (
	"regexp"
	"strings"
)

type Intent string

const (
	Factual    Intent = "factual"
	Comparison Intent = "comparison"
	Procedural Intent = "procedural"
	Admission  Intent = "admission"
	Tuition    Intent = "tuition"
	Faculties  Intent = "faculties"
)

// Priority is the order in which intents are tested. Factual is the default
// and is never matched directly.
var Priority = []Intent{Admission, Tuition, Faculties, Comparison, Procedural, Factual}

func (i Intent) Valid() bool {
	switch i {
	case Factual, Comparison, Procedural, Admission, Tuition, Faculties:
		return true
	}
	return false
}

func (i Intent) String() string {
	return string(i)
}

var patterns = map[Intent][]*regexp.Regexp{
	Factual: compile(
		`які\s+є`, `що\s+таке`, `де\s+знаходиться`,
		`скільки\s+є`, `які\s+спеціальності`, `які\s+факультети`,
	),
	Comparison: compile(
		`порівняй`, `в\s+чому\s+різниця`, `що\s+краще`,
		`яка\s+різниця`, `скільки\s+різних`, `як\s+відрізняються`,
	),
	Procedural: compile(
		`як\s+подати`, `які\s+кроки`, `що\s+потрібно\s+зробити`,
		`як\s+вступити`, `як\s+підготуватися`, `як\s+оформити`,
	),
	Admission: compile(
		`вступ`, `нмт`, `документ`, `кампанія`,
		`правила\s+вступу`, `правила\s+прийому`, `порядок\s+вступу`,
		`траєкторії`, `електронний\s+кабінет`,
		`ksu24`, `ксу24`, `вступна\s+кампанія`, `правила`,
	),
	Tuition: compile(
		`вартість`, `ціна`, `скільки\s+коштує`,
		`оплата`, `тарифи`, `коштує\s+навчання`,
	),
	Faculties: compile(
		`факультет`, `спеціальність`, `напрям`,
		`освітні\s+програми`, `які\s+є\s+факультети`,
	),
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

// Classifier maps a free-text question to an intent. It holds no state.
type Classifier struct{}

func New() *Classifier {
	return &Classifier{}
}

func (c *Classifier) Classify(query string) Intent {
	if strings.TrimSpace(query) == "" {
		return Factual
	}

	lower := strings.ToLower(query)
	for _, intent := range Priority {
		if intent == Factual {
			continue
		}
		for _, re := range patterns[intent] {
			if re.MatchString(lower) {
				return intent
			}
		}
	}
	return Factual
}

// Confidence is the share of the intent's patterns that match the query.
func (c *Classifier) Confidence(query string, intent Intent) float64 {
	if query == "" {
		return 0
	}
	list := patterns[intent]
	if len(list) == 0 {
		return 0
	}

	lower := strings.ToLower(query)
	matches := 0
	for _, re := range list {
		if re.MatchString(lower) {
			matches++
		}
	}
	return float64(matches) / float64(len(list))
}

// MatchedTerms returns the literal fragments of the query that matched the
// intent's patterns, in pattern order.
func (c *Classifier) MatchedTerms(query string, intent Intent) []string {
	lower := strings.ToLower(query)
	var terms []string
	seen := make(map[string]bool)
	for _, re := range patterns[intent] {
		if m := re.FindString(lower); m != "" && !seen[m] {
			seen[m] = true
			terms = append(terms, m)
		}
	}
	return terms
}
