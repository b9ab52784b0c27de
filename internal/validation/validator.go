package validation

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/pkg/logger"
	"github.com/ksu-assistant/backend/pkg/utils"
)

const (
	MinLength = 10
	MaxLength = 3500
)

// ResponseValidator checks content, format and lexical quality of one answer.
type ResponseValidator struct{}

func NewResponseValidator() *ResponseValidator {
	return &ResponseValidator{}
}

func (v *ResponseValidator) Validate(response string) Result {
	var errs []Error
	add := func(kind Kind, format string, args ...interface{}) {
		errs = append(errs, Error{Kind: kind, Message: fmt.Sprintf(format, args...)})
	}

	trimmed := strings.TrimSpace(response)
	length := utils.RuneLen(response)
	lower := strings.ToLower(response)

	switch {
	case trimmed == "":
		add(KindTooShort, "Відповідь порожня")
	case length < MinLength:
		add(KindTooShort, "Відповідь занадто коротка (%d символів)", length)
	case length > MaxLength:
		add(KindTooLong, "Відповідь занадто довга (%d символів)", length)
	}
	if trimmed != "" && trimmed != response {
		add(KindWhitespace, "Відповідь містить зайві пробіли на початку/в кінці")
	}

	if found := findForbidden(lower); found != "" {
		add(KindForbiddenEntity, "Згадано заборонений університет: %s", found)
	}
	if found := findPhrase(lower, russianWords); found != "" {
		add(KindRussian, "Виявлено російське слово: %s", found)
	}
	if found := findPhrase(lower, englishWords); found != "" {
		add(KindEnglish, "Виявлено англійське слово: %s", found)
	}
	if found := findPhrase(lower, technicalPhrases); found != "" {
		add(KindTechnical, "Виявлено технічну фразу: %s", found)
	}
	if found := findPhrase(lower, wrongCases); found != "" {
		add(KindWrongCase, "Неправильний відмінок: %s", found)
	}
	if found := findPhrase(lower, documentErrors); found != "" {
		add(KindDocumentError, "Критична помилка в документах: %s", found)
	}

	return Result{Valid: len(errs) == 0, Errors: errs, Length: utils.RuneLen(trimmed)}
}

type level struct {
	name   Level
	weight float64
	check  func(response, query string) []Error
}

// MultiLevelValidator runs the quick, detailed and semantic levels in turn
// and collects the errors of every level that fails.
type MultiLevelValidator struct {
	base      *ResponseValidator
	stopWords utils.StopWords
	levels    []level
}

var semanticStopWords = []string{"як", "що", "де", "коли", "чи", "для", "про", "на", "в", "з", "та", "і", "або"}

// MinRelevance is the share of query keywords an answer must mention.
const MinRelevance = 0.3

func NewMultiLevelValidator() *MultiLevelValidator {
	v := &MultiLevelValidator{
		base:      NewResponseValidator(),
		stopWords: utils.NewStopWords(semanticStopWords...),
	}
	v.levels = []level{
		{name: LevelQuick, weight: 1.0, check: v.quick},
		{name: LevelDetailed, weight: 2.0, check: v.detailed},
		{name: LevelSemantic, weight: 1.5, check: v.semantic},
	}
	return v
}

func (v *MultiLevelValidator) Validate(response, query string) Result {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return Result{
			Errors: []Error{{Level: LevelQuick, Kind: KindTooShort, Message: "Порожня відповідь"}},
			Weight: 1.0,
		}
	}

	result := Result{Length: utils.RuneLen(trimmed)}
	for _, l := range v.levels {
		errs := l.check(response, query)
		if len(errs) == 0 {
			continue
		}
		for _, e := range errs {
			e.Level = l.name
			result.Errors = append(result.Errors, e)
		}
		result.Weight += l.weight
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		logger.Debug("Response failed validation",
			zap.Float64("weight", result.Weight),
			zap.Strings("errors", result.Messages()),
		)
	}
	return result
}

func (v *MultiLevelValidator) quick(response, _ string) []Error {
	if found := findForbidden(strings.ToLower(response)); found != "" {
		return []Error{{Kind: KindForbiddenEntity, Message: "Заборонений університет: " + found}}
	}
	if utils.RuneLen(strings.TrimSpace(response)) < MinLength {
		return []Error{{Kind: KindTooShort, Message: "Порожня або занадто коротка відповідь"}}
	}
	return nil
}

func (v *MultiLevelValidator) detailed(response, _ string) []Error {
	return v.base.Validate(response).Errors
}

func (v *MultiLevelValidator) semantic(response, query string) []Error {
	keywords := v.keywords(query)
	if len(keywords) == 0 {
		return nil
	}

	lower := strings.ToLower(response)
	found := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			found++
		}
	}
	if float64(found)/float64(len(keywords)) < MinRelevance {
		return []Error{{Kind: KindIrrelevant, Message: "Відповідь не відповідає на питання"}}
	}
	return nil
}

func (v *MultiLevelValidator) keywords(query string) []string {
	return utils.Keywords(query, v.stopWords, 2, false)
}
