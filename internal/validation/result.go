package validation

import (
	"fmt"
	"strings"
)

type Level string

const (
	LevelQuick    Level = "quick"
	LevelDetailed Level = "detailed"
	LevelSemantic Level = "semantic"
)

// Kind classifies a validation failure.
type Kind string

const (
	KindForbiddenEntity Kind = "forbidden_entity"
	KindTooShort        Kind = "too_short"
	KindTooLong         Kind = "too_long"
	KindWhitespace      Kind = "whitespace"
	KindRussian         Kind = "russian_word"
	KindEnglish         Kind = "english_word"
	KindTechnical       Kind = "technical_phrase"
	KindWrongCase       Kind = "wrong_case"
	KindDocumentError   Kind = "document_error"
	KindIrrelevant      Kind = "irrelevant"
)

// DefaultCriticalKinds trigger regeneration.
var DefaultCriticalKinds = []Kind{KindForbiddenEntity, KindTooShort}

type Error struct {
	Level   Level  `json:"level"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e Error) String() string {
	if e.Level == "" {
		return e.Message
	}
	return fmt.Sprintf("[%s] %s", e.Level, e.Message)
}

type Result struct {
	Valid  bool    `json:"valid"`
	Errors []Error `json:"errors,omitempty"`
	// Weight is the summed weight of the levels that failed.
	Weight float64 `json:"weight"`
	// Length is the trimmed response length in runes.
	Length int `json:"length"`
}

func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.String())
	}
	return out
}

func (r Result) Summary() string {
	return strings.Join(r.Messages(), "; ")
}

func (r Result) Has(kind Kind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// IsCritical reports whether an invalid result is bad enough to regenerate:
// it carries one of kinds, or the response is shorter than minLength runes.
func (r Result) IsCritical(kinds []Kind, minLength int) bool {
	if r.Valid {
		return false
	}
	if r.Length < minLength {
		return true
	}
	for _, kind := range kinds {
		if r.Has(kind) {
			return true
		}
	}
	return false
}

// ParseKinds converts configured kind names.
func ParseKinds(names []string) []Kind {
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			kinds = append(kinds, Kind(name))
		}
	}
	return kinds
}
