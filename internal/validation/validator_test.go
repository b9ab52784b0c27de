package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickErrors(r Result) []Error {
	var out []Error
	for _, e := range r.Errors {
		if e.Level == LevelQuick {
			out = append(out, e)
		}
	}
	return out
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		text   string
		phrase string
		want   bool
	}{
		{"вступ до кну", "кну", true},
		{"(хну)", "хну", true},
		{"треба дихнути глибше", "хну", false},
		{"this is fine", "hi", false},
		{"hi there", "hi", true},
		{"вотум довіри", "вот", false},
		{"у міцкевича", "міцкевич", true},
		{"беззаконні міцкевичі", "міцкевич", true},
		{"суперміцкевич", "міцкевич", false},
		{"я розумію вас", "я розумію", true},
	}
	for _, tt := range tests {
		t.Run(tt.text+"/"+tt.phrase, func(t *testing.T) {
			assert.Equal(t, tt.want, containsPhrase(tt.text, tt.phrase))
		})
	}
}

func TestFindForbidden(t *testing.T) {
	assert.Equal(t, "харків", findForbidden("у харківському виші"))
	assert.Equal(t, "каразін", findForbidden("імені каразіна"))
	assert.Equal(t, "кпі", findForbidden("як у кпі"))
	assert.Equal(t, "", findForbidden("херсонський державний університет"))
}

func TestResponseValidator(t *testing.T) {
	v := NewResponseValidator()

	ok := v.Validate("Херсонський державний університет пропонує навчання на 121 спеціальності.")
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Errors)

	bad := v.Validate("  Вот ответ: навчання коштує 30 тисяць гривень. Welcome!  ")
	require.False(t, bad.Valid)
	assert.True(t, bad.Has(KindWhitespace))
	assert.True(t, bad.Has(KindRussian))
	assert.True(t, bad.Has(KindEnglish))
	assert.True(t, bad.Has(KindWrongCase))
	assert.False(t, bad.Has(KindForbiddenEntity))

	assert.True(t, v.Validate("").Has(KindTooShort))
	assert.True(t, v.Validate("Так.").Has(KindTooShort))
	assert.True(t, v.Validate(strings.Repeat("а", MaxLength+1)).Has(KindTooLong))
	assert.True(t, v.Validate("Потрібна квіткове свідоцтво про освіту.").Has(KindDocumentError))
	assert.True(t, v.Validate("Я розумію ваше питання про вступ до університету.").Has(KindTechnical))
}

func TestMultiLevelValidator_Valid(t *testing.T) {
	v := NewMultiLevelValidator()
	r := v.Validate("Навчання на спеціальності 121 коштує 30000 грн на рік.", "Скільки коштує навчання на 121?")
	assert.True(t, r.Valid, r.Summary())
	assert.Zero(t, r.Weight)
}

func TestMultiLevelValidator_Empty(t *testing.T) {
	r := NewMultiLevelValidator().Validate("   ", "Які факультети є?")
	require.False(t, r.Valid)
	assert.Equal(t, []string{"[quick] Порожня відповідь"}, r.Messages())
	assert.True(t, r.IsCritical(DefaultCriticalKinds, 20))
}

// A disallowed institution is rejected by the quick level no matter how
// relevant and well formed the rest of the answer is.
func TestMultiLevelValidator_ForbiddenEntityAlwaysRejected(t *testing.T) {
	v := NewMultiLevelValidator()
	query := "Які факультети є в університеті?"
	responses := []string{
		"Факультети університету: комп'ютерних наук, медичний, юридичний. Як і в ХНУ.",
		"В університеті є факультети, схожі на Харківський національний університет.",
		"Факультети університету імені Каразіна дуже різноманітні.",
		"Факультети є, як і в КПІ",
	}
	for _, resp := range responses {
		t.Run(resp, func(t *testing.T) {
			r := v.Validate(resp, query)
			require.False(t, r.Valid)
			quick := quickErrors(r)
			require.Len(t, quick, 1)
			assert.Equal(t, KindForbiddenEntity, quick[0].Kind)
			assert.True(t, r.IsCritical(DefaultCriticalKinds, 20))
		})
	}
}

func TestMultiLevelValidator_Irrelevant(t *testing.T) {
	v := NewMultiLevelValidator()
	r := v.Validate("Гуртожиток розташований поруч з головним корпусом.", "Скільки коштує навчання на 121?")
	require.False(t, r.Valid)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, LevelSemantic, r.Errors[0].Level)
	assert.Equal(t, KindIrrelevant, r.Errors[0].Kind)
	assert.Equal(t, 1.5, r.Weight)
	assert.False(t, r.IsCritical(DefaultCriticalKinds, 20))
}

func TestMultiLevelValidator_WeightsAccumulate(t *testing.T) {
	v := NewMultiLevelValidator()
	r := v.Validate("Вот так.", "Скільки коштує навчання?")
	require.False(t, r.Valid)
	assert.Equal(t, 1.0+2.0+1.5, r.Weight)
	assert.True(t, r.IsCritical(nil, 20))
}

func TestResult_IsCritical(t *testing.T) {
	valid := Result{Valid: true, Length: 3}
	assert.False(t, valid.IsCritical(DefaultCriticalKinds, 20))

	lexical := Result{Errors: []Error{{Kind: KindWrongCase}}, Length: 120}
	assert.False(t, lexical.IsCritical(DefaultCriticalKinds, 20))
	assert.True(t, lexical.IsCritical([]Kind{KindWrongCase}, 20))

	assert.Equal(t, []Kind{"forbidden_entity", "too_short"}, ParseKinds([]string{" forbidden_entity", "", "too_short"}))
}
