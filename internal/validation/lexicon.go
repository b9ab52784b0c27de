package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// forbiddenStems are rejected wherever they occur, inside words included.
var forbiddenStems = []string{"харків", "каразін", "каразин"}

// forbiddenEntities are other institutions and their short names.
var forbiddenEntities = []string{
	"харківський національний університет", "хну", "харну",
	"харківський національний університет імені в.н.каразіна",
	"харківський національний університет імені каразіна",
	"харківському державному університеті імені в. н. каразіна",
	"каразіна", "каразінський", "каразинський",
	"київський національний університет", "кну", "кпі",
	"київський національний університет імені леся победимова",
	"національний університет імені леся победимова",
	"львівський університет", "львівський національний університет",
	"одеський університет", "одеський національний університет",
	"університет імені адама міцкевича", "білосток", "міцкевич",
	"український державний університет імені михайла грушевського",
	"хнту", "хнту імені івана сікорського", "івана сікорського",
	"сікорського", "хнту імені сікорського",
	"дніпровський", "запорізький", "сумський", "чернігівський",
	"полтавський", "вінницький", "тернопільський", "івано-франківський",
	"луцький", "ужгородський", "хмельницький", "черкаський",
	"кропивницький", "миколаївський", "мелітопольський",
}

var russianWords = []string{"ответ", "почему", "вот", "здравствуйте", "фінансы", "ответить", "сказать", "понять"}

var englishWords = []string{"welcome", "hello", "hi", "xdu", "knu"}

var technicalPhrases = []string{
	"витрання до користувача", "пішіть за", "поповнітьтесь",
	"я розумію", "я спробую", "що саме потрібно",
	"я можу допомогти", "я готовий",
}

var wrongCases = []string{"тисяців", "тисяць", "тисяцїв", "грнівн", "гривні"}

var documentErrors = []string{
	"квіткове", "квіткове свідоцтво", "підставка", "підставка про",
	"підтвердження наявності документів з попередньої школи",
	"середнього спеціального навчально-підготовчого закладу",
}

// shortPhrase is the longest phrase that must also end on a word boundary.
const shortPhrase = 4

// findForbidden returns the first disallowed institution named in lower.
func findForbidden(lower string) string {
	for _, stem := range forbiddenStems {
		if strings.Contains(lower, stem) {
			return stem
		}
	}
	return findPhrase(lower, forbiddenEntities)
}

// findPhrase returns the first phrase found in lower. A phrase must start on
// a word boundary; short phrases must end on one too, so abbreviations do
// not match inside ordinary words.
func findPhrase(lower string, phrases []string) string {
	for _, phrase := range phrases {
		if containsPhrase(lower, phrase) {
			return phrase
		}
	}
	return ""
}

func containsPhrase(text, phrase string) bool {
	whole := utf8.RuneCountInString(phrase) <= shortPhrase
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(phrase)
		if boundaryBefore(text, start) && (!whole || boundaryAfter(text, end)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\''
}
