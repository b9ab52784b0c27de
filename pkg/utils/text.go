package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Words returns the lower-cased word tokens of s. Letters from any script count.
func Words(s string) []string {
	return wordPattern.FindAllString(strings.ToLower(s), -1)
}

func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// StopWords is a set of tokens that carry no meaning for matching.
type StopWords map[string]struct{}

func NewStopWords(words ...string) StopWords {
	set := make(StopWords, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func (s StopWords) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

// Keywords returns the tokens of text that are not stop words and have at
// least minLen runes. Duplicates are kept unless unique is set, in which case
// the first occurrence wins.
func Keywords(text string, stop StopWords, minLen int, unique bool) []string {
	var out []string
	var seen map[string]bool
	if unique {
		seen = make(map[string]bool)
	}
	for _, w := range Words(text) {
		if RuneLen(w) < minLen || stop.Contains(w) {
			continue
		}
		if unique {
			if seen[w] {
				continue
			}
			seen[w] = true
		}
		out = append(out, w)
	}
	return out
}
