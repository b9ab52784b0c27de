package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", HashString("hello"))
	assert.Equal(t, HashString("привіт"), HashBytes([]byte("привіт")))
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "При", Truncate("Привіт", 3))
	assert.Equal(t, "Привіт", Truncate("Привіт", 10))
	assert.Equal(t, "", Truncate("Привіт", 0))
}

func TestWordsHandlesCyrillic(t *testing.T) {
	assert.Equal(t, []string{"скільки", "коштує", "навчання", "на", "121"}, Words("Скільки коштує навчання на 121?"))
}

func TestKeywords(t *testing.T) {
	stop := NewStopWords("на", "як")

	assert.Equal(t, []string{"скільки", "коштує", "навчання", "121"},
		Keywords("Скільки коштує навчання на 121?", stop, 3, false))
	assert.Equal(t, []string{"факультет", "кафедра"},
		Keywords("факультет кафедра факультет", stop, 4, true))
}
