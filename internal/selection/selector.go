package selection

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/classifier"
	"github.com/ksu-assistant/backend/pkg/logger"
	"github.com/ksu-assistant/backend/pkg/utils"
)

// DisallowedTerms name other universities; any of them disqualifies a candidate.
var DisallowedTerms = []string{"хну", "кну", "львівський", "одеський", "харківський"}

var structureMarker = regexp.MustCompile(`(?m)^\s*(?:[•\-*]|\d+[.)])\s`)

// Score rates one candidate answer to query. Higher is better; a candidate
// naming a disallowed institution ends up below zero.
func Score(candidate, query string) float64 {
	score := 0.0

	switch n := utils.RuneLen(candidate); {
	case n >= 100 && n <= 500:
		score += 0.3
	case (n >= 50 && n < 100) || (n > 500 && n <= 1000):
		score += 0.2
	default:
		score += 0.1
	}

	queryTerms := terms(query)
	if len(queryTerms) > 0 {
		candidateTerms := terms(candidate)
		common := 0
		for term := range queryTerms {
			if _, ok := candidateTerms[term]; ok {
				common++
			}
		}
		score += 0.3 * float64(common) / float64(len(queryTerms))
	}

	if hasStructure(candidate) {
		score += 0.2
	}

	if containsDisallowed(strings.ToLower(candidate)) {
		score -= 1.0
	} else {
		score += 0.2
	}

	return score
}

// Select returns the highest scoring candidate. Ties go to the earliest one.
func Select(candidates []string, query string, intent classifier.Intent) string {
	switch len(candidates) {
	case 0:
		return ""
	case 1:
		return candidates[0]
	}

	best, bestScore := 0, Score(candidates[0], query)
	for i := 1; i < len(candidates); i++ {
		if s := Score(candidates[i], query); s > bestScore {
			best, bestScore = i, s
		}
	}

	logger.Debug("Candidate selected",
		zap.String("intent", intent.String()),
		zap.Int("candidates", len(candidates)),
		zap.Int("index", best),
		zap.Float64("score", bestScore),
	)
	return candidates[best]
}

func terms(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range utils.Words(text) {
		if utils.RuneLen(w) >= 4 {
			out[w] = struct{}{}
		}
	}
	return out
}

func hasStructure(text string) bool {
	return strings.Contains(text, "\n") || strings.Contains(text, ":") || structureMarker.MatchString(text)
}

func containsDisallowed(lower string) bool {
	for _, term := range DisallowedTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
