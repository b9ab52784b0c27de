package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/classifier"
	"github.com/ksu-assistant/backend/internal/query"
	"github.com/ksu-assistant/backend/pkg/logger"
)

// Answerer is the part of the query engine the evaluation drives.
type Answerer interface {
	Answer(ctx context.Context, req query.QueryRequest) (*query.QueryResponse, error)
}

type Evaluator struct {
	engine Answerer
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Query            string            `json:"query"`
	ExpectedIntent   classifier.Intent `json:"expected_intent,omitempty"`
	ExpectedKeywords []string          `json:"expected_keywords,omitempty"`
}

// ItemResult is the outcome of one dataset question.
type ItemResult struct {
	Query           string            `json:"query"`
	Intent          classifier.Intent `json:"intent"`
	IntentCorrect   bool              `json:"intent_correct"`
	KeywordCoverage float64           `json:"keyword_coverage"`
	MissingKeywords []string          `json:"missing_keywords,omitempty"`
	Valid           bool              `json:"valid"`
	FromCache       bool              `json:"from_cache"`
	Fallback        bool              `json:"fallback"`
	Regenerations   int               `json:"regenerations"`
	LatencyMS       int               `json:"latency_ms"`
	Error           string            `json:"error,omitempty"`
}

// Report aggregates a dataset run. Rates are percentages of the answered
// questions; intent accuracy counts only items with an expected intent.
type Report struct {
	TotalQueries     int            `json:"total_queries"`
	Answered         int            `json:"answered"`
	Failed           int            `json:"failed"`
	IntentAccuracy   float64        `json:"intent_accuracy"`
	KeywordCoverage  float64        `json:"keyword_coverage"`
	ValidityRate     float64        `json:"validity_rate"`
	CacheHitRate     float64        `json:"cache_hit_rate"`
	FallbackCount    int            `json:"fallback_count"`
	Regenerations    int            `json:"regenerations"`
	AvgLatencyMS     float64        `json:"avg_latency_ms"`
	IntentConfusions map[string]int `json:"intent_confusions,omitempty"`
	Items            []ItemResult   `json:"items"`
}

func NewEvaluator(engine Answerer) *Evaluator {
	return &Evaluator{engine: engine}
}

// LoadDataset reads a dataset file: either {"items": [...]} or a bare array.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var dataset Dataset
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &dataset.Items)
	} else {
		err = json.Unmarshal(data, &dataset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	for i, item := range dataset.Items {
		if strings.TrimSpace(item.Query) == "" {
			return nil, fmt.Errorf("dataset item %d has no query", i+1)
		}
		if item.ExpectedIntent != "" && !item.ExpectedIntent.Valid() {
			return nil, fmt.Errorf("dataset item %d has unknown intent %q", i+1, item.ExpectedIntent)
		}
	}
	return &dataset, nil
}

// RunDataset asks every question in order. A question that fails is counted
// and the run continues; only a cancelled ctx stops it early.
func (e *Evaluator) RunDataset(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{
		TotalQueries:     len(dataset.Items),
		IntentConfusions: make(map[string]int),
	}

	var (
		withIntent, intentHits int
		coverage               float64
		withKeywords           int
		valid, cached          int
		latency                time.Duration
	)

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logger.Debug("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		resp, err := e.engine.Answer(ctx, query.QueryRequest{Query: item.Query})
		if err != nil {
			logger.Error("Failed to answer dataset query", zap.String("query", item.Query), zap.Error(err))
			report.Failed++
			report.Items = append(report.Items, ItemResult{Query: item.Query, Error: err.Error()})
			continue
		}

		result := score(item, resp)
		report.Items = append(report.Items, result)
		report.Answered++

		if item.ExpectedIntent != "" {
			withIntent++
			if result.IntentCorrect {
				intentHits++
			} else {
				report.IntentConfusions[fmt.Sprintf("%s->%s", item.ExpectedIntent, result.Intent)]++
			}
		}
		if len(item.ExpectedKeywords) > 0 {
			withKeywords++
			coverage += result.KeywordCoverage
		}
		if result.Valid {
			valid++
		}
		if result.FromCache {
			cached++
		}
		if result.Fallback {
			report.FallbackCount++
		}
		report.Regenerations += result.Regenerations
		latency += time.Duration(result.LatencyMS) * time.Millisecond
	}

	report.IntentAccuracy = percent(intentHits, withIntent)
	if withKeywords > 0 {
		report.KeywordCoverage = coverage / float64(withKeywords) * 100
	}
	report.ValidityRate = percent(valid, report.Answered)
	report.CacheHitRate = percent(cached, report.Answered)
	if report.Answered > 0 {
		report.AvgLatencyMS = float64(latency.Milliseconds()) / float64(report.Answered)
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("failed", report.Failed),
		zap.Float64("intent_accuracy", report.IntentAccuracy),
		zap.Float64("validity_rate", report.ValidityRate),
	)

	return report, nil
}

func score(item DatasetItem, resp *query.QueryResponse) ItemResult {
	result := ItemResult{
		Query:         item.Query,
		Intent:        resp.Intent,
		IntentCorrect: item.ExpectedIntent == "" || item.ExpectedIntent == resp.Intent,
		Valid:         resp.Valid,
		FromCache:     resp.FromCache,
		Fallback:      resp.Fallback,
		Regenerations: resp.Regenerations,
		LatencyMS:     resp.LatencyMS,
	}

	if len(item.ExpectedKeywords) == 0 {
		result.KeywordCoverage = 1
		return result
	}
	answer := strings.ToLower(resp.Response)
	found := 0
	for _, kw := range item.ExpectedKeywords {
		if strings.Contains(answer, strings.ToLower(kw)) {
			found++
		} else {
			result.MissingKeywords = append(result.MissingKeywords, kw)
		}
	}
	result.KeywordCoverage = float64(found) / float64(len(item.ExpectedKeywords))
	return result
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// FormatReport renders a report for the terminal.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Questions:        %d (answered %d, failed %d)\n", r.TotalQueries, r.Answered, r.Failed)
	fmt.Fprintf(&b, "Intent accuracy:  %.1f%%\n", r.IntentAccuracy)
	fmt.Fprintf(&b, "Keyword coverage: %.1f%%\n", r.KeywordCoverage)
	fmt.Fprintf(&b, "Valid answers:    %.1f%%\n", r.ValidityRate)
	fmt.Fprintf(&b, "Cache hits:       %.1f%%\n", r.CacheHitRate)
	fmt.Fprintf(&b, "Fallbacks:        %d\n", r.FallbackCount)
	fmt.Fprintf(&b, "Regenerations:    %d\n", r.Regenerations)
	fmt.Fprintf(&b, "Mean latency:     %.0f ms\n", r.AvgLatencyMS)

	if len(r.IntentConfusions) > 0 {
		keys := make([]string, 0, len(r.IntentConfusions))
		for k := range r.IntentConfusions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nMisclassified:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %d\n", k, r.IntentConfusions[k])
		}
	}

	var misses []ItemResult
	for _, item := range r.Items {
		if item.Error != "" || !item.IntentCorrect || len(item.MissingKeywords) > 0 || !item.Valid {
			misses = append(misses, item)
		}
	}
	if len(misses) > 0 {
		b.WriteString("\nNeeds attention:\n")
		for _, item := range misses {
			fmt.Fprintf(&b, "  - %q", item.Query)
			switch {
			case item.Error != "":
				fmt.Fprintf(&b, " error: %s", item.Error)
			default:
				fmt.Fprintf(&b, " intent=%s valid=%t", item.Intent, item.Valid)
				if len(item.MissingKeywords) > 0 {
					fmt.Fprintf(&b, " missing=%s", strings.Join(item.MissingKeywords, ","))
				}
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
