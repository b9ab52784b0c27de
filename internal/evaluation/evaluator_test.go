package evaluation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksu-assistant/backend/internal/classifier"
	"github.com/ksu-assistant/backend/internal/query"
)

type scriptedEngine map[string]*query.QueryResponse

func (s scriptedEngine) Answer(_ context.Context, req query.QueryRequest) (*query.QueryResponse, error) {
	resp, ok := s[req.Query]
	if !ok {
		return nil, errors.New("backend gone")
	}
	return resp, nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDataset(t *testing.T) {
	ds, err := LoadDataset(writeFile(t, `{"items":[{"query":"Які є факультети?","expected_intent":"faculties","expected_keywords":["медичний"]}]}`))
	require.NoError(t, err)
	require.Len(t, ds.Items, 1)
	assert.Equal(t, classifier.Faculties, ds.Items[0].ExpectedIntent)

	ds, err = LoadDataset(writeFile(t, `[{"query":"Що таке ХДУ?"}]`))
	require.NoError(t, err)
	assert.Len(t, ds.Items, 1)

	_, err = LoadDataset(writeFile(t, `[{"query":"x","expected_intent":"weather"}]`))
	assert.Error(t, err)

	_, err = LoadDataset(writeFile(t, `[{"query":"  "}]`))
	assert.Error(t, err)

	_, err = LoadDataset(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRunDataset(t *testing.T) {
	engine := scriptedEngine{
		"Які є факультети?": {
			Intent: classifier.Faculties, Response: "Медичний та юридичний факультети.",
			Valid: true, LatencyMS: 100,
		},
		"Скільки коштує навчання?": {
			Intent: classifier.Tuition, Response: "30000 грн на рік.",
			Valid: true, FromCache: true, LatencyMS: 0,
		},
		"Як вступити?": {
			Intent: classifier.Admission, Response: "Подай заяву.",
			Valid: false, Regenerations: 2, LatencyMS: 200,
		},
	}
	ds := &Dataset{Items: []DatasetItem{
		{Query: "Які є факультети?", ExpectedIntent: classifier.Faculties, ExpectedKeywords: []string{"медичний", "юридичний"}},
		{Query: "Скільки коштує навчання?", ExpectedIntent: classifier.Tuition, ExpectedKeywords: []string{"30000", "семестр"}},
		{Query: "Як вступити?", ExpectedIntent: classifier.Procedural},
		{Query: "Де гуртожиток?"},
	}}

	report, err := NewEvaluator(engine).RunDataset(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalQueries)
	assert.Equal(t, 3, report.Answered)
	assert.Equal(t, 1, report.Failed)
	assert.InDelta(t, 66.67, report.IntentAccuracy, 0.01)
	assert.InDelta(t, 75.0, report.KeywordCoverage, 0.01)
	assert.InDelta(t, 66.67, report.ValidityRate, 0.01)
	assert.InDelta(t, 33.33, report.CacheHitRate, 0.01)
	assert.Equal(t, 2, report.Regenerations)
	assert.InDelta(t, 100.0, report.AvgLatencyMS, 0.01)
	assert.Equal(t, map[string]int{"procedural->admission": 1}, report.IntentConfusions)
	assert.Equal(t, []string{"семестр"}, report.Items[1].MissingKeywords)

	out := FormatReport(report)
	assert.Contains(t, out, "Intent accuracy:  66.7%")
	assert.Contains(t, out, "procedural->admission: 1")
	assert.Contains(t, out, `"Де гуртожиток?" error: backend gone`)
	assert.Contains(t, out, "missing=семестр")
}

func TestRunDatasetStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewEvaluator(scriptedEngine{}).RunDataset(ctx, &Dataset{Items: []DatasetItem{{Query: "x"}}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Answered)
}
