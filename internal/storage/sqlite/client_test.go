package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksu-assistant/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.InitSchema())
	return client
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	client := newTestClient(t)
	assert.NoError(t, client.InitSchema())
	assert.NoError(t, client.Ping(context.Background()))
}

func TestSaveRequestMetric(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	err := client.SaveRequestMetric(ctx, &models.RequestMetric{
		QueryID:      "q-1",
		Query:        strings.Repeat("я", 800),
		Response:     strings.Repeat("ю", 1500),
		ResponseTime: 1500 * time.Millisecond,
		FromCache:    true,
		Intent:       "tuition",
		Valid:        true,
		Regenerated:  1,
	})
	require.NoError(t, err)

	metrics, err := client.GetRequestMetrics(ctx, 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	m := metrics[0]
	assert.Equal(t, "q-1", m.QueryID)
	assert.Equal(t, 500, len([]rune(m.Query)))
	assert.Equal(t, 1000, len([]rune(m.Response)))
	assert.Equal(t, 1500*time.Millisecond, m.ResponseTime)
	assert.True(t, m.FromCache)
	assert.True(t, m.Valid)
	assert.Equal(t, "tuition", m.Intent)
	assert.Equal(t, 1, m.Regenerated)
}

func TestCleanupOldMetrics(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SaveRequestMetric(ctx, &models.RequestMetric{QueryID: "old", CreatedAt: time.Now().AddDate(0, 0, -100)}))
	require.NoError(t, client.SaveRequestMetric(ctx, &models.RequestMetric{QueryID: "new"}))

	deleted, err := client.CleanupOldMetrics(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	metrics, err := client.GetRequestMetrics(ctx, 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "new", metrics[0].QueryID)
}

func TestMessageHistory(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		_, err := client.SaveMessage(ctx, "user-1", "питання "+string(rune('0'+i)), "відповідь")
		require.NoError(t, err)
	}
	_, err := client.SaveMessage(ctx, "user-2", "інше", "інша")
	require.NoError(t, err)

	messages, err := client.GetRecentMessages(ctx, "user-1", 5)
	require.NoError(t, err)
	require.Len(t, messages, 5)
	assert.Equal(t, "питання 3", messages[0].UserMessage)
	assert.Equal(t, "питання 7", messages[4].UserMessage)

	none, err := client.GetRecentMessages(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreFeedback(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.StoreFeedback(ctx, &models.Feedback{QueryID: "q-1", UserID: "u", Helpful: false}))
	require.NoError(t, client.StoreFeedback(ctx, &models.Feedback{QueryID: "q-1", UserID: "u", Helpful: true, Comment: "дякую"}))
	require.NoError(t, client.StoreFeedback(ctx, &models.Feedback{QueryID: "q-2", Helpful: false, IssueCategory: "wrong"}))

	summary, err := client.GetFeedbackSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackSummary{Helpful: 1, NotHelpful: 1}, summary)
}
