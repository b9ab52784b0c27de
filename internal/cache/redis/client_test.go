package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	c, err := NewClient(mr.Host(), port, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSetGetResponse(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.GetResponse(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	stored := StoredResponse{Response: "32000 грн", Intent: "tuition", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	require.NoError(t, c.SetResponse(ctx, "k1", stored, time.Hour))

	got, ok, err := c.GetResponse(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.Response, got.Response)
	assert.Equal(t, stored.Intent, got.Intent)
	assert.True(t, stored.CreatedAt.Equal(got.CreatedAt))

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.GetResponse(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateResponses(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetResponse(ctx, "a", StoredResponse{Response: "1"}, time.Hour))
	require.NoError(t, c.SetResponse(ctx, "b", StoredResponse{Response: "2"}, time.Hour))
	require.NoError(t, mr.Set("other", "keep"))

	deleted, err := c.InvalidateResponses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.True(t, mr.Exists("other"))

	_, ok, err := c.GetResponse(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewClientFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host := mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	_, err = NewClient(host, port, "", 0)
	assert.Error(t, err)
}

func TestGetResponseRejectsCorruptPayload(t *testing.T) {
	c, mr := newTestClient(t)
	require.NoError(t, mr.Set(responsePrefix+"bad", "{not json"))

	_, _, err := c.GetResponse(context.Background(), "bad")
	assert.Error(t, err)
}
