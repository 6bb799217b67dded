package mikrotik

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCacheRoundTrip(t *testing.T) {
	c := newResponseCache()
	rows := []map[string]string{{"name": "alice"}}

	c.put("k", rows, time.Minute)
	got, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, rows, got)

	_, ok = c.get("other")
	assert.False(t, ok)
}

func TestResponseCacheExpiry(t *testing.T) {
	c := newResponseCache()
	c.put("k", []map[string]string{{"name": "alice"}}, time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	_, ok := c.get("k")
	assert.False(t, ok, "entry past its TTL must miss")
}

func TestResponseCacheClear(t *testing.T) {
	c := newResponseCache()
	c.put("a", nil, time.Minute)
	c.put("b", nil, time.Minute)

	c.clear()

	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.False(t, ok)
}

func TestCacheKeyDependsOnParams(t *testing.T) {
	base := cacheKey("/ppp/active/print", nil)
	withName := cacheKey("/ppp/active/print", map[string]string{"name": "alice"})
	assert.NotEqual(t, base, withName)

	// Key is stable regardless of map iteration order.
	a := cacheKey("/ppp/secret/print", map[string]string{"x": "1", "y": "2"})
	b := cacheKey("/ppp/secret/print", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
}

func TestMockResponseUnknownCommandIsEmpty(t *testing.T) {
	rows := mockResponse("/interface/print")
	require.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestMockResponseSecretTableShape(t *testing.T) {
	rows := mockResponse("/ppp/secret/print")
	require.Len(t, rows, 2)
	assert.Equal(t, "false", rows[0]["disabled"])
	assert.Equal(t, "true", rows[1]["disabled"])
}
