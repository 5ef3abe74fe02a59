package cache

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	src, clk := newTestCache(Config{Name: "data"})

	src.Set("keep", map[string]any{"plot": 12}, Options{TTL: time.Hour, Tags: []string{"stats"}})
	src.Set("expired", 1, Options{TTL: time.Millisecond})
	clk.advance(time.Minute)

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))

	dst, _ := newTestCache(Config{Name: "data"})
	imported, err := dst.Import(&buf)
	require.NoError(t, err)

	// Only the live entry survives the round trip.
	assert.Equal(t, 1, imported)
	assert.False(t, dst.Has("expired"))

	v, ok := dst.Get("keep")
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(v.(json.RawMessage), &decoded))
	assert.Equal(t, float64(12), decoded["plot"])
}

func TestSnapshotPreservesTags(t *testing.T) {
	src, _ := newTestCache(Config{Name: "data"})
	src.Set("k", "v", Options{TTL: time.Hour, Tags: []string{"metrics", "dashboard"}})

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))

	dst, _ := newTestCache(Config{Name: "data"})
	_, err := dst.Import(&buf)
	require.NoError(t, err)

	assert.Equal(t, 1, dst.ClearByTags([]string{"metrics"}))
}

func TestImportRejectsGarbage(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})

	_, err := c.Import(bytes.NewBufferString("not json"))
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}
