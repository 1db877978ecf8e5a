package inference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelCacheHitSkipsProvider(t *testing.T) {
	p := &scriptedProvider{replies: map[string]reply{"a": {text: `{"primary":"tomato"}`}}}
	o := newTestOrchestrator(p).WithLabelCache(8, time.Minute)

	first, err := o.Label(context.Background(), []byte("img"), "image/jpeg", []string{"a"}, 0)
	require.NoError(t, err)
	first.Primary = "mutated"

	second, err := o.Label(context.Background(), []byte("img"), "image/jpeg", []string{"a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "tomato", second.Primary)
	assert.Len(t, p.calls, 1)

	_, err = o.Label(context.Background(), []byte("other"), "image/jpeg", []string{"a"}, 0)
	require.NoError(t, err)
	assert.Len(t, p.calls, 2)
}

func TestLabelCacheKeyIncludesCandidates(t *testing.T) {
	assert.NotEqual(t, labelCacheKey([]byte("img"), []string{"a"}), labelCacheKey([]byte("img"), []string{"b"}))
	assert.Equal(t, labelCacheKey([]byte("img"), []string{"a", "b"}), labelCacheKey([]byte("img"), []string{"a", "b"}))
}

func TestLabelCacheDoesNotStoreFailures(t *testing.T) {
	p := &scriptedProvider{}
	o := newTestOrchestrator(p).WithLabelCache(8, time.Minute)

	_, err := o.Label(context.Background(), []byte("img"), "image/jpeg", []string{"a"}, 0)
	require.Error(t, err)
	_, err = o.Label(context.Background(), []byte("img"), "image/jpeg", []string{"a"}, 0)
	require.Error(t, err)
	assert.Len(t, p.calls, 2)
}

func TestLabelCacheExpires(t *testing.T) {
	c := newLabelCache(4, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.add("k", &LabelResult{Primary: "tomato", Labels: []Label{{Name: "tomato"}}})
	got, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, "tomato", got.Primary)

	now = now.Add(2 * time.Minute)
	_, ok = c.get("k")
	assert.False(t, ok)
}

func TestLabelCacheDisabled(t *testing.T) {
	assert.Nil(t, newLabelCache(0, time.Minute))
	var c *labelCache
	_, ok := c.get("k")
	assert.False(t, ok)
	c.add("k", &LabelResult{Primary: "x"})
}

func TestLabelCacheCopiesConfidence(t *testing.T) {
	c := newLabelCache(4, time.Minute)
	conf := 0.9
	stored := &LabelResult{Primary: "tomato", Labels: []Label{{Name: "tomato", Confidence: &conf}}}
	c.add("k", stored)
	conf = 0.1

	got, ok := c.get("k")
	require.True(t, ok)
	require.NotNil(t, got.Labels[0].Confidence)
	assert.Equal(t, 0.9, *got.Labels[0].Confidence)
	*got.Labels[0].Confidence = 0.5

	again, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, 0.9, *again.Labels[0].Confidence)
}
