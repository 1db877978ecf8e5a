package inference

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheTTL = 10 * time.Minute

type cachedLabels struct {
	result   LabelResult
	storedAt time.Time
}

// labelCache remembers successful label results keyed by image content and
// candidate list, so re-submitting the same photo does not pay for another
// model call.
type labelCache struct {
	entries *lru.Cache[string, cachedLabels]
	ttl     time.Duration
	now     func() time.Time
}

func newLabelCache(size int, ttl time.Duration) *labelCache {
	if size <= 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	entries, err := lru.New[string, cachedLabels](size)
	if err != nil {
		return nil
	}
	return &labelCache{entries: entries, ttl: ttl, now: time.Now}
}

func labelCacheKey(image []byte, candidates []string) string {
	h := sha256.New()
	h.Write(image)
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(candidates, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *labelCache) get(key string) (*LabelResult, bool) {
	if c == nil {
		return nil, false
	}
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.entries.Remove(key)
		return nil, false
	}
	return cloneLabels(&entry.result), true
}

func (c *labelCache) add(key string, result *LabelResult) {
	if c == nil || result == nil {
		return
	}
	c.entries.Add(key, cachedLabels{result: *cloneLabels(result), storedAt: c.now()})
}

func cloneLabels(r *LabelResult) *LabelResult {
	out := &LabelResult{Primary: r.Primary, Labels: make([]Label, len(r.Labels))}
	copy(out.Labels, r.Labels)
	for i, l := range out.Labels {
		if l.Confidence != nil {
			c := *l.Confidence
			out.Labels[i].Confidence = &c
		}
	}
	return out
}
