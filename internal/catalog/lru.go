package catalog

import (
	"container/list"
	"sync"
)

// transcriptCache is a fixed-capacity LRU keyed by video ID. Parsed
// transcripts for long videos run to tens of thousands of entries, so the
// cache keeps repeat phrase scans from re-decoding the same JSON.
type transcriptCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	videoID    string
	transcript Transcript
}

func newTranscriptCache(capacity int) *transcriptCache {
	if capacity < 1 {
		capacity = 1
	}
	return &transcriptCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (c *transcriptCache) get(videoID string) (Transcript, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[videoID]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).transcript, true
}

func (c *transcriptCache) put(videoID string, t Transcript) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[videoID]; ok {
		el.Value.(*cacheEntry).transcript = t
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{videoID: videoID, transcript: t})
	c.entries[videoID] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).videoID)
		}
	}
}

func (c *transcriptCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
