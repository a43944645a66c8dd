package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscriptCache_PutGet(t *testing.T) {
	c := newTranscriptCache(4)

	tr := Transcript{{Word: "hello", Start: 0, End: 0.5}}
	c.put("vidA", tr)

	got, ok := c.get("vidA")
	assert.True(t, ok)
	assert.Equal(t, tr, got)

	_, ok = c.get("vidB")
	assert.False(t, ok)
}

func TestTranscriptCache_EvictsOldest(t *testing.T) {
	c := newTranscriptCache(2)

	c.put("a", Transcript{{Word: "a"}})
	c.put("b", Transcript{{Word: "b"}})
	c.put("c", Transcript{{Word: "c"}})

	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestTranscriptCache_GetRefreshesRecency(t *testing.T) {
	c := newTranscriptCache(2)

	c.put("a", Transcript{{Word: "a"}})
	c.put("b", Transcript{{Word: "b"}})

	// Touch "a" so "b" becomes the eviction victim.
	_, ok := c.get("a")
	assert.True(t, ok)

	c.put("c", Transcript{{Word: "c"}})

	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("b")
	assert.False(t, ok)
}

func TestTranscriptCache_UpdateExisting(t *testing.T) {
	c := newTranscriptCache(2)

	c.put("a", Transcript{{Word: "old"}})
	c.put("a", Transcript{{Word: "new"}})

	got, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "new", got[0].Word)
	assert.Equal(t, 1, c.len())
}

func TestTranscriptCache_Concurrent(t *testing.T) {
	c := newTranscriptCache(8)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%8))
			c.put(key, Transcript{{Word: key}})
			c.get(key)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.len(), 8)
}
