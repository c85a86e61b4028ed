// ABOUTME: Tests for the request key cache behind idempotent bot creation
// ABOUTME: Covers expiry against a fake clock, size-bounded eviction, sweeping, and concurrent use

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration, size int) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newCache(ttl, size, clock.now)
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_GetMissing(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestCache_PutGet(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	c.Put("user-1:key-a", "bot-1")

	v, ok := c.Get("user-1:key-a")
	require.True(t, ok)
	assert.Equal(t, "bot-1", v)
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)
	c.Put("k", "v")

	clock.advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired key is dropped on read")
}

func TestCache_PutRefreshesTTL(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)
	c.Put("k", "old")

	clock.advance(45 * time.Second)
	c.Put("k", "new")
	clock.advance(45 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 3)

	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")
	c.Put("a", "1") // a becomes newest
	c.Put("d", "4")

	_, ok := c.Get("b")
	assert.False(t, ok, "b was the oldest")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_Forget(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 10)
	c.Put("k", "v")

	c.Forget("k")
	c.Forget("never-stored")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)
	c.Put("old-1", "x")
	c.Put("old-2", "x")
	clock.advance(30 * time.Second)
	c.Put("fresh", "x")
	clock.advance(40 * time.Second)

	assert.Equal(t, 2, c.sweep())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestCache_Concurrent(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", g, i%60)
				c.Put(key, "v")
				c.Get(key)
				if i%7 == 0 {
					c.Forget(key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestCache_CloseTwice(t *testing.T) {
	c := New(time.Minute, 1)
	c.Close()
	assert.NotPanics(t, c.Close)
}
