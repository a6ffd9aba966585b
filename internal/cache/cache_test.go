package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(max int, ttl time.Duration) (*Cache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(max, ttl)
	c.now = clk.Now
	return c, clk
}

func TestGetSetAndStats(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)

	if _, ok := c.Get("https://a"); ok {
		t.Fatalf("empty cache should miss")
	}
	c.Set("https://a", "text a", 0)
	v, ok := c.Get("https://a")
	if !ok || v != "text a" {
		t.Fatalf("Get = (%q, %v), want (%q, true)", v, ok, "text a")
	}

	want := Stats{Hits: 1, Misses: 1, HitRate: 50, Size: 1}
	if diff := cmp.Diff(want, c.Stats()); diff != "" {
		t.Fatalf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestHitRateBounds(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)
	if got := c.Stats().HitRate; got != 0 {
		t.Fatalf("HitRate without any Get = %v, want 0", got)
	}

	c.Set("k", "v", 0)
	for i := 0; i < 5; i++ {
		c.Get("k")
	}
	if got := c.Stats().HitRate; got != 100 {
		t.Fatalf("HitRate with only hits = %v, want 100", got)
	}
}

func TestExpiredEntriesAreInvisible(t *testing.T) {
	c, clk := newTestCache(10, 24*time.Hour)

	c.Set("ok", "positive", 24*time.Hour)
	c.Set("bad", "negative", time.Hour)

	clk.Advance(time.Hour)
	if _, ok := c.Get("bad"); ok {
		t.Fatalf("entry should expire exactly at its ttl")
	}
	if v, ok := c.Get("ok"); !ok || v != "positive" {
		t.Fatalf("long-lived entry should still be visible")
	}

	clk.Advance(23 * time.Hour)
	if _, ok := c.Get("ok"); ok {
		t.Fatalf("entry past ttl must not be returned")
	}
	if n := c.Len(); n != 0 {
		t.Fatalf("Len = %d after expiry, want 0", n)
	}
}

func TestSetOverwritesAndResetsExpiry(t *testing.T) {
	c, clk := newTestCache(10, time.Hour)

	c.Set("k", "old", time.Hour)
	clk.Advance(50 * time.Minute)
	c.Set("k", "new", time.Hour)
	clk.Advance(50 * time.Minute)

	v, ok := c.Get("k")
	if !ok || v != "new" {
		t.Fatalf("Get = (%q, %v), want (new, true)", v, ok)
	}
	if n := c.Len(); n != 1 {
		t.Fatalf("overwrite must keep a single entry, Len = %d", n)
	}
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	c, clk := newTestCache(3, time.Hour)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", 0)
		clk.Advance(time.Second)
	}
	c.Set("k3", "v", 0)

	if _, ok := c.Peek("k0"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if _, ok := c.Peek(k); !ok {
			t.Fatalf("%s should still be cached", k)
		}
	}
	if n := c.Len(); n != 3 {
		t.Fatalf("Len = %d, want 3", n)
	}
}

func TestOverwriteMovesEntryToNewest(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)

	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Set("a", "1b", 0) // a 变为最新
	c.Set("c", "3", 0)

	if _, ok := c.Peek("b"); ok {
		t.Fatalf("b was inserted least recently and should be evicted")
	}
	if v, _ := c.Peek("a"); v != "1b" {
		t.Fatalf("a = %q, want 1b", v)
	}
}

func TestExpiredEntriesEvictedBeforeLiveOnes(t *testing.T) {
	c, clk := newTestCache(2, time.Hour)

	c.Set("live", "1", 10*time.Hour)
	c.Set("short", "2", time.Minute)
	clk.Advance(2 * time.Minute)
	c.Set("new", "3", 0)

	if _, ok := c.Peek("live"); !ok {
		t.Fatalf("live entry should survive when an expired one can be dropped")
	}
}

func TestPeekDoesNotCount(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)
	c.Set("a", "1", 0)
	c.Peek("a")
	c.Peek("missing")
	if s := c.Stats(); s.Hits != 0 || s.Misses != 0 {
		t.Fatalf("Peek must not touch stats: %+v", s)
	}
}

func TestDeleteAndFlush(t *testing.T) {
	c, _ := newTestCache(5, time.Hour)
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)

	c.Delete("a")
	if _, ok := c.Peek("a"); ok {
		t.Fatalf("deleted key still present")
	}
	c.Flush()
	if n := c.Len(); n != 0 {
		t.Fatalf("Len after Flush = %d", n)
	}
}

func TestConcurrentAccessKeepsCap(t *testing.T) {
	const max = 50
	c := New(max, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("g%d-%d", g, i%120)
				c.Set(key, "v", 0)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	s := c.Stats()
	if s.Size > max {
		t.Fatalf("Size = %d exceeds cap %d", s.Size, max)
	}
	if s.Hits+s.Misses != 8*500 {
		t.Fatalf("hits+misses = %d, want %d", s.Hits+s.Misses, 8*500)
	}
	if len(c.items) != c.order.Len() {
		t.Fatalf("index and order list out of sync: %d vs %d", len(c.items), c.order.Len())
	}
}
