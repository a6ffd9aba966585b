package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxEntries = 1000
)

// Stats 缓存命中统计；HitRate 为百分比，未发生任何 Get 时为 0
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
	Size    int     `json:"size"`
}

type entry struct {
	key        string
	value      string
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache 进程内、按条数封顶、带过期时间的字符串缓存。
// 达到上限时按插入顺序淘汰最早的条目（FIFO）。
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	defaultTTL time.Duration
	items      map[string]*list.Element
	order      *list.List // 头部为最早插入
	hits       uint64
	misses     uint64

	now func() time.Time
}

func New(maxEntries int, defaultTTL time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Cache{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get 未命中或已过期都计一次 miss，过期值永远不会返回
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lookup(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Peek 与 Get 相同但不计入命中统计
func (c *Cache) Peek(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

func (c *Cache) lookup(key string) (string, bool) {
	el, ok := c.items[key]
	if !ok {
		return "", false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		return "", false
	}
	return e.value, true
}

// Set 写入或覆盖 key，并重置过期时间；ttl <= 0 时使用默认 TTL
func (c *Cache) Set(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.insertedAt = now
		e.expiresAt = now.Add(ttl)
		c.order.MoveToBack(el)
		return
	}

	if len(c.items) >= c.maxEntries {
		c.pruneLocked(now)
	}
	for len(c.items) >= c.maxEntries {
		c.removeElement(c.order.Front())
	}

	el := c.order.PushBack(&entry{key: key, value: value, insertedAt: now, expiresAt: now.Add(ttl)})
	c.items[key] = el
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Flush 清空所有条目，保留统计
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Prune 清理已过期条目，返回清理数量
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(c.now())
}

func (c *Cache) pruneLocked(now time.Time) int {
	n := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*entry).expiresAt) {
			c.removeElement(el)
			n++
		}
		el = next
	}
	return n
}

func (c *Cache) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.items, e.key)
}

// Len 当前未过期的条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(c.now())
	return len(c.items)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(c.now())
	s := Stats{Hits: c.hits, Misses: c.misses, Size: len(c.items)}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total) * 100
	}
	return s
}

// StartJanitor 按固定间隔清理过期条目，直到 ctx 结束
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Prune()
			}
		}
	}()
}
