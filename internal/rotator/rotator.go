package rotator

import (
	"errors"
	"sync"

	"github.com/LJTian/NotifyCast/internal/collector"
)

var ErrNoSources = errors.New("rotator: no sources configured")

// Rotator 按固定顺序轮转来源，每次定时任务结束后前进一步
type Rotator struct {
	mu      sync.Mutex
	sources []collector.Source
	cursor  int
}

// New seed 为起始游标，会对来源数量取模
func New(sources []collector.Source, seed int) (*Rotator, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	cp := make([]collector.Source, len(sources))
	copy(cp, sources)

	seed %= len(cp)
	if seed < 0 {
		seed += len(cp)
	}
	return &Rotator{sources: cp, cursor: seed}, nil
}

func (r *Rotator) Current() collector.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[r.cursor]
}

// Advance cursor = (cursor + 1) mod len(sources)
func (r *Rotator) Advance() {
	r.mu.Lock()
	r.cursor = (r.cursor + 1) % len(r.sources)
	r.mu.Unlock()
}

func (r *Rotator) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

func (r *Rotator) Len() int {
	return len(r.sources)
}

// Sources 返回来源列表的副本
func (r *Rotator) Sources() []collector.Source {
	cp := make([]collector.Source, len(r.sources))
	copy(cp, r.sources)
	return cp
}

// Lookup 按名称查找来源
func (r *Rotator) Lookup(name string) (collector.Source, bool) {
	for _, s := range r.sources {
		if s.Name == name {
			return s, true
		}
	}
	return collector.Source{}, false
}

// ForHost 按文章链接的 host 反查来源
func (r *Rotator) ForHost(host string) (collector.Source, bool) {
	for _, s := range r.sources {
		if s.MatchesHost(host) {
			return s, true
		}
	}
	return collector.Source{}, false
}
