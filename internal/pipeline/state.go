package pipeline

import (
	"time"

	"github.com/LJTian/NotifyCast/internal/cache"
)

// State 定时路径的状态机：
// Idle → FetchingFeed → ExtractingContent → Formatting → Posted|Failed → Idle
type State int32

const (
	StateIdle State = iota
	StateFetchingFeed
	StateExtractingContent
	StateFormatting
	StatePosted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingFeed:
		return "fetching_feed"
	case StateExtractingContent:
		return "extracting_content"
	case StateFormatting:
		return "formatting"
	case StatePosted:
		return "posted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// State 当前定时路径状态
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// RunReport 一轮定时任务的结果
type RunReport struct {
	Source     string    `json:"source"`
	Link       string    `json:"link,omitempty"`
	PostID     string    `json:"postId,omitempty"`
	Outcome    State     `json:"outcome"`
	Skipped    bool      `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Stats 供健康与统计接口展示
type Stats struct {
	Cache           cache.Stats `json:"cache"`
	Cursor          int         `json:"cursor"`
	CurrentSource   string      `json:"currentSource"`
	State           State       `json:"state"`
	Running         bool        `json:"running"`
	OnDemandFetches int64       `json:"onDemandFetches"`
	LastRun         *RunReport  `json:"lastRun,omitempty"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Cache:           o.cache.Stats(),
		Cursor:          o.rotator.Cursor(),
		CurrentSource:   o.rotator.Current().Name,
		State:           o.State(),
		Running:         o.running.Load(),
		OnDemandFetches: o.fetches.Load(),
		LastRun:         o.lastRun.Load(),
	}
}
