package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/LJTian/NotifyCast/internal/cache"
	"github.com/LJTian/NotifyCast/internal/callback"
	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/LJTian/NotifyCast/internal/processor"
	"github.com/LJTian/NotifyCast/internal/rotator"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPositiveTTL = 24 * time.Hour
	DefaultNegativeTTL = time.Hour
	DefaultPostDelay   = 5 * time.Second
	DefaultLinkTTL     = 7 * 24 * time.Hour
)

var (
	// ErrAlreadyRunning 上一轮定时任务尚未结束，本次触发被跳过
	ErrAlreadyRunning = errors.New("pipeline: scheduled run already in progress")
	// ErrUnknownPost 回调中的帖子 ID 无法映射回文章链接
	ErrUnknownPost   = errors.New("pipeline: unknown post id")
	ErrUnknownSource = errors.New("pipeline: unknown source")
)

// FeedSource 订阅抓取，见 collector.FeedFetcher
type FeedSource interface {
	LatestEntry(ctx context.Context, src collector.Source) (collector.FeedEntry, error)
	BuildArticle(ctx context.Context, src collector.Source, entry collector.FeedEntry) (collector.Article, error)
}

// TextExtractor 正文抽取，见 collector.ContentExtractor
type TextExtractor interface {
	Extract(ctx context.Context, pageURL string, selectors []string) (string, error)
}

// Poster 频道发送端，真正的传输由外部实现
type Poster interface {
	Post(ctx context.Context, p processor.Post) error
}

// History 可选的已发布记录
type History interface {
	SavePost(ctx context.Context, p processor.Post) error
	HasPosted(ctx context.Context, link string) (bool, error)
	LookupLink(ctx context.Context, postID string) (string, bool, error)
}

type Options struct {
	PositiveTTL  time.Duration
	NegativeTTL  time.Duration
	FetchTimeout time.Duration
	PostDelay    time.Duration
	LinkTTL      time.Duration
}

func (o *Options) setDefaults() {
	if o.PositiveTTL <= 0 {
		o.PositiveTTL = DefaultPositiveTTL
	}
	if o.NegativeTTL <= 0 {
		o.NegativeTTL = DefaultNegativeTTL
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = collector.DefaultFetchTimeout
	}
	if o.PostDelay < 0 {
		o.PostDelay = 0
	}
	if o.LinkTTL <= 0 {
		o.LinkTTL = DefaultLinkTTL
	}
}

// Deps 显式注入的依赖，History 可为空
type Deps struct {
	Rotator   *rotator.Rotator
	Feeds     FeedSource
	Extractor TextExtractor
	Cache     *cache.Cache
	Links     *cache.Cache
	Formatter *processor.Formatter
	Poster    Poster
	History   History
}

// Orchestrator 组合 轮转 → 订阅抓取 → 缓存 → 格式化 的定时路径，
// 以及 缓存 → 正文抽取 的按需路径
type Orchestrator struct {
	rotator   *rotator.Rotator
	feeds     FeedSource
	extractor TextExtractor
	cache     *cache.Cache
	links     *cache.Cache
	formatter *processor.Formatter
	poster    Poster
	history   History
	opts      Options

	running atomic.Bool
	state   atomic.Int32
	lastRun atomic.Pointer[RunReport]

	group singleflight.Group
	// fetches 按需路径真正发起的网络抓取次数
	fetches atomic.Int64
}

func New(d Deps, opts Options) (*Orchestrator, error) {
	if d.Rotator == nil || d.Feeds == nil || d.Extractor == nil || d.Cache == nil || d.Formatter == nil || d.Poster == nil {
		return nil, errors.New("pipeline: missing dependency")
	}
	opts.setDefaults()
	links := d.Links
	if links == nil {
		links = cache.New(cache.DefaultMaxEntries, opts.LinkTTL)
	}
	return &Orchestrator{
		rotator:   d.Rotator,
		feeds:     d.Feeds,
		extractor: d.Extractor,
		cache:     d.Cache,
		links:     links,
		formatter: d.Formatter,
		poster:    d.Poster,
		history:   d.History,
		opts:      opts,
	}, nil
}

// Sources 已配置的来源
func (o *Orchestrator) Sources() []collector.Source {
	return o.rotator.Sources()
}

// SourceForURL 按链接 host 找到对应来源的选择器；找不到时只走通用兜底链
func (o *Orchestrator) SourceForURL(raw string) (collector.Source, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return collector.Source{}, false
	}
	return o.rotator.ForHost(u.Hostname())
}

// rememberLink 记录帖子 ID → 链接，供回调按钮反查
func (o *Orchestrator) rememberLink(postID, link string) {
	o.links.Set(postID, link, o.opts.LinkTTL)
}

// LookupLink 先查内存，再查发布历史
func (o *Orchestrator) LookupLink(ctx context.Context, postID string) (string, error) {
	if link, ok := o.links.Peek(postID); ok {
		return link, nil
	}
	if o.history != nil {
		link, ok, err := o.history.LookupLink(ctx, postID)
		if err != nil {
			return "", fmt.Errorf("pipeline: lookup post %s: %w", postID, err)
		}
		if ok {
			o.rememberLink(postID, link)
			return link, nil
		}
	}
	return "", ErrUnknownPost
}

// ResolveAction 处理已解码的回调操作
func (o *Orchestrator) ResolveAction(ctx context.Context, a callback.Action) (Resolution, error) {
	switch a.Kind {
	case callback.KindReadFullArticle:
		link, err := o.LookupLink(ctx, a.Arg)
		if err != nil {
			return Resolution{}, err
		}
		return o.ResolveFullArticle(ctx, link), nil
	default:
		return Resolution{}, fmt.Errorf("%w: %q", callback.ErrUnknownKind, a.Kind)
	}
}
