package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/LJTian/NotifyCast/internal/cache"
	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/LJTian/NotifyCast/internal/config"
	"github.com/LJTian/NotifyCast/internal/pipeline"
	"github.com/LJTian/NotifyCast/internal/processor"
	"github.com/LJTian/NotifyCast/internal/rotator"
	"github.com/LJTian/NotifyCast/internal/storage"
	"github.com/LJTian/NotifyCast/internal/telegram"
)

// App 各个命令共用的组件
type App struct {
	Config       *config.Config
	Sources      []collector.Source
	Cache        *cache.Cache
	Extractor    *collector.ContentExtractor
	Feeds        *collector.FeedFetcher
	Formatter    *processor.Formatter
	Orchestrator *pipeline.Orchestrator

	// 以下可能为 nil
	Store    *storage.Store
	Telegram *telegram.ChannelPoster
}

// Build 按配置组装流水线。未配置 BOT_TOKEN 时帖子写到 out，便于本地调试。
func Build(cfg *config.Config, out io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	rot, err := rotator.New(sources, cfg.RotationSeed)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Sources:   sources,
		Cache:     cache.New(cfg.CacheMaxEntries, cfg.CacheTTL),
		Formatter: processor.NewFormatter(cfg.ChannelName, cfg.ChannelLink),
	}

	ecfg := collector.ExtractorConfig{
		Timeout:   cfg.FetchTimeout,
		UserAgent: cfg.UserAgent,
		MinLength: cfg.MinContentLength,
	}
	if cfg.BrowserScraperURL != "" {
		ecfg.Renderer = collector.NewRenderClient(cfg.BrowserScraperURL)
	}
	a.Extractor = collector.NewContentExtractor(ecfg)
	a.Feeds = collector.NewFeedFetcher(a.Extractor, cfg.FetchTimeout, cfg.UserAgent)

	var poster pipeline.Poster = &LogPoster{W: out}
	if cfg.BotToken != "" {
		a.Telegram = telegram.NewChannelPoster(telegram.NewClient(cfg.BotToken), cfg.ChannelID)
		poster = a.Telegram
	} else {
		log.Println("warn: BOT_TOKEN not set, posts will be printed instead of sent")
	}

	deps := pipeline.Deps{
		Rotator:   rot,
		Feeds:     a.Feeds,
		Extractor: a.Extractor,
		Cache:     a.Cache,
		Formatter: a.Formatter,
		Poster:    poster,
	}
	if cfg.PostgresDSN != "" {
		store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.Store = store
		deps.History = store
	}

	a.Orchestrator, err = pipeline.New(deps, pipeline.Options{
		PositiveTTL:  cfg.CacheTTL,
		NegativeTTL:  cfg.CacheNegativeTTL,
		FetchTimeout: cfg.FetchTimeout,
		PostDelay:    cfg.PostDelay,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Close() {
	if a.Store == nil {
		return
	}
	if err := a.Store.Close(); err != nil {
		log.Printf("warn: close store: %v", err)
	}
}

// LogPoster 把帖子打印出来而不是发送
type LogPoster struct {
	W io.Writer
}

func (p *LogPoster) Post(ctx context.Context, post processor.Post) error {
	var b strings.Builder
	fmt.Fprintf(&b, "----- post %s (%s) -----\n", post.ID, post.Source)
	if post.MediaURL != "" {
		fmt.Fprintf(&b, "[%s] %s\n", post.MediaType, post.MediaURL)
	}
	b.WriteString(post.Text)
	b.WriteString("\n")
	for _, a := range post.Actions {
		fmt.Fprintf(&b, "[button] %s -> %s\n", a.Label, a.ActionID)
	}
	_, err := io.WriteString(p.W, b.String())
	return err
}
