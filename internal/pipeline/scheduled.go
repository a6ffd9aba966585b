package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LJTian/NotifyCast/internal/collector"
)

// RunScheduled 定时器调用的零参数入口。任何阶段的错误只记录日志，不影响下一次触发。
func (o *Orchestrator) RunScheduled() {
	_, _ = o.RunOnce(context.Background())
}

// RunOnce 处理当前轮转到的来源，并在结束后（无论成功失败）前进游标。
// 与上一轮重叠的触发直接跳过，不排队，也不前进游标。
func (o *Orchestrator) RunOnce(ctx context.Context) (RunReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		log.Println("pipeline: previous run still in progress, skip this trigger")
		return RunReport{}, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	src := o.rotator.Current()
	// 失败的来源不会在下一次触发立即重试，而是等其它来源都轮过一遍
	defer o.rotator.Advance()

	report, err := o.runSource(ctx, src)
	o.lastRun.Store(&report)
	o.setState(StateIdle)
	return report, err
}

// RunSource 立即处理指定来源，不影响轮转游标（手动触发用）
func (o *Orchestrator) RunSource(ctx context.Context, name string) (RunReport, error) {
	src, ok := o.rotator.Lookup(name)
	if !ok {
		return RunReport{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	if !o.running.CompareAndSwap(false, true) {
		return RunReport{}, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	report, err := o.runSource(ctx, src)
	o.lastRun.Store(&report)
	o.setState(StateIdle)
	return report, err
}

// RunAll 依次处理全部来源，两次发帖之间间隔 PostDelay 以避开下游限流；不影响轮转游标
func (o *Orchestrator) RunAll(ctx context.Context) ([]RunReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)
	defer o.setState(StateIdle)

	var (
		reports []RunReport
		errs    []error
		posted  bool
	)
	for _, src := range o.rotator.Sources() {
		if posted && o.opts.PostDelay > 0 {
			select {
			case <-ctx.Done():
				return reports, ctx.Err()
			case <-time.After(o.opts.PostDelay):
			}
		}
		report, err := o.runSource(ctx, src)
		reports = append(reports, report)
		o.lastRun.Store(&report)
		if err != nil {
			errs = append(errs, err)
		}
		posted = err == nil && !report.Skipped
	}
	return reports, errors.Join(errs...)
}

func (o *Orchestrator) runSource(ctx context.Context, src collector.Source) (RunReport, error) {
	report := RunReport{Source: src.Name, StartedAt: time.Now()}
	finish := func(state State, err error) (RunReport, error) {
		o.setState(state)
		report.Outcome = state
		report.FinishedAt = time.Now()
		if err != nil {
			report.Error = err.Error()
			log.Printf("pipeline: %s failed: %v", src.Name, err)
		}
		return report, err
	}

	o.setState(StateFetchingFeed)
	log.Printf("pipeline: fetch %s...", src.Name)
	entry, err := o.feeds.LatestEntry(ctx, src)
	if err != nil {
		return finish(StateFailed, err)
	}
	report.Link = entry.Link

	if o.history != nil {
		posted, err := o.history.HasPosted(ctx, entry.Link)
		switch {
		case err != nil:
			log.Printf("warn: pipeline: check history for %s: %v", entry.Link, err)
		case posted:
			log.Printf("pipeline: %s latest entry already posted, skip: %s", src.Name, entry.Link)
			report.Skipped = true
			return finish(StatePosted, nil)
		}
	}

	o.setState(StateExtractingContent)
	article, err := o.feeds.BuildArticle(ctx, src, entry)
	if err != nil {
		return finish(StateFailed, err)
	}
	// 定时路径抽取到的正文直接进缓存，用户点击“阅读全文”时无需再抓取
	o.storeText(article.SourceURL, article.FullText)

	o.setState(StateFormatting)
	post := o.formatter.ChannelPost(article)
	report.PostID = post.ID
	o.rememberLink(post.ID, post.Link)

	if err := o.poster.Post(ctx, post); err != nil {
		return finish(StateFailed, fmt.Errorf("post %s: %w", post.ID, err))
	}
	if o.history != nil {
		if err := o.history.SavePost(ctx, post); err != nil {
			log.Printf("warn: pipeline: save history for %s: %v", post.Link, err)
		}
	}

	log.Printf("pipeline: %s done, posted %q (degraded=%v)", src.Name, article.Title, post.Degraded)
	return finish(StatePosted, nil)
}
