package pipeline

import (
	"context"
	"fmt"

	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/LJTian/NotifyCast/internal/processor"
)

// LatestPost 取某个来源最新一条新闻并格式化，供用户私聊查看；不发到频道，也不移动游标。
// name 为空时使用当前轮转到的来源。同一来源的并发请求合并为一次抓取。
func (o *Orchestrator) LatestPost(ctx context.Context, name string) (processor.Post, error) {
	src := o.rotator.Current()
	if name != "" {
		var ok bool
		if src, ok = o.rotator.Lookup(name); !ok {
			return processor.Post{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
	}

	v, err, _ := o.group.Do("latest:"+src.Name, func() (any, error) {
		// 订阅源和正文各一次抓取
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*o.opts.FetchTimeout)
		defer cancel()

		entry, err := o.feeds.LatestEntry(fctx, src)
		if err != nil {
			return nil, err
		}
		article, err := o.feeds.BuildArticle(fctx, src, entry)
		if err != nil {
			return nil, err
		}
		o.storeText(article.SourceURL, article.FullText)
		return article, nil
	})
	if err != nil {
		return processor.Post{}, fmt.Errorf("pipeline: latest from %s: %w", src.Name, err)
	}

	post := o.formatter.ChannelPost(v.(collector.Article))
	o.rememberLink(post.ID, post.Link)
	return post, nil
}
