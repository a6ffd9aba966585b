package pipeline

import (
	"context"
	"errors"
	"log"
	"net/url"

	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/LJTian/NotifyCast/internal/processor"
)

// ResolutionStatus 按需全文请求的结果类型
type ResolutionStatus string

const (
	// ResolutionFound 拿到了正文
	ResolutionFound ResolutionStatus = "found"
	// ResolutionUnavailable 页面可访问但抽取不到足够正文
	ResolutionUnavailable ResolutionStatus = "unavailable"
	// ResolutionDegraded 网络层失败，只能给出原文链接
	ResolutionDegraded ResolutionStatus = "degraded"
)

var errInvalidURL = errors.New("pipeline: url must be absolute http(s)")

// Resolution 按需全文请求的结果，调用方总能据此给用户一个答复
type Resolution struct {
	URL    string           `json:"url"`
	Status ResolutionStatus `json:"status"`
	Text   string           `json:"text,omitempty"`
	Cached bool             `json:"cached"`
	Shared bool             `json:"shared"`
	Error  string           `json:"error,omitempty"`
}

// ResolveFullArticle 先查缓存；未命中时抽取正文并写回缓存（抽取失败的占位值用较短 TTL）。
// 同一 URL 的并发请求合并为一次抓取，后到的调用方等待首个调用方的结果。
// 网络层失败不写缓存，返回降级结果。
func (o *Orchestrator) ResolveFullArticle(ctx context.Context, rawURL string) Resolution {
	if !validArticleURL(rawURL) {
		return Resolution{URL: rawURL, Status: ResolutionDegraded, Error: errInvalidURL.Error()}
	}

	if text, ok := o.cache.Get(rawURL); ok {
		return textResolution(rawURL, text, true)
	}

	v, err, shared := o.group.Do(rawURL, func() (any, error) {
		// 可能刚被前一个 flight 或定时路径写入
		if text, ok := o.cache.Peek(rawURL); ok {
			return text, nil
		}

		// 合并后的抓取不应因为某一个调用方取消而失败，只受抓取超时约束
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.FetchTimeout)
		defer cancel()

		src, _ := o.SourceForURL(rawURL)
		o.fetches.Add(1)
		text, err := o.extractor.Extract(fctx, rawURL, src.ContentSelectors)
		if err != nil {
			return "", err
		}
		o.storeText(rawURL, text)
		return text, nil
	})
	if err != nil {
		log.Printf("pipeline: resolve %s: %v", rawURL, err)
		return Resolution{URL: rawURL, Status: ResolutionDegraded, Shared: shared, Error: err.Error()}
	}

	res := textResolution(rawURL, v.(string), false)
	res.Shared = shared
	return res
}

// Reply 把结果格式化为发给用户的消息
func (o *Orchestrator) Reply(res Resolution) []processor.Message {
	if res.Status == ResolutionDegraded {
		return o.formatter.DegradedMessages(res.URL)
	}
	return o.formatter.FullArticleMessages(res.URL, res.Text)
}

// storeText 正常正文使用长 TTL，抽取失败的占位值使用短 TTL，避免反复请求已知无法抽取的页面
func (o *Orchestrator) storeText(link, text string) {
	if link == "" {
		return
	}
	ttl := o.opts.PositiveTTL
	if collector.IsExtractionFailed(text) {
		text = collector.ExtractionFailedText
		ttl = o.opts.NegativeTTL
	}
	o.cache.Set(link, text, ttl)
}

func textResolution(link, text string, cached bool) Resolution {
	if collector.IsExtractionFailed(text) {
		return Resolution{URL: link, Status: ResolutionUnavailable, Cached: cached}
	}
	return Resolution{URL: link, Status: ResolutionFound, Text: text, Cached: cached}
}

func validArticleURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
