package collector

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const (
	feedMaxBodyBytes = 4 << 20 // 4MB
	feedErrBodyBytes = 16 << 10
)

// PageExtractor 抽象正文抽取，便于在测试中替换
type PageExtractor interface {
	ExtractPage(ctx context.Context, pageURL string, selectors []string, imageSelector string) (Page, error)
}

// FeedFetcher 拉取来源的 RSS/Atom，取最新一条并交给 PageExtractor 抽取全文
type FeedFetcher struct {
	client    *http.Client
	userAgent string
	parser    *gofeed.Parser
	extractor PageExtractor
}

func NewFeedFetcher(extractor PageExtractor, timeout time.Duration, userAgent string) *FeedFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &FeedFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		parser:    gofeed.NewParser(),
		extractor: extractor,
	}
}

// FetchLatest 等价于 LatestEntry + BuildArticle
func (f *FeedFetcher) FetchLatest(ctx context.Context, src Source) (Article, error) {
	entry, err := f.LatestEntry(ctx, src)
	if err != nil {
		return Article{}, err
	}
	return f.BuildArticle(ctx, src, entry)
}

// LatestEntry 拉取并解析订阅，返回第一条（最新）条目。
// 解析失败在本轮直接作为错误返回，不做重试。
func (f *FeedFetcher) LatestEntry(ctx context.Context, src Source) (FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return FeedEntry{}, &FetchError{URL: src.FeedURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return FeedEntry{}, &FetchError{URL: src.FeedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, feedErrBodyBytes))
		return FeedEntry{}, &FetchError{
			URL:        src.FeedURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	feed, err := f.parser.Parse(io.LimitReader(resp.Body, feedMaxBodyBytes))
	if err != nil {
		return FeedEntry{}, &ParseError{URL: src.FeedURL, Err: err}
	}
	if len(feed.Items) == 0 || feed.Items[0] == nil {
		return FeedEntry{}, &ParseError{URL: src.FeedURL, Err: ErrEmptyFeed}
	}

	return entryFromItem(feed.Items[0]), nil
}

// BuildArticle 对条目链接抽取全文。抽取结果为占位值时照常返回文章，由格式化层降级展示。
func (f *FeedFetcher) BuildArticle(ctx context.Context, src Source, entry FeedEntry) (Article, error) {
	page, err := f.extractor.ExtractPage(ctx, entry.Link, src.ContentSelectors, src.ImageSelector)
	if err != nil {
		return Article{}, err
	}

	summary := entry.Summary
	if summary == "" && page.Excerpt != "" {
		log.Printf("feed: %s entry has no description, using page excerpt", src.Name)
		summary = page.Excerpt
	}
	fullText := page.Text
	if fullText == "" {
		fullText = ExtractionFailedText
	}

	return Article{
		Title:       entry.Title,
		Summary:     summary,
		FullText:    fullText,
		MediaURL:    entry.MediaURL,
		MediaType:   entry.MediaType,
		SourceName:  src.Name,
		PublishDate: entry.PublishDate,
		SourceURL:   entry.Link,
	}, nil
}

func entryFromItem(it *gofeed.Item) FeedEntry {
	entry := FeedEntry{
		Title: NormalizeText(it.Title),
		Link:  strings.TrimSpace(it.Link),
	}

	// 优先使用简短的 description，其次才是完整 content
	desc := it.Description
	if strings.TrimSpace(desc) == "" {
		desc = it.Content
	}
	entry.Summary = NormalizeText(stripHTML(desc))

	switch {
	case it.PublishedParsed != nil:
		entry.PublishDate = *it.PublishedParsed
	case it.UpdatedParsed != nil:
		entry.PublishDate = *it.UpdatedParsed
	}

	entry.MediaURL, entry.MediaType = mediaFromItem(it)
	return entry
}

// mediaFromItem 优先 media:content（含 media:group 内的），其次 media:thumbnail。
// medium 明确为 image 时为 photo，否则视为 video；两者都没有则不设置。
func mediaFromItem(it *gofeed.Item) (string, MediaType) {
	media := it.Extensions["media"]
	if media == nil {
		return "", MediaNone
	}

	contents := media["content"]
	for _, g := range media["group"] {
		contents = append(contents, g.Children["content"]...)
	}
	if c, ok := firstWithURL(contents); ok {
		if strings.EqualFold(c.Attrs["medium"], "image") {
			return c.Attrs["url"], MediaPhoto
		}
		return c.Attrs["url"], MediaVideo
	}

	thumbs := media["thumbnail"]
	for _, g := range media["group"] {
		thumbs = append(thumbs, g.Children["thumbnail"]...)
	}
	if t, ok := firstWithURL(thumbs); ok {
		return t.Attrs["url"], MediaPhoto
	}
	return "", MediaNone
}

func firstWithURL(list []ext.Extension) (ext.Extension, bool) {
	for _, e := range list {
		if strings.TrimSpace(e.Attrs["url"]) != "" {
			return e, true
		}
	}
	return ext.Extension{}, false
}

// stripHTML 订阅里的 description 常带 HTML 标签，只保留文本
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
