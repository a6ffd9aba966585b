package collector

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
)

const (
	// DefaultUserAgent 很多新闻站点会拒绝默认客户端标识，这里使用常见浏览器 UA
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	DefaultFetchTimeout     = 15 * time.Second
	DefaultMinContentLength = 300
	extractMaxBodyBytes     = 8 << 20 // 8MB
)

// genericSelectors 来源自带选择器都不达标时依次尝试的通用兜底链：
// 语义化 article 容器 → 主内容容器 → 整个 body
var genericSelectors = []string{
	"article",
	"main, [role=main], .article-body",
	"body",
}

// Renderer 可选的无头浏览器渲染服务，见 cmd/browser-scraper
type Renderer interface {
	Render(ctx context.Context, pageURL string, selectors []string, minChars int) (string, error)
}

type ExtractorConfig struct {
	Timeout   time.Duration
	UserAgent string
	MinLength int
	Renderer  Renderer
}

// Page 一次页面抽取的完整结果
type Page struct {
	Text     string `json:"text"`
	Selector string `json:"selector,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Rendered bool   `json:"rendered,omitempty"`
}

// ContentExtractor 抓取文章页面并按选择器顺序抽取正文
type ContentExtractor struct {
	timeout   time.Duration
	userAgent string
	minLength int
	renderer  Renderer
}

func NewContentExtractor(cfg ExtractorConfig) *ContentExtractor {
	e := &ContentExtractor{
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		minLength: cfg.MinLength,
		renderer:  cfg.Renderer,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultFetchTimeout
	}
	if e.userAgent == "" {
		e.userAgent = DefaultUserAgent
	}
	if e.minLength <= 0 {
		e.minLength = DefaultMinContentLength
	}
	return e
}

// Extract 返回正文文本；只有 HTTP 抓取本身失败才返回 *FetchError，
// 内容过短不是错误，返回 ExtractionFailedText。
func (e *ContentExtractor) Extract(ctx context.Context, pageURL string, selectors []string) (string, error) {
	page, err := e.ExtractPage(ctx, pageURL, selectors, "")
	if err != nil {
		return "", err
	}
	return page.Text, nil
}

// ExtractPage 与 Extract 相同，额外返回命中的选择器、readability 摘要与配图
func (e *ContentExtractor) ExtractPage(ctx context.Context, pageURL string, selectors []string, imageSelector string) (Page, error) {
	body, finalURL, err := e.fetch(ctx, pageURL)
	if err != nil {
		return Page{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, &ParseError{URL: pageURL, Err: err}
	}
	// 脚本与样式的文本不属于正文
	doc.Find("script, style, noscript, template").Remove()

	page := Page{
		Excerpt:  pageExcerpt(body, finalURL),
		ImageURL: pageImage(doc, imageSelector, finalURL),
	}

	if text, sel, ok := e.selectText(doc, selectors); ok {
		page.Text, page.Selector = text, sel
		return page, nil
	}
	if text, sel, ok := e.selectText(doc, genericSelectors); ok {
		page.Text, page.Selector = text, sel
		return page, nil
	}

	if e.renderer != nil {
		text, err := e.renderer.Render(ctx, pageURL, selectors, e.minLength)
		switch {
		case err != nil:
			log.Printf("warn: extract: render fallback %s: %v", pageURL, err)
		case textLength(NormalizeText(text)) > e.minLength:
			page.Text, page.Rendered = NormalizeText(text), true
			return page, nil
		}
	}

	log.Printf("extract: no selector cleared %d chars for %s", e.minLength, pageURL)
	page.Text = ExtractionFailedText
	return page, nil
}

// selectText 依次尝试选择器，取所有匹配节点拼接后的文本，返回第一个超过阈值的结果
func (e *ContentExtractor) selectText(doc *goquery.Document, selectors []string) (string, string, bool) {
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		text := NormalizeText(doc.Find(sel).Text())
		if textLength(text) > e.minLength {
			return text, sel, true
		}
	}
	return "", "", false
}

func (e *ContentExtractor) fetch(ctx context.Context, pageURL string) ([]byte, *url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, &FetchError{URL: pageURL, Err: err}
	}

	c := colly.NewCollector(
		colly.UserAgent(e.userAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(extractMaxBodyBytes),
	)
	c.SetRequestTimeout(e.timeout)
	c.DetectCharset = true

	var (
		body     []byte
		finalURL *url.URL
		status   int
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		finalURL = r.Request.URL
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(pageURL); err != nil {
		fe := &FetchError{URL: pageURL, Err: err}
		if status >= 300 {
			fe.StatusCode = status
		}
		return nil, nil, fe
	}
	if body == nil {
		return nil, nil, &FetchError{URL: pageURL, Err: errors.New("empty response")}
	}
	return body, finalURL, nil
}

func pageExcerpt(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return ""
	}
	return NormalizeText(article.Excerpt)
}

func pageImage(doc *goquery.Document, sel string, base *url.URL) string {
	if strings.TrimSpace(sel) == "" {
		return ""
	}
	node := doc.Find(sel).First()
	src, ok := node.Attr("src")
	if !ok {
		// 选择器可能指向容器而不是 img 本身
		src, ok = node.Find("img").First().Attr("src")
	}
	if !ok || src == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
