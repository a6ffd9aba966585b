package collector

import (
	"strings"
	"time"
)

// MediaType 描述条目附带的媒体类型
type MediaType string

const (
	MediaNone  MediaType = ""
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
)

// ExtractionFailedText 正文抽取失败时使用的占位文本。
// 抽取失败是常态而非异常，下游格式化统一按该值判断降级展示。
const ExtractionFailedText = "Content extraction failed. Please visit the original article."

// IsExtractionFailed 判断一段正文是否为抽取失败的占位值
func IsExtractionFailed(text string) bool {
	return text == "" || text == ExtractionFailedText
}

// Source 描述一个新闻源：订阅地址 + 正文选择器，启动时加载后不可变，以 Name 作为唯一标识
type Source struct {
	Name             string   `json:"name"`
	FeedURL          string   `json:"feedUrl"`
	ContentSelectors []string `json:"contentSelectors"`
	ImageSelector    string   `json:"imageSelector,omitempty"`
	// Domains 用于按文章链接反查来源，决定按需抓取时使用哪组选择器
	Domains []string `json:"domains,omitempty"`
}

// MatchesHost 判断 host 是否属于该来源（支持子域名）
func (s Source) MatchesHost(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, d := range s.Domains {
		d = strings.ToLower(strings.TrimPrefix(d, "www."))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// FeedEntry 一次抓取得到的订阅条目，仅在构造 Article 时使用
type FeedEntry struct {
	Title       string
	Link        string
	Summary     string
	PublishDate time.Time
	MediaURL    string
	MediaType   MediaType
}

// Article 流水线产出的文章，FullText 永不为空：抽取失败时为 ExtractionFailedText
type Article struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	FullText    string    `json:"fullText"`
	MediaURL    string    `json:"mediaUrl,omitempty"`
	MediaType   MediaType `json:"mediaType,omitempty"`
	SourceName  string    `json:"source"`
	PublishDate time.Time `json:"publishDate"`
	SourceURL   string    `json:"url"`
}

// ExtractionFailed 正文是否抽取失败
func (a Article) ExtractionFailed() bool {
	return IsExtractionFailed(a.FullText)
}
