package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"html"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LJTian/NotifyCast/internal/callback"
	"github.com/LJTian/NotifyCast/internal/collector"
)

const (
	ParseModeHTML = "HTML"

	titleLimit    = 200
	summaryLimit  = 300
	leadLimit     = 200
	captionLimit  = 1024 // Telegram 图片/视频说明文字上限
	messageLimit  = 4096
	fullTextChunk = 4000

	readFullLabel = "Read Full News"
)

// Action 内联按钮：展示文案 + 回调载荷
type Action struct {
	Label    string `json:"label"`
	ActionID string `json:"actionId"`
}

// Post 交给发送端的频道帖子结构，格式化层只产出数据，不直接调用发送接口
type Post struct {
	ID             string              `json:"id"`
	Text           string              `json:"text"`
	ParseMode      string              `json:"parseMode"`
	MediaURL       string              `json:"mediaUrl,omitempty"`
	MediaType      collector.MediaType `json:"mediaType,omitempty"`
	Actions        []Action            `json:"inlineActions"`
	DisablePreview bool                `json:"disablePreview"`

	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	Degraded    bool      `json:"degraded"`
}

// Message 发给单个用户的一条回复
type Message struct {
	Text      string   `json:"text"`
	ParseMode string   `json:"parseMode,omitempty"`
	Actions   []Action `json:"actions,omitempty"`
}

// Formatter 把 Article 格式化为频道帖子，以及把全文结果格式化为用户回复
type Formatter struct {
	channelName string
	channelLink string
}

func NewFormatter(channelName, channelLink string) *Formatter {
	return &Formatter{channelName: channelName, channelLink: channelLink}
}

// ChannelPost 正文抽取失败时不展示占位文本，改为提示直接访问原文链接
func (f *Formatter) ChannelPost(a collector.Article) Post {
	p := Post{
		ID:          PostID(a.SourceURL),
		ParseMode:   ParseModeHTML,
		MediaURL:    a.MediaURL,
		MediaType:   a.MediaType,
		Title:       a.Title,
		Link:        a.SourceURL,
		Source:      a.SourceName,
		PublishedAt: a.PublishDate,
		Degraded:    a.ExtractionFailed(),
	}
	if p.MediaURL == "" {
		p.MediaType = collector.MediaNone
	}

	p.Text = f.fitText(a, p.ID, p.MediaURL != "")
	if p.Text == "" {
		// 说明文字怎么压缩都超限（通常是链接过长），改为不带媒体的纯文本帖子
		log.Printf("warn: processor: post %s caption too long, sending without media", p.ID)
		p.MediaURL, p.MediaType = "", collector.MediaNone
		p.Text = f.fitText(a, p.ID, false)
	}

	if data, err := callback.Encode(callback.Action{Kind: callback.KindReadFullArticle, Arg: p.ID}); err == nil {
		p.Actions = []Action{{Label: readFullLabel, ActionID: data}}
	}
	return p
}

// textVariant 依次放宽的正文版本：先去掉导语，再逐步缩短摘要
type textVariant struct {
	lead    bool
	summary int
}

var textVariants = []textVariant{
	{lead: true, summary: summaryLimit},
	{lead: false, summary: summaryLimit},
	{lead: false, summary: summaryLimit / 2},
	{lead: false, summary: 0},
}

// fitText 返回第一个不超过上限的版本；带媒体时都超限则返回空串
func (f *Formatter) fitText(a collector.Article, id string, withMedia bool) string {
	limit := messageLimit
	if withMedia {
		limit = captionLimit
	}
	var text string
	for _, v := range textVariants {
		text = f.channelText(a, v)
		if utf8.RuneCountInString(text) <= limit {
			return text
		}
	}
	if withMedia {
		return ""
	}
	log.Printf("warn: processor: post %s exceeds %d chars", id, limit)
	return text
}

func (f *Formatter) channelText(a collector.Article, v textVariant) string {
	var b strings.Builder
	title := strings.TrimSpace(a.Title)
	if title == "" {
		title = a.SourceName
	}
	fmt.Fprintf(&b, "📰 <b>%s</b>\n", html.EscapeString(truncateRunes(title, titleLimit)))

	if summary := strings.TrimSpace(a.Summary); summary != "" && v.summary > 0 {
		fmt.Fprintf(&b, "\n%s\n", html.EscapeString(truncateRunes(summary, v.summary)))
	}

	link := html.EscapeString(a.SourceURL)
	if a.ExtractionFailed() {
		fmt.Fprintf(&b, "\nFull text is not available here, please visit the link: %s\n", link)
	} else if v.lead {
		if lead := leadSentence(a.FullText); lead != "" && !strings.HasPrefix(a.Summary, lead) {
			fmt.Fprintf(&b, "\n• %s\n", html.EscapeString(truncateRunes(lead, leadLimit)))
		}
	}

	b.WriteString("\n")
	source := a.SourceName
	if source == "" {
		source = "Source"
	}
	fmt.Fprintf(&b, "🔍 <a href=\"%s\">%s</a>", link, html.EscapeString(source))
	if f.channelLink != "" {
		fmt.Fprintf(&b, "  |  <a href=\"%s\">%s</a>", html.EscapeString(f.channelLink), html.EscapeString(f.channelName))
	}
	if !a.PublishDate.IsZero() {
		fmt.Fprintf(&b, "\n📅 Published: %s", a.PublishDate.UTC().Format("2 Jan 2006"))
	}
	return b.String()
}

// FullArticleMessages 全文按 4000 字符分片发送；抽取失败则只回复原文链接
func (f *Formatter) FullArticleMessages(url, text string) []Message {
	if collector.IsExtractionFailed(text) {
		return []Message{{
			Text: "Sorry, we couldn't extract the full article text. Please visit the original link to read the full story: " + url,
		}}
	}
	out := []Message{{Text: "📰 <b>Full Article</b>", ParseMode: ParseModeHTML}}
	for _, chunk := range splitRunes(text, fullTextChunk) {
		out = append(out, Message{Text: chunk})
	}
	return out
}

// DegradedMessages 网络层失败时的降级回复
func (f *Formatter) DegradedMessages(url string) []Message {
	return []Message{{Text: "Unable to fetch the full article right now. Please visit: " + url}}
}

// WelcomeMessage 私聊 /start 的欢迎语
func (f *Formatter) WelcomeMessage() Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome to %s News Bot! 🌟\n\n", html.EscapeString(f.channelName))
	b.WriteString("I can help you stay updated with the latest news from various trusted sources.\n\n")
	b.WriteString("Available commands:\n/latest - Get the latest news\n/sources - List all news sources\n")
	if f.channelLink != "" {
		fmt.Fprintf(&b, "\nYou can also find me on <a href=\"%s\">%s</a>!", html.EscapeString(f.channelLink), html.EscapeString(f.channelName))
	}
	return Message{Text: b.String(), ParseMode: ParseModeHTML}
}

// SourcesMessage 列出当前配置的新闻源，每个来源一个按钮，点击后查看该来源的最新新闻
func (f *Formatter) SourcesMessage(sources []collector.Source) Message {
	var b strings.Builder
	b.WriteString("<b>News sources</b>\n")
	msg := Message{ParseMode: ParseModeHTML}
	for i, s := range sources {
		fmt.Fprintf(&b, "\n%d. %s", i+1, html.EscapeString(s.Name))
		data, err := callback.Encode(callback.Action{Kind: callback.KindLatestFromSource, Arg: s.Name})
		if err != nil {
			// 名称过长放不进 callback_data，只列出不给按钮
			continue
		}
		msg.Actions = append(msg.Actions, Action{Label: s.Name, ActionID: data})
	}
	b.WriteString("\n\nSelect a news source to see its latest story.")
	msg.Text = b.String()
	return msg
}

// PostID 以链接的 sha1 作为帖子 ID，同时用作回调参数
func PostID(url string) string {
	return hashURL(url)
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// leadSentence 取正文第一句作为导语
func leadSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ". "); i > 0 {
		return text[:i+1]
	}
	return text
}

// truncateRunes 按 rune 截断，超出时追加省略号
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return strings.TrimSpace(string(rs[:limit])) + "…"
}

// splitRunes 按 rune 切片，避免多字节字符被截成两半
func splitRunes(s string, size int) []string {
	rs := []rune(s)
	if len(rs) == 0 {
		return nil
	}
	out := make([]string, 0, len(rs)/size+1)
	for len(rs) > size {
		out = append(out, string(rs[:size]))
		rs = rs[size:]
	}
	return append(out, string(rs))
}
