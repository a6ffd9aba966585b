package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
)

const (
	defaultMinChars = 300
	defaultMaxChars = 20000
)

// 调用方的选择器之后依次尝试的通用容器，与 HTTP 抽取的兜底链一致
var fallbackSelectors = []string{"article", "main, [role=main], .article-body", "body"}

type extractRequest struct {
	URL       string   `json:"url"`
	Selectors []string `json:"selectors"`
	MinChars  int      `json:"minChars"`
	MaxChars  int      `json:"maxChars"`
}

type extractResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// normalize 补全默认值，返回 false 表示请求不可用
func (r *extractRequest) normalize() (string, bool) {
	r.URL = strings.TrimSpace(r.URL)
	if r.URL == "" {
		return "url is required", false
	}
	if !strings.HasPrefix(r.URL, "http://") && !strings.HasPrefix(r.URL, "https://") {
		return "url must be http(s)", false
	}
	if r.MinChars <= 0 {
		r.MinChars = defaultMinChars
	}
	if r.MaxChars <= 0 || r.MaxChars > defaultMaxChars {
		r.MaxChars = defaultMaxChars
	}
	return "", true
}

func main() {
	// 创建浏览器执行器与顶层上下文，整个进程复用一个 headless 实例
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// 预热浏览器，避免首个请求耗时过长
	if err := chromedp.Run(browserCtx); err != nil {
		log.Printf("warn: warmup chromedp failed: %v", err)
	}

	timeout := 20 * time.Second
	if d, err := time.ParseDuration(getEnv("RENDER_TIMEOUT", "20s")); err == nil && d > 0 {
		timeout = d
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/extract", extractHandler(func(ctx context.Context, req extractRequest) (string, error) {
		// 每个请求开一个新标签页，复用同一个浏览器进程
		tabCtx, cancelTab := chromedp.NewContext(browserCtx)
		defer cancelTab()
		tabCtx, cancel := context.WithTimeout(tabCtx, timeout)
		defer cancel()

		var text string
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(req.URL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(extractJS(req.Selectors, req.MinChars), &text),
		)
		return text, err
	}))

	addr := ":" + getEnv("PORT", "4000")
	log.Printf("browser-scraper listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("http server error: %v", err)
	}
}

type renderFunc func(ctx context.Context, req extractRequest) (string, error)

func extractHandler(render renderFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, extractResponse{OK: false, Error: "invalid json"})
			return
		}
		if msg, ok := req.normalize(); !ok {
			writeJSON(w, http.StatusBadRequest, extractResponse{OK: false, Error: msg})
			return
		}

		text, err := render(r.Context(), req)
		if err != nil {
			log.Printf("extract error: %v (url=%s)", err, req.URL)
			writeJSON(w, http.StatusOK, extractResponse{OK: false, Error: err.Error()})
			return
		}

		text = trimWhitespace(text)
		if utf8.RuneCountInString(text) <= req.MinChars {
			writeJSON(w, http.StatusOK, extractResponse{OK: false, Error: "content too short"})
			return
		}

		// rune 级截断，避免多字节字符被截断成半个
		rs := []rune(text)
		if len(rs) > req.MaxChars {
			text = string(rs[:req.MaxChars]) + "…"
		}

		writeJSON(w, http.StatusOK, extractResponse{OK: true, Text: text})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// extractJS 返回一段 JS：按顺序尝试选择器，取第一个正文长度超过 minChars 的容器。
// 全部不满足时返回最长的那个，由 Go 侧判断是否达标。
func extractJS(selectors []string, minChars int) string {
	all := make([]string, 0, len(selectors)+len(fallbackSelectors))
	for _, s := range selectors {
		if s = strings.TrimSpace(s); s != "" {
			all = append(all, s)
		}
	}
	all = append(all, fallbackSelectors...)
	list, _ := json.Marshal(all)
	minJSON, _ := json.Marshal(minChars)

	return `(function () {
  var selectors = ` + string(list) + `;
  var minChars = ` + string(minJSON) + `;
  var best = "";
  for (var i = 0; i < selectors.length; i++) {
    var el;
    try { el = document.querySelector(selectors[i]); } catch (e) { continue; }
    if (!el) continue;
    var clone = el.cloneNode(true);
    clone.querySelectorAll("script, style, noscript, template").forEach(function (n) { n.remove(); });
    var text = (clone.innerText || clone.textContent || "").trim();
    if (Array.from(text).length > minChars) return text;
    if (text.length > best.length) best = text;
  }
  return best;
})();`
}

func trimWhitespace(s string) string {
	// 简单的空白清理，避免过多连续空行
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}
