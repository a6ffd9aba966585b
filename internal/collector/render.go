package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	renderMaxResponseBytes = 1 << 20 // 1MB
	renderClientTimeout    = 30 * time.Second
)

// RenderClient 调用 cmd/browser-scraper 的 /extract 接口，
// 用无头浏览器处理依赖 JS 渲染、普通抓取拿不到正文的页面
type RenderClient struct {
	endpoint string
	client   *http.Client
}

func NewRenderClient(baseURL string) *RenderClient {
	return &RenderClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/extract",
		client:   &http.Client{Timeout: renderClientTimeout},
	}
}

type renderRequest struct {
	URL       string   `json:"url"`
	Selectors []string `json:"selectors,omitempty"`
	MinChars  int      `json:"minChars"`
	MaxChars  int      `json:"maxChars"`
}

type renderResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func (r *RenderClient) Render(ctx context.Context, pageURL string, selectors []string, minChars int) (string, error) {
	payload, err := json.Marshal(renderRequest{
		URL:       pageURL,
		Selectors: selectors,
		MinChars:  minChars,
		MaxChars:  20000,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("render: unexpected status %d", resp.StatusCode)
	}

	var out renderResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, renderMaxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("render: decode response: %w", err)
	}
	if !out.OK {
		return "", errors.New("render: " + out.Error)
	}
	return out.Text, nil
}
