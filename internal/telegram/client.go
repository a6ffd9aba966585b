package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAPI     = "https://api.telegram.org"
	sendRetryLimit = 3
	maxRetryWait   = 30 * time.Second
)

// minRetryWait retry_after 缺失或为 0 时的最短等待
var minRetryWait = time.Second

// APIError Bot API 返回 ok=false 或非 2xx
type APIError struct {
	Method      string
	StatusCode  int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

type Client struct {
	token string
	api   string
	httpc *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token: token,
		api:   DefaultAPI,
		httpc: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithAPI 替换 API 地址，测试时指向本地服务
func (c *Client) WithAPI(base string) *Client {
	c.api = strings.TrimRight(base, "/")
	return c
}

// Keyboard 每个按钮单独一行
func Keyboard(buttons ...InlineKeyboardButton) *ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	kb := make(InlineKeyboard, 0, len(buttons))
	for _, b := range buttons {
		kb = append(kb, []InlineKeyboardButton{b})
	}
	return &ReplyMarkup{InlineKeyboard: kb}
}

func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string, disablePreview bool, markup *ReplyMarkup) error {
	return c.call(ctx, "sendMessage", sendMessage{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          parseMode,
		LinkPreviewOptions: linkPreviewOptions{IsDisabled: disablePreview},
		ReplyMarkup:        markup,
	})
}

func (c *Client) SendPhoto(ctx context.Context, chatID, photoURL, caption, parseMode string, markup *ReplyMarkup) error {
	return c.call(ctx, "sendPhoto", sendMedia{
		ChatID:      chatID,
		Photo:       photoURL,
		Caption:     caption,
		ParseMode:   parseMode,
		ReplyMarkup: markup,
	})
}

func (c *Client) SendVideo(ctx context.Context, chatID, videoURL, caption, parseMode string, markup *ReplyMarkup) error {
	return c.call(ctx, "sendVideo", sendMedia{
		ChatID:      chatID,
		Video:       videoURL,
		Caption:     caption,
		ParseMode:   parseMode,
		ReplyMarkup: markup,
	})
}

// AnswerCallbackQuery 让客户端停止按钮上的加载动画
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallback{CallbackQueryID: queryID, Text: text})
}

// call 发送请求，遇到 429 时按 retry_after 等待后重试
func (c *Client) call(ctx context.Context, method string, args any) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = c.do(ctx, method, args)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == sendRetryLimit {
			return err
		}
		wait := min(max(apiErr.RetryAfter, minRetryWait), maxRetryWait)
		log.Printf("warn: telegram: %s rate limited, waiting %s", method, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) do(ctx context.Context, method string, args any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("telegram: encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api+"/bot"+c.token+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		// 错误信息中可能带有 token，统一替换掉
		return errors.New(strings.ReplaceAll(err.Error(), c.token, "[token]"))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w", method, err)
	}
	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK || !ar.OK {
		desc := ar.Description
		if desc == "" {
			desc = strconv.Quote(strings.TrimSpace(string(raw)))
		}
		return &APIError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			Description: desc,
			RetryAfter:  time.Duration(ar.Parameters.RetryAfter) * time.Second,
		}
	}
	return nil
}
