package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/LJTian/NotifyCast/internal/processor"
)

type call struct {
	Method string
	Body   map[string]any
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []call
	// 按调用顺序返回的状态码，用完后返回 200
	statuses []int
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// 路径形如 /bot<token>/<method>
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "botTOKEN" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("bad json body: %v", err)
		}

		f.mu.Lock()
		f.calls = append(f.calls, call{Method: parts[len(parts)-1], Body: body})
		status := http.StatusOK
		if len(f.statuses) > 0 {
			status = f.statuses[0]
			f.statuses = f.statuses[1:]
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch status {
		case http.StatusOK:
			_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
		case http.StatusTooManyRequests:
			_, _ = io.WriteString(w, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":0}}`)
		default:
			_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
		}
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewClient("TOKEN").WithAPI(srv.URL)
}

func TestPostPhotoWithKeyboard(t *testing.T) {
	api := &fakeAPI{}
	poster := NewChannelPoster(newTestClient(t, api), "@chan")

	err := poster.Post(context.Background(), processor.Post{
		ID:        "abc",
		Text:      "<b>Title</b>",
		ParseMode: processor.ParseModeHTML,
		MediaURL:  "https://img.example/a.jpg",
		MediaType: collector.MediaPhoto,
		Actions:   []processor.Action{{Label: "Read Full News", ActionID: "rf:abc"}},
	})
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if len(api.calls) != 1 || api.calls[0].Method != "sendPhoto" {
		t.Fatalf("calls = %+v", api.calls)
	}
	body := api.calls[0].Body
	if body["chat_id"] != "@chan" || body["photo"] != "https://img.example/a.jpg" || body["caption"] != "<b>Title</b>" || body["parse_mode"] != "HTML" {
		t.Fatalf("unexpected body: %v", body)
	}
	kb := body["reply_markup"].(map[string]any)["inline_keyboard"].([]any)
	btn := kb[0].([]any)[0].(map[string]any)
	if btn["text"] != "Read Full News" || btn["callback_data"] != "rf:abc" {
		t.Fatalf("unexpected button: %v", btn)
	}
}

func TestPostMediaTypes(t *testing.T) {
	cases := []struct {
		media collector.MediaType
		want  string
	}{
		{collector.MediaNone, "sendMessage"},
		{collector.MediaPhoto, "sendPhoto"},
		{collector.MediaVideo, "sendVideo"},
	}
	for _, c := range cases {
		api := &fakeAPI{}
		poster := NewChannelPoster(newTestClient(t, api), "@chan")
		if err := poster.Post(context.Background(), processor.Post{ID: "x", Text: "t", MediaURL: "https://m", MediaType: c.media}); err != nil {
			t.Fatalf("%q: Post error: %v", c.media, err)
		}
		if api.calls[0].Method != c.want {
			t.Fatalf("media %q sent via %s, want %s", c.media, api.calls[0].Method, c.want)
		}
	}
}

func setMinRetryWait(t *testing.T, d time.Duration) {
	t.Helper()
	old := minRetryWait
	minRetryWait = d
	t.Cleanup(func() { minRetryWait = old })
}

func TestRateLimitedRetry(t *testing.T) {
	setMinRetryWait(t, 10*time.Millisecond)
	api := &fakeAPI{statuses: []int{http.StatusTooManyRequests}}
	c := newTestClient(t, api)

	if err := c.SendMessage(context.Background(), "@chan", "hi", "", true, nil); err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if len(api.calls) != 2 {
		t.Fatalf("expected a retry, got %d calls", len(api.calls))
	}
	if api.calls[1].Body["link_preview_options"].(map[string]any)["is_disabled"] != true {
		t.Fatalf("link preview should be disabled: %v", api.calls[1].Body)
	}
}

func TestRateLimitedGivesUpWithoutFinalWait(t *testing.T) {
	// retry_after 为 0 时按最短等待处理
	setMinRetryWait(t, 300*time.Millisecond)
	api := &fakeAPI{statuses: []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests}}
	c := newTestClient(t, api)

	start := time.Now()
	err := c.SendMessage(context.Background(), "@chan", "hi", "", true, nil)
	elapsed := time.Since(start)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 *APIError, got %v", err)
	}
	if len(api.calls) != sendRetryLimit {
		t.Fatalf("calls = %d, want %d", len(api.calls), sendRetryLimit)
	}
	// 两次重试之间各等一次，最后一次失败后不再等待
	if elapsed < 600*time.Millisecond || elapsed >= 850*time.Millisecond {
		t.Fatalf("elapsed %s, want two waits of 300ms", elapsed)
	}
}

func TestAPIErrorNotRetried(t *testing.T) {
	api := &fakeAPI{statuses: []int{http.StatusBadRequest}}
	c := newTestClient(t, api)

	err := c.AnswerCallbackQuery(context.Background(), "q1", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Description, "chat not found") {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if len(api.calls) != 1 {
		t.Fatalf("400 should not be retried, got %d calls", len(api.calls))
	}
}

func TestReplySendsChunksInOrder(t *testing.T) {
	api := &fakeAPI{}
	poster := NewChannelPoster(newTestClient(t, api), "@chan")

	msgs := []processor.Message{{Text: "part 1"}, {Text: "part 2"}, {Text: "part 3"}}
	if err := poster.Reply(context.Background(), 42, msgs); err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if len(api.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(api.calls))
	}
	for i, c := range api.calls {
		if c.Body["chat_id"] != "42" || c.Body["text"] != msgs[i].Text {
			t.Fatalf("call %d = %v", i, c.Body)
		}
	}
}

func TestKeyboardEmpty(t *testing.T) {
	if Keyboard() != nil {
		t.Fatalf("empty keyboard should be nil")
	}
}

func TestReplyWithButtonsAndSendPost(t *testing.T) {
	api := &fakeAPI{}
	poster := NewChannelPoster(newTestClient(t, api), "@chan")

	msg := processor.Message{Text: "sources", Actions: []processor.Action{{Label: "BBC", ActionID: "ls:BBC"}}}
	if err := poster.Reply(context.Background(), 7, []processor.Message{msg}); err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	kb := api.calls[0].Body["reply_markup"].(map[string]any)["inline_keyboard"].([]any)
	if btn := kb[0].([]any)[0].(map[string]any); btn["callback_data"] != "ls:BBC" {
		t.Fatalf("unexpected button: %v", btn)
	}

	err := poster.SendPost(context.Background(), 7, processor.Post{
		ID:        "abc",
		Text:      "news",
		MediaURL:  "https://img.example/a.jpg",
		MediaType: collector.MediaPhoto,
	})
	if err != nil {
		t.Fatalf("SendPost error: %v", err)
	}
	if c := api.calls[1]; c.Method != "sendPhoto" || c.Body["chat_id"] != "7" {
		t.Fatalf("unexpected call: %+v", c)
	}
}
