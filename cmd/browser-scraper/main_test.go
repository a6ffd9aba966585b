package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func post(t *testing.T, h http.Handler, body string) (int, extractResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(body)))
	var resp extractResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json response %q: %v", w.Body.String(), err)
	}
	return w.Code, resp
}

func TestExtractHandlerPassesSelectors(t *testing.T) {
	var got extractRequest
	h := extractHandler(func(ctx context.Context, req extractRequest) (string, error) {
		got = req
		return strings.Repeat("word ", 100), nil
	})

	code, resp := post(t, h, `{"url":"https://example.com/a","selectors":[".story"],"minChars":300}`)
	if code != http.StatusOK || !resp.OK {
		t.Fatalf("code=%d resp=%+v", code, resp)
	}
	if got.URL != "https://example.com/a" || len(got.Selectors) != 1 || got.MinChars != 300 || got.MaxChars != defaultMaxChars {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestExtractHandlerShortContent(t *testing.T) {
	h := extractHandler(func(ctx context.Context, req extractRequest) (string, error) {
		return "too short", nil
	})
	_, resp := post(t, h, `{"url":"https://example.com/a"}`)
	if resp.OK || resp.Error != "content too short" {
		t.Fatalf("unexpected resp: %+v", resp)
	}
}

func TestExtractHandlerTruncates(t *testing.T) {
	h := extractHandler(func(ctx context.Context, req extractRequest) (string, error) {
		return strings.Repeat("é", 50), nil
	})
	_, resp := post(t, h, `{"url":"https://example.com/a","minChars":10,"maxChars":20}`)
	if !resp.OK || resp.Text != strings.Repeat("é", 20)+"…" {
		t.Fatalf("unexpected resp: %+v", resp)
	}
}

func TestExtractHandlerErrors(t *testing.T) {
	h := extractHandler(func(ctx context.Context, req extractRequest) (string, error) {
		return "", errors.New("navigation failed")
	})

	if code, _ := post(t, h, `{`); code != http.StatusBadRequest {
		t.Fatalf("invalid json code = %d", code)
	}
	if code, _ := post(t, h, `{"url":"ftp://example.com"}`); code != http.StatusBadRequest {
		t.Fatalf("bad scheme code = %d", code)
	}
	code, resp := post(t, h, `{"url":"https://example.com/a"}`)
	if code != http.StatusOK || resp.OK || resp.Error != "navigation failed" {
		t.Fatalf("code=%d resp=%+v", code, resp)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/extract", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET code = %d", w.Code)
	}
}

func TestExtractJSEmbedsSelectors(t *testing.T) {
	js := extractJS([]string{` .story `, "", `div[data-x="1"]`}, 300)
	if !strings.Contains(js, `[".story","div[data-x=\"1\"]","article","main, [role=main], .article-body","body"]`) {
		t.Fatalf("selectors not embedded correctly:\n%s", js)
	}
	if !strings.Contains(js, "var minChars = 300;") {
		t.Fatalf("min chars not embedded:\n%s", js)
	}
}

func TestTrimWhitespace(t *testing.T) {
	if got := trimWhitespace("\r\n a\r\n\n\n\nb \n"); got != "a\n\nb" {
		t.Fatalf("trimWhitespace = %q", got)
	}
}
