package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/LJTian/NotifyCast/internal/processor"
)

func TestToValidUTF8(t *testing.T) {
	got := toValidUTF8("ok\xffend")
	if got != "ok\uFFFDend" {
		t.Fatalf("toValidUTF8 = %q", got)
	}
}

func TestTruncateRunesDB(t *testing.T) {
	if got := truncateRunesDB("  héllo wörld  ", 5); got != "héllo" {
		t.Fatalf("truncateRunesDB = %q", got)
	}
	if got := truncateRunesDB("abc", 0); got != "" {
		t.Fatalf("limit 0 should give empty, got %q", got)
	}
	if got := truncateRunesDB("   ", 10); got != "" {
		t.Fatalf("blank should give empty, got %q", got)
	}
}

func TestRecordFromPost(t *testing.T) {
	pub := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	p := processor.Post{
		ID:          "abc",
		Text:        strings.Repeat("x", 3000),
		ParseMode:   processor.ParseModeHTML,
		MediaURL:    "https://img.example/a.jpg",
		MediaType:   collector.MediaPhoto,
		Actions:     []processor.Action{{Label: "Read Full News", ActionID: "rf:abc"}},
		Title:       "Title",
		Link:        "https://example.com/a",
		Source:      "BBC",
		PublishedAt: pub,
	}

	rec := recordFromPost(p)
	if rec.ID != "abc" || rec.Link != p.Link || rec.Source != "BBC" || rec.MediaType != "photo" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if n := len([]rune(rec.Text)); n != 2048 {
		t.Fatalf("text should be capped at 2048 runes, got %d", n)
	}
	if !rec.PublishedAt.Equal(pub) {
		t.Fatalf("published at = %v", rec.PublishedAt)
	}
	if rec.ExtraData["mediaUrl"] != p.MediaURL || rec.ExtraData["parseMode"] != "HTML" {
		t.Fatalf("extra data = %v", rec.ExtraData)
	}
}

func TestListCacheKey(t *testing.T) {
	if got := listCacheKey("", 20); got != "posts:list::20" {
		t.Fatalf("listCacheKey = %q", got)
	}
}
