package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/LJTian/NotifyCast/internal/config"
	"github.com/LJTian/NotifyCast/internal/processor"
)

func testConfig() *config.Config {
	return &config.Config{
		ChannelName:      "Notifycast+",
		ChannelLink:      "https://t.me/Notifycast",
		CacheTTL:         24 * time.Hour,
		CacheNegativeTTL: time.Hour,
		CacheMaxEntries:  10,
		FetchTimeout:     time.Second,
		MinContentLength: 300,
		RotationSeed:     1,
	}
}

func TestBuildWithoutOptionalServices(t *testing.T) {
	var out bytes.Buffer
	a, err := Build(testConfig(), &out)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	defer a.Close()

	if a.Store != nil || a.Telegram != nil {
		t.Fatalf("optional services should be disabled")
	}
	if len(a.Sources) != 4 {
		t.Fatalf("expected default sources, got %d", len(a.Sources))
	}
	if st := a.Orchestrator.Stats(); st.Cursor != 1 || st.CurrentSource != "Al Jazeera" {
		t.Fatalf("seed not applied: %+v", st)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.CacheMaxEntries = 0
	if _, err := Build(cfg, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLogPoster(t *testing.T) {
	var out bytes.Buffer
	p := &LogPoster{W: &out}
	err := p.Post(context.Background(), processor.Post{
		ID:        "abc",
		Source:    "BBC",
		Text:      "<b>Title</b>",
		MediaURL:  "https://img.example/a.jpg",
		MediaType: collector.MediaPhoto,
		Actions:   []processor.Action{{Label: "Read Full News", ActionID: "rf:abc"}},
	})
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	for _, want := range []string{"post abc (BBC)", "[photo] https://img.example/a.jpg", "<b>Title</b>", "Read Full News -> rf:abc"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}
