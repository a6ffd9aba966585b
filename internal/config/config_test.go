package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/google/go-cmp/cmp"
)

func TestGetEnvWithDefault(t *testing.T) {
	const key = "TEST_APP_PORT"

	// 环境变量未设置时，应该返回默认值
	_ = os.Unsetenv(key)
	if got := getEnv(key, "9000"); got != "9000" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "9000")
	}

	// 环境变量设置后，应优先返回环境变量
	t.Setenv(key, "8080")
	if got := getEnv(key, "9000"); got != "8080" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "8080")
	}
}

func TestGetEnvDuration(t *testing.T) {
	const key = "TEST_CACHE_TTL"
	cases := []struct {
		val  string
		want time.Duration
	}{
		{"", time.Hour},
		{"90m", 90 * time.Minute},
		{"86400", 24 * time.Hour},
		{"soon", time.Hour},
	}
	for _, c := range cases {
		t.Setenv(key, c.val)
		if got := getEnvDuration(key, time.Hour); got != c.want {
			t.Fatalf("getEnvDuration(%q) = %s, want %s", c.val, got, c.want)
		}
	}
}

func TestLoadReadsPipelineSettings(t *testing.T) {
	t.Setenv("APP_PORT", "1234")
	t.Setenv("CHANNEL_ID", "@test")
	t.Setenv("CACHE_MAX_ENTRIES", "50")
	t.Setenv("FETCH_TIMEOUT", "10s")
	t.Setenv("STARTUP_RUN_DELAY", "30s")

	cfg := Load()
	if cfg.AppPort != "1234" || cfg.ChannelID != "@test" {
		t.Fatalf("port/channel not loaded correctly: %+v", cfg)
	}
	if cfg.CacheMaxEntries != 50 || cfg.FetchTimeout != 10*time.Second {
		t.Fatalf("cache/timeout not loaded correctly: %+v", cfg)
	}
	if cfg.StartupRunDelay != 30*time.Second {
		t.Fatalf("startup delay = %s, want 30s", cfg.StartupRunDelay)
	}
	if cfg.MinContentLength != 300 || cfg.CacheTTL != 24*time.Hour || cfg.CacheNegativeTTL != time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	cfg.MinContentLength = 0
	cfg.CacheTTL = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestStartupRunDelayDefaultsOff(t *testing.T) {
	t.Setenv("STARTUP_RUN_DELAY", "")
	cfg := Load()
	if cfg.StartupRunDelay != 0 {
		t.Fatalf("startup delay = %s, want 0", cfg.StartupRunDelay)
	}

	cfg.StartupRunDelay = -time.Minute
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "STARTUP_RUN_DELAY") {
		t.Fatalf("Validate() = %v, want STARTUP_RUN_DELAY error", err)
	}
}

func TestDefaultSourcesAreValid(t *testing.T) {
	if err := ValidateSources(DefaultSources()); err != nil {
		t.Fatalf("default sources invalid: %v", err)
	}
	src, err := LoadSources("")
	if err != nil || len(src) != 4 || src[0].Name != "BBC" {
		t.Fatalf("LoadSources(\"\") = %v, %v", src, err)
	}
}

func TestLoadSourcesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	data := `
sources:
  - name: Example
    feed_url: https://example.com/rss
    content_selectors: [".story", "article"]
    image_selector: ".lead img"
    domains: [example.com]
  - name: Other
    feed_url: https://other.example/atom
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	got, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources error: %v", err)
	}
	want := []collector.Source{
		{
			Name:             "Example",
			FeedURL:          "https://example.com/rss",
			ContentSelectors: []string{".story", "article"},
			ImageSelector:    ".lead img",
			Domains:          []string{"example.com"},
		},
		{Name: "Other", FeedURL: "https://other.example/atom"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSourcesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":     `sources: []`,
		"duplicate": "sources:\n  - {name: A, feed_url: http://a}\n  - {name: A, feed_url: http://b}\n",
		"no feed":   "sources:\n  - {name: A}\n",
		"no name":   "sources:\n  - {feed_url: http://a}\n",
		"bad yaml":  "sources: [",
	}
	for name, data := range cases {
		if _, err := ParseSources([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
