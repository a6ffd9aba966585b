package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/LJTian/NotifyCast/internal/collector"
	"gopkg.in/yaml.v3"
)

// DefaultSources 内置的新闻源，顺序即轮转顺序
func DefaultSources() []collector.Source {
	return []collector.Source{
		{
			Name:             "BBC",
			FeedURL:          "http://feeds.bbci.co.uk/news/world/rss.xml",
			ContentSelectors: []string{"article", ".story-body__inner"},
			ImageSelector:    ".js-image-replace, .article-figure-image",
			Domains:          []string{"bbc.co.uk", "bbc.com"},
		},
		{
			Name:             "Al Jazeera",
			FeedURL:          "https://www.aljazeera.com/xml/rss/all.xml",
			ContentSelectors: []string{".article__content", ".main-article-content"},
			ImageSelector:    ".article-featured-image img",
			Domains:          []string{"aljazeera.com"},
		},
		{
			Name:             "CNN",
			FeedURL:          "http://rss.cnn.com/rss/edition_world.rss",
			ContentSelectors: []string{".article__content", ".zn-body__paragraph"},
			ImageSelector:    ".media__image",
			Domains:          []string{"cnn.com"},
		},
		{
			Name:             "Reuters",
			FeedURL:          "https://www.reutersagency.com/feed/?taxonomy=best-topics&post_type=best",
			ContentSelectors: []string{".article-body", ".ArticleBody"},
			ImageSelector:    ".featured-image img",
			Domains:          []string{"reuters.com", "reutersagency.com"},
		},
	}
}

type sourceFile struct {
	Sources []struct {
		Name             string   `yaml:"name"`
		FeedURL          string   `yaml:"feed_url"`
		ContentSelectors []string `yaml:"content_selectors"`
		ImageSelector    string   `yaml:"image_selector"`
		Domains          []string `yaml:"domains"`
	} `yaml:"sources"`
}

// LoadSources path 为空时返回内置来源，否则读取 YAML 文件
func LoadSources(path string) ([]collector.Source, error) {
	if path == "" {
		return DefaultSources(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read sources: %w", err)
	}
	return ParseSources(data)
}

func ParseSources(data []byte) ([]collector.Source, error) {
	var f sourceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse sources: %w", err)
	}

	out := make([]collector.Source, 0, len(f.Sources))
	for _, s := range f.Sources {
		out = append(out, collector.Source{
			Name:             strings.TrimSpace(s.Name),
			FeedURL:          strings.TrimSpace(s.FeedURL),
			ContentSelectors: s.ContentSelectors,
			ImageSelector:    s.ImageSelector,
			Domains:          s.Domains,
		})
	}
	if err := ValidateSources(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateSources 来源列表不能为空，名称唯一，订阅地址必填
func ValidateSources(sources []collector.Source) error {
	if len(sources) == 0 {
		return errors.New("config: no sources configured")
	}
	seen := make(map[string]struct{}, len(sources))
	for i, s := range sources {
		if s.Name == "" {
			return fmt.Errorf("config: source #%d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("config: duplicate source name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.FeedURL == "" {
			return fmt.Errorf("config: source %q has no feed_url", s.Name)
		}
	}
	return nil
}
