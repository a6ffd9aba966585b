package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LJTian/NotifyCast/internal/processor"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostRecord 一条已发布到频道的帖子
type PostRecord struct {
	ID     string `gorm:"primaryKey;size:40" json:"id"`
	Link   string `gorm:"size:1024;uniqueIndex" json:"link"`
	Title  string `gorm:"size:512" json:"title"`
	Source string `gorm:"size:64;index" json:"source"`
	// 帖子正文（HTML），与频道中显示一致
	Text        string            `gorm:"size:2048" json:"text"`
	MediaType   string            `gorm:"size:16" json:"mediaType"`
	Degraded    bool              `gorm:"index" json:"degraded"`
	PublishedAt time.Time         `gorm:"index" json:"publishedAt"`
	ExtraData   datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (PostRecord) TableName() string { return "posts" }

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStore redisAddr 为空时不启用列表缓存
func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&PostRecord{}); err != nil {
		return nil, err
	}

	s := &Store{DB: db}
	if redisAddr == "" {
		return s, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}
	s.Redis = rdb

	return s, nil
}

func (s *Store) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误（部分源可能混有非法字节）
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

func recordFromPost(p processor.Post) *PostRecord {
	extra := datatypes.JSONMap{
		"parseMode": p.ParseMode,
	}
	if p.MediaURL != "" {
		extra["mediaUrl"] = p.MediaURL
	}
	if len(p.Actions) > 0 {
		labels := make([]any, 0, len(p.Actions))
		for _, a := range p.Actions {
			labels = append(labels, a.Label)
		}
		extra["actions"] = labels
	}
	return &PostRecord{
		ID:          p.ID,
		Link:        p.Link,
		Title:       truncateRunesDB(toValidUTF8(p.Title), 512),
		Source:      p.Source,
		Text:        truncateRunesDB(toValidUTF8(p.Text), 2048),
		MediaType:   string(p.MediaType),
		Degraded:    p.Degraded,
		PublishedAt: p.PublishedAt,
		ExtraData:   extra,
	}
}

// SavePost 记录一次发布，以链接作为幂等键
func (s *Store) SavePost(ctx context.Context, p processor.Post) error {
	if p.ID == "" || p.Link == "" {
		return fmt.Errorf("storage: post without id or link")
	}
	rec := recordFromPost(p)
	if err := s.DB.WithContext(ctx).Where("link = ?", p.Link).FirstOrCreate(rec).Error; err != nil {
		return fmt.Errorf("storage: save post %s: %w", p.ID, err)
	}

	// 列表缓存只依赖短 TTL 自然过期，不做通配删除
	return nil
}

func (s *Store) HasPosted(ctx context.Context, link string) (bool, error) {
	var n int64
	if err := s.DB.WithContext(ctx).Model(&PostRecord{}).Where("link = ?", link).Count(&n).Error; err != nil {
		return false, fmt.Errorf("storage: check %s: %w", link, err)
	}
	return n > 0, nil
}

// LookupLink 根据帖子 ID 找回原文链接
func (s *Store) LookupLink(ctx context.Context, postID string) (string, bool, error) {
	var rec PostRecord
	err := s.DB.WithContext(ctx).Select("link").Where("id = ?", postID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: lookup %s: %w", postID, err)
	}
	return rec.Link, true, nil
}

func listCacheKey(source string, limit int) string {
	return fmt.Sprintf("posts:list:%s:%d", source, limit)
}

// ListPosts 按来源返回最近发布的帖子，并使用 Redis 做简单缓存
// source 为空时返回全部来源
func (s *Store) ListPosts(ctx context.Context, source string, limit int) ([]PostRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 20
	}
	cacheKey := listCacheKey(source, limit)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []PostRecord
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []PostRecord
	db := s.DB.WithContext(ctx).Model(&PostRecord{})
	if source != "" {
		db = db.Where("source = ?", source)
	}
	if err := db.Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}

	// 回写缓存（5 分钟）
	const listCacheTTL = 5 * time.Minute
	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}

	return list, nil
}
