package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/LJTian/NotifyCast/internal/callback"
	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/LJTian/NotifyCast/internal/pipeline"
	"github.com/LJTian/NotifyCast/internal/processor"
	"github.com/LJTian/NotifyCast/internal/storage"
	"github.com/gin-gonic/gin"
)

// Pipeline 由 *pipeline.Orchestrator 实现
type Pipeline interface {
	Stats() pipeline.Stats
	Sources() []collector.Source
	RunOnce(ctx context.Context) (pipeline.RunReport, error)
	RunSource(ctx context.Context, name string) (pipeline.RunReport, error)
	ResolveFullArticle(ctx context.Context, rawURL string) pipeline.Resolution
	ResolveAction(ctx context.Context, a callback.Action) (pipeline.Resolution, error)
	Reply(res pipeline.Resolution) []processor.Message
	LatestPost(ctx context.Context, name string) (processor.Post, error)
}

// PostLister 发布历史，可为空
type PostLister interface {
	ListPosts(ctx context.Context, source string, limit int) ([]storage.PostRecord, error)
}

// Replier 向用户回复以及应答按钮回调
type Replier interface {
	Reply(ctx context.Context, chatID int64, msgs []processor.Message) error
	Answer(ctx context.Context, queryID, text string) error
	SendPost(ctx context.Context, chatID int64, post processor.Post) error
}

type Server struct {
	pipe      Pipeline
	posts     PostLister
	replier   Replier
	formatter *processor.Formatter
	secret    string

	// async 执行耗时的回调处理，测试中替换为同步执行
	async func(func())
	// replyTimeout 单次回调处理（抓取 + 回复）的总时长上限
	replyTimeout time.Duration
}

type Options struct {
	Posts         PostLister
	Replier       Replier
	Formatter     *processor.Formatter
	WebhookSecret string
}

func NewServer(pipe Pipeline, opts Options) *Server {
	f := opts.Formatter
	if f == nil {
		f = processor.NewFormatter("", "")
	}
	return &Server{
		pipe:         pipe,
		posts:        opts.Posts,
		replier:      opts.Replier,
		formatter:    f,
		secret:       opts.WebhookSecret,
		async:        func(fn func()) { go fn() },
		replyTimeout: time.Minute,
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/stats", s.stats)
		v1.GET("/sources", s.listSources)
		v1.GET("/posts", s.listPosts)
		v1.POST("/run", s.run)
		v1.GET("/article", s.article)
	}

	if s.replier != nil {
		r.POST("/telegram/webhook", s.webhook)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": msg,
	})
}

func (s *Server) stats(c *gin.Context) {
	ok(c, s.pipe.Stats())
}

func (s *Server) listSources(c *gin.Context) {
	ok(c, s.pipe.Sources())
}

func (s *Server) listPosts(c *gin.Context) {
	if s.posts == nil {
		fail(c, http.StatusServiceUnavailable, "history_disabled", "post history is not configured")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	items, err := s.posts.ListPosts(c.Request.Context(), c.Query("source"), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, items)
}

// run 手动触发一次定时流程；指定 source 时只处理该来源且不移动游标
func (s *Server) run(c *gin.Context) {
	var (
		report pipeline.RunReport
		err    error
	)
	if name := c.Query("source"); name != "" {
		report, err = s.pipe.RunSource(c.Request.Context(), name)
	} else {
		report, err = s.pipe.RunOnce(c.Request.Context())
	}

	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		fail(c, http.StatusConflict, "already_running", err.Error())
	case errors.Is(err, pipeline.ErrUnknownSource):
		fail(c, http.StatusNotFound, "unknown_source", err.Error())
	default:
		// 单个来源失败属于正常结果，通过 outcome/error 字段体现
		ok(c, report)
	}
}

func (s *Server) article(c *gin.Context) {
	raw := c.Query("url")
	if u, err := url.Parse(raw); raw == "" || err != nil || u.Host == "" {
		fail(c, http.StatusBadRequest, "invalid_url", "query parameter url must be an absolute http(s) url")
		return
	}
	ok(c, s.pipe.ResolveFullArticle(c.Request.Context(), raw))
}
