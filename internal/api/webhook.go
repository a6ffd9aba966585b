package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/LJTian/NotifyCast/internal/callback"
	"github.com/LJTian/NotifyCast/internal/pipeline"
	"github.com/LJTian/NotifyCast/internal/processor"
	"github.com/LJTian/NotifyCast/internal/telegram"
	"github.com/gin-gonic/gin"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	answerFetching = "Fetching the full article..."
	answerExpired  = "This post is too old, please open the original link."
	answerInvalid  = "Unsupported action."
	answerLatest   = "Fetching the latest news..."
	replyRetry     = "Unable to fetch the full article right now. Please try again later."
	replyLatestErr = "Failed to fetch latest news. Please try again later."
)

// webhook 处理 Telegram 推送的更新。只要请求合法就返回 200，
// 否则 Telegram 会不断重推同一条更新。
func (s *Server) webhook(c *gin.Context) {
	if s.secret != "" && c.GetHeader(secretHeader) != s.secret {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found"})
		return
	}

	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		fail(c, http.StatusBadRequest, "bad_update", err.Error())
		return
	}

	switch {
	case u.CallbackQuery != nil:
		s.handleCallback(c.Request.Context(), u.CallbackQuery)
	case u.Message != nil && u.Message.Chat.IsPrivate():
		s.handleCommand(c.Request.Context(), u.Message)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	action, err := callback.Decode(q.Data)
	if err != nil {
		log.Printf("warn: webhook: callback %s: %v", q.ID, err)
		s.answer(ctx, q.ID, answerInvalid)
		return
	}

	chatID := q.From.ID
	if action.Kind == callback.KindLatestFromSource {
		s.answer(ctx, q.ID, answerLatest)
		s.sendLatest(ctx, chatID, action.Arg)
		return
	}

	s.answer(ctx, q.ID, answerFetching)

	// 抓取可能较慢，放到请求之外执行
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.replyTimeout)
		defer cancel()

		res, err := s.pipe.ResolveAction(ctx, action)
		var msgs []processor.Message
		switch {
		case errors.Is(err, pipeline.ErrUnknownPost):
			msgs = []processor.Message{{Text: answerExpired}}
		case err != nil:
			// 已经提示过“正在获取”，这里必须给用户一个答复
			log.Printf("webhook: resolve %s for %d: %v", action.Arg, chatID, err)
			msgs = []processor.Message{{Text: replyRetry}}
		default:
			msgs = s.pipe.Reply(res)
		}
		if err := s.replier.Reply(ctx, chatID, msgs); err != nil {
			log.Printf("webhook: reply to %d: %v", chatID, err)
		}
	})
}

func (s *Server) handleCommand(ctx context.Context, m *telegram.Message) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(m.Text), " ")
	// 群组中的命令形如 /sources@BotName
	cmd, _, _ = strings.Cut(cmd, "@")

	var msg processor.Message
	switch cmd {
	case "/latest":
		// 来源名可能带空格，如 /latest Hacker News
		s.sendLatest(ctx, m.Chat.ID, strings.TrimSpace(arg))
		return
	case "/sources":
		msg = s.formatter.SourcesMessage(s.pipe.Sources())
	default:
		msg = s.formatter.WelcomeMessage()
	}
	if err := s.replier.Reply(ctx, m.Chat.ID, []processor.Message{msg}); err != nil {
		log.Printf("webhook: reply to %d: %v", m.Chat.ID, err)
	}
}

// sendLatest 异步取来源最新一条新闻，以频道帖子的样式私聊发给用户。name 为空时取当前来源。
func (s *Server) sendLatest(ctx context.Context, chatID int64, name string) {
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.replyTimeout)
		defer cancel()

		post, err := s.pipe.LatestPost(ctx, name)
		if err == nil {
			if err = s.replier.SendPost(ctx, chatID, post); err == nil {
				return
			}
		}
		log.Printf("webhook: latest %q for %d: %v", name, chatID, err)
		if err := s.replier.Reply(ctx, chatID, []processor.Message{{Text: replyLatestErr}}); err != nil {
			log.Printf("webhook: reply to %d: %v", chatID, err)
		}
	})
}

func (s *Server) answer(ctx context.Context, queryID, text string) {
	if err := s.replier.Answer(ctx, queryID, text); err != nil {
		log.Printf("warn: webhook: answer callback %s: %v", queryID, err)
	}
}
