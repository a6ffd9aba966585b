package telegram

import (
	"context"
	"fmt"

	"github.com/LJTian/NotifyCast/internal/collector"
	"github.com/LJTian/NotifyCast/internal/processor"
)

// ChannelPoster 把格式化好的帖子发到频道
type ChannelPoster struct {
	client *Client
	chatID string
}

func NewChannelPoster(client *Client, chatID string) *ChannelPoster {
	return &ChannelPoster{client: client, chatID: chatID}
}

func (p *ChannelPoster) Post(ctx context.Context, post processor.Post) error {
	return p.send(ctx, p.chatID, post)
}

// SendPost 把频道格式的帖子私发给单个用户（/latest）
func (p *ChannelPoster) SendPost(ctx context.Context, chatID int64, post processor.Post) error {
	return p.send(ctx, fmt.Sprint(chatID), post)
}

func (p *ChannelPoster) send(ctx context.Context, chatID string, post processor.Post) error {
	markup := markupFor(post.Actions)

	var err error
	switch post.MediaType {
	case collector.MediaPhoto:
		err = p.client.SendPhoto(ctx, chatID, post.MediaURL, post.Text, post.ParseMode, markup)
	case collector.MediaVideo:
		err = p.client.SendVideo(ctx, chatID, post.MediaURL, post.Text, post.ParseMode, markup)
	default:
		err = p.client.SendMessage(ctx, chatID, post.Text, post.ParseMode, post.DisablePreview, markup)
	}
	if err != nil {
		return fmt.Errorf("post %s to %s: %w", post.ID, chatID, err)
	}
	return nil
}

// Reply 向单个用户发送多条消息，按顺序发送
func (p *ChannelPoster) Reply(ctx context.Context, chatID int64, msgs []processor.Message) error {
	to := fmt.Sprint(chatID)
	for i, m := range msgs {
		if err := p.client.SendMessage(ctx, to, m.Text, m.ParseMode, true, markupFor(m.Actions)); err != nil {
			return fmt.Errorf("reply part %d/%d to %s: %w", i+1, len(msgs), to, err)
		}
	}
	return nil
}

func (p *ChannelPoster) Answer(ctx context.Context, queryID, text string) error {
	return p.client.AnswerCallbackQuery(ctx, queryID, text)
}

func markupFor(actions []processor.Action) *ReplyMarkup {
	buttons := make([]InlineKeyboardButton, 0, len(actions))
	for _, a := range actions {
		buttons = append(buttons, InlineKeyboardButton{Text: a.Label, CallbackData: a.ActionID})
	}
	return Keyboard(buttons...)
}
