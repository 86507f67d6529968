// Package notify доставка уведомлений: входящие в базе и сообщения в Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Notifier доставляет одно уведомление
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

type InboxStore interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Inbox сохраняет уведомление в таблицу notifications
type Inbox struct {
	store InboxStore
}

func NewInbox(store InboxStore) *Inbox {
	return &Inbox{store: store}
}

func (i *Inbox) Notify(ctx context.Context, n model.Notification) error {
	if err := i.store.Create(ctx, &n); err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

// MessageSender часть *bot.Bot, нужная для отправки
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// ChatDirectory ищет Telegram чат пользователя
type ChatDirectory interface {
	GetByID(ctx context.Context, id int64) (*model.Client, error)
}

// Telegram отправляет уведомление в личный чат. Пользователь без telegram_id пропускается.
type Telegram struct {
	sender MessageSender
	chats  ChatDirectory
	logger *zap.Logger
}

func NewTelegram(sender MessageSender, chats ChatDirectory, logger *zap.Logger) *Telegram {
	return &Telegram{sender: sender, chats: chats, logger: logger}
}

func (t *Telegram) Notify(ctx context.Context, n model.Notification) error {
	user, err := t.chats.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.TelegramID == nil {
		t.logger.Debug("User has no telegram chat, skipping", zap.Int64("user_id", n.UserID))
		return nil
	}

	_, err = t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    *user.TelegramID,
		Text:      FormatMessage(n),
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// FormatMessage текст сообщения: жирный заголовок и экранированное тело
func FormatMessage(n model.Notification) string {
	return "*" + bot.EscapeMarkdown(n.Title) + "*\n\n" + bot.EscapeMarkdown(n.Message)
}

// Fanout отправляет через все каналы. Ошибка одного канала не мешает остальным.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
