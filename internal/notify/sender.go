package notify

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Sender is the physical transport behind the local center.
type Sender interface {
	Send(ctx context.Context, title, body string) error
}

// TelegramSender delivers notifications as Telegram messages.
type TelegramSender struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram api: %w", err)
	}
	return &TelegramSender{api: api, chatID: chatID}, nil
}

func (s *TelegramSender) Send(ctx context.Context, title, body string) error {
	text := fmt.Sprintf("🔔 <b>%s</b>\n%s", html.EscapeString(title), html.EscapeString(body))
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// LogSender writes notifications to the log. Used when no Telegram token
// is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, title, body string) error {
	logrus.WithFields(logrus.Fields{"title": title, "body": body}).Info("notification")
	return nil
}
