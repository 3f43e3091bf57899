package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"itsm-ticket-bridge/internal/domain/model"
	"itsm-ticket-bridge/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*TelegramNotifier)(nil)

// TelegramNotifier posts terminal request states to an ops chat. Sends are
// best-effort; the engine ignores errors from here.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) RequestFinished(ctx context.Context, r *model.Request, summary string) error {
	text := fmt.Sprintf("request %s [%s] %s: %s", r.ID, r.Status, r.Title, summary)
	msg := tgbotapi.NewMessage(t.chatID, text)
	_, err := t.bot.Send(msg)
	return err
}
