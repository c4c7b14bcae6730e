package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/smartapi-proxy/internal/config"
	"github.com/camuig/smartapi-proxy/internal/logger"
)

// Sender is the subset of the bot API used by the notifier.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	bot     Sender
	chatID  int64
	enabled bool
	logger  *logger.Logger
}

func NewNotifier(cfg *config.Config, log *logger.Logger) *Notifier {
	if !cfg.Telegram.Enabled {
		return &Notifier{enabled: false, logger: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return &Notifier{enabled: false, logger: log}
	}

	log.Info("telegram bot connected", "username", bot.Self.UserName)

	return NewWithSender(bot, cfg.Telegram.ChatID, log)
}

func NewWithSender(bot Sender, chatID int64, log *logger.Logger) *Notifier {
	return &Notifier{bot: bot, chatID: chatID, enabled: true, logger: log}
}

func (n *Notifier) NotifyLoginFailure(accountID string, err error) {
	msg := fmt.Sprintf("⚠️ *Login failed* %s\n%s", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, accountID), tgbotapi.EscapeText(tgbotapi.ModeMarkdown, err.Error()))
	n.send(msg)
}

func (n *Notifier) NotifyStatus(message string) {
	n.send(message)
}

func (n *Notifier) send(text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("send telegram message", "error", err)
	}
}
