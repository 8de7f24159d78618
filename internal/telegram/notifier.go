package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/processor"
)

// Sender is the part of the bot API used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends Markdown messages to individual chats. A Notifier without a
// sender drops everything, which is how a disabled bot is represented.
type Notifier struct {
	sender  Sender
	enabled bool
	logger  *logger.Logger
}

func NewNotifier(sender Sender, log *logger.Logger) *Notifier {
	return &Notifier{
		sender:  sender,
		enabled: sender != nil,
		logger:  log,
	}
}

// NotifyStatement tells a user how processing of their statement went.
func (n *Notifier) NotifyStatement(chatID int64, res *processor.Result, err error) {
	n.Send(chatID, RenderStatement(res, err))
}

func (n *Notifier) Send(chatID int64, text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Error("send telegram message", "chat_id", chatID, "error", err)
	}
}
