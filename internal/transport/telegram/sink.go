package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"chatgate/internal/domain"
)

// Sender is the part of *tgbotapi.BotAPI the sink needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sink delivers replies as Telegram replies to the triggering message.
type Sink struct {
	sender Sender
	logger zerolog.Logger
}

func NewSink(sender Sender, logger zerolog.Logger) *Sink {
	return &Sink{sender: sender, logger: logger.With().Str("component", "telegram_sink").Logger()}
}

// Deliver sends one reply. Answers go out as Markdown; when Telegram rejects
// the markup the text is resent plain.
func (s *Sink) Deliver(ctx context.Context, reply domain.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(reply.ChatID, reply.Text)
	msg.ReplyToMessageID = reply.ReplyTo
	msg.AllowSendingWithoutReply = true
	if reply.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	_, err := s.sender.Send(msg)
	if err != nil && reply.Markdown && isParseError(err) {
		s.logger.Warn().Err(err).Int64("chat_id", reply.ChatID).Msg("markdown rejected, resending plain")
		msg.ParseMode = ""
		_, err = s.sender.Send(msg)
	}
	if err != nil {
		return fmt.Errorf("telegram: send %s to chat %d: %w", reply.Category, reply.ChatID, err)
	}
	return nil
}

func isParseError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}
