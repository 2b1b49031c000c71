package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"chatgate/internal/domain"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	errs []error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestSinkSendsMarkdownReply(t *testing.T) {
	sender := &fakeSender{}
	sink := NewSink(sender, zerolog.Nop())

	err := sink.Deliver(context.Background(), domain.Reply{ChatID: 9, ReplyTo: 4, Category: domain.CategoryAnswer, Text: "**hi**", Markdown: true})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.ChatID != 9 || msg.ReplyToMessageID != 4 || msg.ParseMode != tgbotapi.ModeMarkdown || msg.Text != "**hi**" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestSinkResendsPlainOnMarkupError(t *testing.T) {
	sender := &fakeSender{errs: []error{errors.New("Bad Request: can't parse entities: unclosed")}}
	sink := NewSink(sender, zerolog.Nop())

	if err := sink.Deliver(context.Background(), domain.Reply{ChatID: 1, Text: "*oops", Markdown: true}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(sender.sent) != 2 || sender.sent[1].ParseMode != "" {
		t.Fatalf("sent = %+v", sender.sent)
	}
}

func TestSinkPlainNoticeFailure(t *testing.T) {
	sender := &fakeSender{errs: []error{errors.New("Forbidden: bot was blocked")}}
	sink := NewSink(sender, zerolog.Nop())

	err := sink.Deliver(context.Background(), domain.Reply{ChatID: 1, Category: domain.CategoryFailure, Text: "Oops"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(sender.sent) != 1 || sender.sent[0].ParseMode != "" {
		t.Fatalf("sent = %+v", sender.sent)
	}
}
