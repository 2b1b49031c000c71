// Package telegram is the Telegram front end: it turns bot updates into
// inbound events and delivers replies through the Bot API.
package telegram

import (
	"strconv"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatgate/internal/domain"
	"chatgate/internal/gateway"
)

// Parser extracts messages addressed to the bot.
type Parser struct {
	mention string
}

// NewParser builds a Parser for the bot's username, with or without "@".
func NewParser(botUsername string) *Parser {
	name := strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	return &Parser{mention: "@" + strings.ToLower(name)}
}

// Event converts an update into an inbound event. It reports false for
// updates that are not text messages addressed to the bot: in groups the
// bot must be mentioned, in private chats every text message counts.
func (p *Parser) Event(u tgbotapi.Update) (domain.InboundEvent, bool) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return domain.InboundEvent{}, false
	}
	if msg.IsCommand() {
		return domain.InboundEvent{}, false
	}

	text, mentioned := p.stripMentions(msg.Text, msg.Entities)
	if !mentioned && !msg.Chat.IsPrivate() {
		return domain.InboundEvent{}, false
	}
	text = strings.TrimSpace(text)

	return domain.InboundEvent{
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      text,
		Locale:    msg.From.LanguageCode,
		Kind:      gateway.Classify(text),
		Timestamp: msg.Time(),
	}, true
}

// stripMentions removes every mention entity naming the bot. Entity
// offsets count UTF-16 code units.
func (p *Parser) stripMentions(text string, entities []tgbotapi.MessageEntity) (string, bool) {
	if len(entities) == 0 || p.mention == "@" {
		return text, false
	}
	units := utf16.Encode([]rune(text))
	keep := make([]bool, len(units))
	for i := range keep {
		keep[i] = true
	}
	found := false
	for _, e := range entities {
		if !e.IsMention() || e.Offset < 0 || e.Offset+e.Length > len(units) {
			continue
		}
		name := string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
		if strings.ToLower(name) != p.mention {
			continue
		}
		found = true
		for i := e.Offset; i < e.Offset+e.Length; i++ {
			keep[i] = false
		}
	}
	if !found {
		return text, false
	}
	out := make([]uint16, 0, len(units))
	for i, u := range units {
		if keep[i] {
			out = append(out, u)
		}
	}
	return string(utf16.Decode(out)), true
}
