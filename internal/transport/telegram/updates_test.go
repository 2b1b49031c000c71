package telegram

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatgate/internal/domain"
)

func groupMessage(text string, entities ...tgbotapi.MessageEntity) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 55,
			From:      &tgbotapi.User{ID: 123456, LanguageCode: "es"},
			Chat:      &tgbotapi.Chat{ID: -1001, Type: "supergroup"},
			Date:      int(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC).Unix()),
			Text:      text,
			Entities:  entities,
		},
	}
}

func mention(offset, length int) tgbotapi.MessageEntity {
	return tgbotapi.MessageEntity{Type: "mention", Offset: offset, Length: length}
}

func TestParserStripsMention(t *testing.T) {
	p := NewParser("@TutorBot")
	ev, ok := p.Event(groupMessage("@tutorbot how do I say hola?", mention(0, 9)))
	if !ok {
		t.Fatal("expected addressed message")
	}
	if ev.Text != "how do I say hola?" {
		t.Fatalf("Text = %q", ev.Text)
	}
	if ev.UserID != "123456" || ev.ChatID != -1001 || ev.MessageID != 55 || ev.Locale != "es" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Kind != domain.KindNewQuestion {
		t.Fatalf("Kind = %s", ev.Kind)
	}
	if !ev.Timestamp.Equal(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("Timestamp = %s", ev.Timestamp)
	}
}

func TestParserUTF16Offsets(t *testing.T) {
	// The emoji takes two UTF-16 units, so the mention starts at 3.
	p := NewParser("TutorBot")
	ev, ok := p.Event(groupMessage("😀 @TutorBot explícalo en español", mention(3, 9)))
	if !ok {
		t.Fatal("expected addressed message")
	}
	if ev.Text != "😀  explícalo en español" {
		t.Fatalf("Text = %q", ev.Text)
	}
}

func TestParserIgnoresOtherMentionsInGroups(t *testing.T) {
	p := NewParser("TutorBot")
	if _, ok := p.Event(groupMessage("@someone hi", mention(0, 8))); ok {
		t.Fatal("message for another account must be ignored")
	}
	if _, ok := p.Event(groupMessage("no mention at all")); ok {
		t.Fatal("unaddressed group message must be ignored")
	}
}

func TestParserPrivateChatNeedsNoMention(t *testing.T) {
	p := NewParser("TutorBot")
	u := groupMessage("Explain it in Spanish")
	u.Message.Chat.Type = "private"
	ev, ok := p.Event(u)
	if !ok {
		t.Fatal("private message should be addressed")
	}
	if ev.Kind != domain.KindReexplainPrevious {
		t.Fatalf("Kind = %s", ev.Kind)
	}
}

func TestParserMentionOnlyGivesEmptyText(t *testing.T) {
	p := NewParser("TutorBot")
	ev, ok := p.Event(groupMessage("@TutorBot   ", mention(0, 9)))
	if !ok {
		t.Fatal("expected addressed message")
	}
	if ev.Text != "" {
		t.Fatalf("Text = %q, want empty", ev.Text)
	}
}

func TestParserSkipsNonMessages(t *testing.T) {
	p := NewParser("TutorBot")
	if _, ok := p.Event(tgbotapi.Update{UpdateID: 2}); ok {
		t.Fatal("update without message must be skipped")
	}
}
