package domain

import "time"

// Role tags a message sent to the generation service.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of a generation request.
type Message struct {
	Role    Role
	Content string
}

// GenerationRequest is what the gateway hands to a Generator.
type GenerationRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// BuildMessages lays out the system instruction, prior turns (oldest
// first) and the new question.
func BuildMessages(system string, turns []Turn, question string) []Message {
	msgs := make([]Message, 0, len(turns)*2+2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	for _, t := range turns {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: t.Question},
			Message{Role: RoleAssistant, Content: t.Answer},
		)
	}
	return append(msgs, Message{Role: RoleUser, Content: question})
}

// RequestKind distinguishes what an inbound message asks for.
type RequestKind string

const (
	KindNewQuestion       RequestKind = "new_question"
	KindReexplainPrevious RequestKind = "reexplain_previous"
)

// InboundEvent is a message addressed to the bot, already stripped of
// transport markup.
type InboundEvent struct {
	RequestID string
	UserID    string
	ChatID    int64
	MessageID int
	Text      string
	Locale    string
	Kind      RequestKind
	Timestamp time.Time
}

// ReplyCategory lets callers and tests tell reply kinds apart without
// parsing natural language.
type ReplyCategory string

const (
	CategoryAnswer        ReplyCategory = "answer"
	CategoryLowQuota      ReplyCategory = "low_quota"
	CategoryUnregistered  ReplyCategory = "unregistered"
	CategoryLimitExceeded ReplyCategory = "limit_exceeded"
	CategoryEmptyQuestion ReplyCategory = "empty_question"
	CategoryNoHistory     ReplyCategory = "no_history"
	CategoryFailure       ReplyCategory = "failure"
)

// Reply is an outbound message for the transport.
type Reply struct {
	UserID    string
	ChatID    int64
	ReplyTo   int
	Category  ReplyCategory
	Text      string
	Markdown  bool
	Remaining int
}
