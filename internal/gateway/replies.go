package gateway

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"chatgate/internal/domain"
)

// Message keys of the reply catalog.
const (
	msgUnregistered  = "reply.unregistered"
	msgLimitExceeded = "reply.limit_exceeded"
	msgEmptyQuestion = "reply.empty_question"
	msgNoHistory     = "reply.no_history"
	msgFailure       = "reply.failure"
	msgLowQuota      = "reply.low_quota"
)

type entry struct {
	key string
	msg catalog.Message
}

var replyTexts = map[language.Tag][]entry{
	language.Spanish: {
		{msgUnregistered, catalog.String("Tu usuario no está registrado. Escríbenos para activar tu acceso.")},
		{msgLimitExceeded, catalog.String("Has alcanzado tu límite diario según tu plan. ¡Vuelve mañana o mejora tu plan!")},
		{msgEmptyQuestion, catalog.String("Hey! Just type your question or say 'Let's practice!' and I'll help you! 😊")},
		{msgNoHistory, catalog.String("Todavía no hay una respuesta anterior que explicar. ¡Hazme una pregunta primero!")},
		{msgFailure, catalog.String("Oops! Algo salió mal. Intenta de nuevo en un momento.")},
		{msgLowQuota, plural.Selectf(1, "%d",
			plural.One, "⚠️ Te queda solo %d interacción disponible hoy según tu plan. ¡Aprovéchala al máximo! 💪📘",
			plural.Other, "⚠️ Te quedan %d interacciones disponibles hoy según tu plan. ¡Aprovéchalas al máximo! 💪📘")},
	},
	language.English: {
		{msgUnregistered, catalog.String("Your user is not registered. Message us to activate your access.")},
		{msgLimitExceeded, catalog.String("You have reached your daily limit for your plan. Come back tomorrow or upgrade your plan!")},
		{msgEmptyQuestion, catalog.String("Hey! Just type your question or say 'Let's practice!' and I'll help you! 😊")},
		{msgNoHistory, catalog.String("There is no previous answer to explain yet. Ask me a question first!")},
		{msgFailure, catalog.String("Oops! Something went wrong. Please try again in a moment.")},
		{msgLowQuota, plural.Selectf(1, "%d",
			plural.One, "⚠️ You have only %d interaction left today on your plan. Make the most of it! 💪📘",
			plural.Other, "⚠️ You have %d interactions left today on your plan. Make the most of them! 💪📘")},
	},
}

// Replies renders the fixed reply texts in the user's language.
type Replies struct {
	cat       *catalog.Builder
	supported []language.Tag
	matcher   language.Matcher
}

// NewReplies builds the catalog. defaultLocale wins when a user's locale
// matches nothing; unknown defaults fall back to Spanish.
func NewReplies(defaultLocale string) *Replies {
	def := language.Spanish
	if tag, err := language.Parse(defaultLocale); err == nil {
		base, _ := tag.Base()
		for t := range replyTexts {
			if tb, _ := t.Base(); tb == base {
				def = t
			}
		}
	}

	b := catalog.NewBuilder(catalog.Fallback(def))
	supported := []language.Tag{def}
	for tag, entries := range replyTexts {
		for _, e := range entries {
			// Keys and messages are static; Set only fails on malformed input.
			_ = b.Set(tag, e.key, e.msg)
		}
		if tag != def {
			supported = append(supported, tag)
		}
	}
	return &Replies{cat: b, supported: supported, matcher: language.NewMatcher(supported)}
}

func (r *Replies) printer(locale string) *message.Printer {
	tag := r.supported[0]
	if locale != "" {
		_, idx, conf := r.matcher.Match(language.Make(locale))
		if conf != language.No {
			tag = r.supported[idx]
		}
	}
	return message.NewPrinter(tag, message.Catalog(r.cat))
}

// Text returns the fixed text of a non-answer category.
func (r *Replies) Text(locale string, category domain.ReplyCategory) string {
	p := r.printer(locale)
	switch category {
	case domain.CategoryUnregistered:
		return p.Sprintf(msgUnregistered)
	case domain.CategoryLimitExceeded:
		return p.Sprintf(msgLimitExceeded)
	case domain.CategoryEmptyQuestion:
		return p.Sprintf(msgEmptyQuestion)
	case domain.CategoryNoHistory:
		return p.Sprintf(msgNoHistory)
	default:
		return p.Sprintf(msgFailure)
	}
}

// LowQuota returns the warning for remaining units, singular on exactly one.
func (r *Replies) LowQuota(locale string, remaining int) string {
	return r.printer(locale).Sprintf(msgLowQuota, remaining)
}
