// Package gateway runs one inbound chat message through admission, context
// lookup, generation and window update, and produces the replies to send.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatgate/internal/domain"
	"chatgate/internal/governor"
	"chatgate/internal/window"
)

// Sink delivers replies to the chat transport. Delivery is not retried.
type Sink interface {
	Deliver(ctx context.Context, reply domain.Reply) error
}

// Options configure a Service.
type Options struct {
	Prompts           Prompts
	MaxTokens         int
	Temperature       float64
	GenerationTimeout time.Duration
	LowQuotaThreshold int
	RefundOnFailure   bool
	Clock             func() time.Time
}

// Service is the per-message pipeline.
type Service struct {
	governor *governor.Governor
	window   *window.Manager
	gen      domain.Generator
	replies  *Replies
	opts     Options
	logger   zerolog.Logger
}

func NewService(gov *governor.Governor, win *window.Manager, gen domain.Generator, replies *Replies, opts Options, logger zerolog.Logger) *Service {
	opts.Prompts = opts.Prompts.withDefaults()
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 30 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if replies == nil {
		replies = NewReplies("es")
	}
	return &Service{
		governor: gov,
		window:   win,
		gen:      gen,
		replies:  replies,
		opts:     opts,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

// Handle processes one event and returns the replies to deliver, in order.
// When err is non-nil the replies still hold what the user should see (a
// failure notice, or an answer whose context could not be saved); err
// carries the cause for logging.
func (s *Service) Handle(ctx context.Context, ev domain.InboundEvent) ([]domain.Reply, error) {
	if ev.RequestID == "" {
		ev.RequestID = uuid.NewString()
	}
	// Quota days follow the processing clock. Telegram redelivers and
	// polling backlogs carry old message times.
	now := s.opts.Clock()
	if ev.Kind == "" {
		ev.Kind = domain.KindNewQuestion
	}
	log := s.logger.With().Str("request_id", ev.RequestID).Str("user_id", ev.UserID).Str("kind", string(ev.Kind)).Logger()
	if !ev.Timestamp.IsZero() {
		log = log.With().Dur("lag", now.Sub(ev.Timestamp)).Logger()
	}

	question := strings.TrimSpace(ev.Text)
	if question == "" {
		// Unregistered users learn how to register before how to ask.
		usage, err := s.governor.Usage(ctx, ev.UserID, now)
		if err != nil {
			s.logAdmissionError(log, err)
			return []domain.Reply{s.notice(ev, domain.CategoryFailure)}, err
		}
		if usage.State == governor.StateUnregistered {
			log.Info().Msg("unregistered user")
			return []domain.Reply{s.notice(ev, domain.CategoryUnregistered)}, nil
		}
		return []domain.Reply{s.notice(ev, domain.CategoryEmptyQuestion)}, nil
	}

	decision, err := s.governor.Decide(ctx, ev.UserID, now)
	if err != nil {
		s.logAdmissionError(log, err)
		return []domain.Reply{s.notice(ev, domain.CategoryFailure)}, err
	}
	log = log.With().Str("state", string(decision.State)).Int("remaining", decision.Remaining).Logger()

	switch decision.State {
	case governor.StateUnregistered:
		log.Info().Msg("unregistered user")
		return []domain.Reply{s.notice(ev, domain.CategoryUnregistered)}, nil
	case governor.StateLimitExceeded:
		log.Info().Msg("daily limit reached")
		return []domain.Reply{s.notice(ev, domain.CategoryLimitExceeded)}, nil
	}

	var (
		answer    string
		recordErr error
	)
	switch ev.Kind {
	case domain.KindReexplainPrevious:
		last, ok, err := s.window.Last(ctx, ev.UserID)
		if err != nil {
			log.Error().Err(err).Str("error_kind", "store_error").Msg("load previous turn failed")
			return []domain.Reply{s.notice(ev, domain.CategoryFailure)}, err
		}
		if !ok {
			log.Info().Msg("nothing to re-explain")
			return []domain.Reply{s.notice(ev, domain.CategoryNoHistory)}, nil
		}
		answer, err = s.generate(ctx, s.opts.Prompts.Reexplain, []domain.Turn{last}, question)
		if err != nil {
			return s.generationFailed(ctx, ev, now, log, err)
		}
	default:
		turns, err := s.window.TurnsFor(ctx, ev.UserID)
		if err != nil {
			log.Error().Err(err).Str("error_kind", "store_error").Msg("load context failed")
			return []domain.Reply{s.notice(ev, domain.CategoryFailure)}, err
		}
		answer, err = s.generate(ctx, s.opts.Prompts.System, turns, question)
		if err != nil {
			return s.generationFailed(ctx, ev, now, log, err)
		}
		if err := s.window.Record(ctx, ev.UserID, question, answer); err != nil {
			log.Error().Err(err).Str("error_kind", "store_error").Msg("record turn failed")
			recordErr = fmt.Errorf("gateway: record turn: %w", err)
		}
	}

	replies := []domain.Reply{{
		UserID:    ev.UserID,
		ChatID:    ev.ChatID,
		ReplyTo:   ev.MessageID,
		Category:  domain.CategoryAnswer,
		Text:      answer,
		Markdown:  true,
		Remaining: decision.Remaining,
	}}
	if decision.LowQuota(s.opts.LowQuotaThreshold) {
		replies = append(replies, domain.Reply{
			UserID:    ev.UserID,
			ChatID:    ev.ChatID,
			ReplyTo:   ev.MessageID,
			Category:  domain.CategoryLowQuota,
			Text:      s.replies.LowQuota(ev.Locale, decision.Remaining),
			Remaining: decision.Remaining,
		})
	}
	log.Info().Int("replies", len(replies)).Msg("answered")
	return replies, recordErr
}

// Dispatch handles ev and delivers every reply through sink.
func (s *Service) Dispatch(ctx context.Context, ev domain.InboundEvent, sink Sink) error {
	if ev.RequestID == "" {
		ev.RequestID = uuid.NewString()
	}
	replies, err := s.Handle(ctx, ev)
	for _, r := range replies {
		if derr := sink.Deliver(ctx, r); derr != nil {
			s.logger.Warn().Err(derr).Str("request_id", ev.RequestID).Str("user_id", ev.UserID).
				Str("category", string(r.Category)).Msg("reply delivery failed")
		}
	}
	return err
}

func (s *Service) generate(ctx context.Context, system string, turns []domain.Turn, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.GenerationTimeout)
	defer cancel()

	text, err := s.gen.Generate(ctx, domain.GenerationRequest{
		Messages:    domain.BuildMessages(system, turns, question),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty answer", domain.ErrGeneration)
	}
	return text, nil
}

func (s *Service) generationFailed(ctx context.Context, ev domain.InboundEvent, now time.Time, log zerolog.Logger, err error) ([]domain.Reply, error) {
	log.Error().Err(err).Str("error_kind", "generation_error").Bool("timeout", errors.Is(err, context.DeadlineExceeded)).Msg("generation failed")
	if s.opts.RefundOnFailure {
		if rerr := s.governor.Refund(context.WithoutCancel(ctx), ev.UserID, now); rerr != nil {
			log.Error().Err(rerr).Msg("quota refund failed")
		} else {
			log.Info().Msg("quota refunded")
		}
	}
	return []domain.Reply{s.notice(ev, domain.CategoryFailure)}, err
}

func (s *Service) notice(ev domain.InboundEvent, category domain.ReplyCategory) domain.Reply {
	return domain.Reply{
		UserID:   ev.UserID,
		ChatID:   ev.ChatID,
		ReplyTo:  ev.MessageID,
		Category: category,
		Text:     s.replies.Text(ev.Locale, category),
	}
}

func (s *Service) logAdmissionError(log zerolog.Logger, err error) {
	if errors.Is(err, domain.ErrUnknownPlan) {
		log.Error().Err(err).Str("error_kind", "config_error").Msg("user plan missing from policy")
		return
	}
	log.Error().Err(err).Str("error_kind", "store_error").Msg("admission failed")
}
