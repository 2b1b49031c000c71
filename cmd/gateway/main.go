package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"chatgate/internal/adapter/repo"
	"chatgate/internal/domain"
	"chatgate/internal/gateway"
	"chatgate/internal/governor"
	"chatgate/internal/http/handlers"
	httpapi "chatgate/internal/http/httpapi"
	"chatgate/internal/infra"
	"chatgate/internal/keylock"
	"chatgate/internal/providers/llm"
	"chatgate/internal/quota"
	"chatgate/internal/transport/telegram"
	"chatgate/internal/window"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if strings.TrimSpace(cfg.TelegramToken) == "" {
		logger.Fatal().Msg("TELEGRAM_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repo.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open user store")
	}
	defer closeStore()

	policy, err := quota.LoadPolicy(cfg.PlansFile, cfg.PlanLimits)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load plan limits")
	}

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.GenerationProvider).Msg("failed to configure generator")
	}

	locks := keylock.New(0)
	gov := governor.New(store, policy, locks, governor.Options{Location: cfg.Location}, logger)
	win := window.New(store, locks, cfg.ContextWindowTurns, logger)
	logger.Info().Int("context_turns", win.Size()).Str("timezone", cfg.Location.String()).Msg("quota and context configured")
	svc := gateway.NewService(gov, win, gen, gateway.NewReplies(cfg.ReplyLocale), gateway.Options{
		Prompts:           gateway.Prompts{System: cfg.SystemPrompt, Reexplain: cfg.ReexplainPrompt},
		MaxTokens:         cfg.GenerationMaxTokens,
		Temperature:       cfg.GenerationTemp,
		GenerationTimeout: cfg.GenerationTimeout,
		LowQuotaThreshold: cfg.LowQuotaThreshold,
		RefundOnFailure:   cfg.RefundOnFailure,
	}, logger)

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to reach telegram")
	}
	username := strings.TrimPrefix(strings.TrimSpace(cfg.TelegramBotUsername), "@")
	if username == "" {
		username = bot.Self.UserName
	}

	dispatcher := telegram.NewDispatcher(
		telegram.NewParser(username),
		svc,
		telegram.NewSink(bot, logger),
		cfg.DispatchWorkers,
		logger,
	)

	app := handlers.NewApp(dispatcher, store, logger)
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		WebhookSecret:   cfg.TelegramWebhookToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router, logger)
	if cfg.TelegramMode == infra.TelegramModeWebhook && cfg.TelegramWebhookToken == "" {
		logger.Warn().Msg("TELEGRAM_WEBHOOK_SECRET is empty; webhook accepts unauthenticated updates")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("mode", cfg.TelegramMode).Str("bot", username).Msg("gateway listening")
		return server.Start()
	})
	if cfg.TelegramMode == infra.TelegramModePolling {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logger.Warn().Err(err).Msg("failed to clear webhook before polling")
		}
		uc := tgbotapi.NewUpdate(0)
		uc.Timeout = 30
		updates := bot.GetUpdatesChan(uc)
		g.Go(func() error {
			err := dispatcher.Poll(gctx, updates)
			bot.StopReceivingUpdates()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GenerationTimeout+5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server")
		}
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("in-flight messages cancelled")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("gateway stopped with error")
	}
	logger.Info().Msg("gateway stopped")
}

type namedGenerator interface {
	domain.Generator
	Name() string
	Model() string
}

// newGenerator returns the configured provider, backed by the other one
// when both API keys are present.
func newGenerator(cfg *infra.Config, logger infra.Logger) (domain.Generator, error) {
	log := infra.Component(logger, "llm")
	build := func(provider string) (domain.Generator, error) {
		var (
			gen namedGenerator
			err error
		)
		switch provider {
		case infra.ProviderOpenAI:
			gen, err = llm.NewOpenAIGenerator(llm.OpenAIOptions{
				APIKey:       cfg.OpenAIAPIKey,
				Model:        cfg.OpenAIModel,
				BaseURL:      cfg.OpenAIBaseURL,
				Organization: cfg.OpenAIOrg,
				OnWarning: func(reason, detail string) {
					log.Warn().Str("reason", reason).Str("detail", detail).Msg("openai model")
				},
			})
		case infra.ProviderGemini:
			gen, err = llm.NewGeminiGenerator(llm.GeminiOptions{
				APIKey:  cfg.GeminiAPIKey,
				Model:   cfg.GeminiModel,
				BaseURL: cfg.GeminiBaseURL,
			})
		default:
			return nil, fmt.Errorf("unsupported provider %q", provider)
		}
		if err != nil {
			return nil, err
		}
		log.Info().Str("provider", gen.Name()).Str("model", gen.Model()).Msg("generator ready")
		return gen, nil
	}

	primary, err := build(cfg.GenerationProvider)
	if err != nil {
		return nil, err
	}
	secondaryName := infra.ProviderGemini
	secondaryKey := cfg.GeminiAPIKey
	if cfg.GenerationProvider == infra.ProviderGemini {
		secondaryName, secondaryKey = infra.ProviderOpenAI, cfg.OpenAIAPIKey
	}
	if strings.TrimSpace(secondaryKey) == "" {
		return primary, nil
	}
	secondary, err := build(secondaryName)
	if err != nil {
		return nil, err
	}
	log.Info().Str("primary", cfg.GenerationProvider).Str("fallback", secondaryName).Msg("generation fallback enabled")
	return &llm.Fallback{
		Primary:   primary,
		Secondary: secondary,
		OnFallback: func(reason string, err error) {
			log.Warn().Err(err).Str("reason", reason).Str("fallback", secondaryName).Msg("primary provider failed")
		},
	}, nil
}
