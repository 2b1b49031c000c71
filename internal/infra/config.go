package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverFile     = "file"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Telegram update delivery modes accepted by TELEGRAM_MODE.
const (
	TelegramModeWebhook = "webhook"
	TelegramModePolling = "polling"
)

// Generation providers accepted by GENERATION_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	StoreDriver string
	StorePath   string
	DatabaseURL string
	DBMaxConns  int

	PlansFile            string
	PlanLimits           string
	QuotaTimezone        string
	Location             *time.Location
	LowQuotaThreshold    int
	RefundOnFailure      bool
	ContextWindowTurns   int
	GenerationProvider   string
	GenerationMaxTokens  int
	GenerationTemp       float64
	GenerationTimeout    time.Duration
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	OpenAIOrg            string
	GeminiAPIKey         string
	GeminiModel          string
	GeminiBaseURL        string
	SystemPrompt         string
	ReexplainPrompt      string
	ReplyLocale          string
	TelegramToken        string
	TelegramBotUsername  string
	TelegramWebhookToken string
	TelegramMode         string
	DispatchWorkers      int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8443"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverFile)),
		StorePath:   getEnv("STORE_PATH", "./data/users.json"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),

		PlansFile:            os.Getenv("PLANS_FILE"),
		PlanLimits:           os.Getenv("PLAN_LIMITS"),
		QuotaTimezone:        getEnv("QUOTA_TIMEZONE", "UTC"),
		LowQuotaThreshold:    getEnvInt("LOW_QUOTA_THRESHOLD", 2),
		RefundOnFailure:      getEnvBool("QUOTA_REFUND_ON_FAILURE", false),
		ContextWindowTurns:   getEnvInt("CONTEXT_WINDOW_TURNS", 3),
		GenerationProvider:   strings.ToLower(getEnv("GENERATION_PROVIDER", ProviderOpenAI)),
		GenerationMaxTokens:  getEnvInt("GENERATION_MAX_TOKENS", 500),
		GenerationTemp:       getEnvFloat("GENERATION_TEMPERATURE", 0.7),
		GenerationTimeout:    time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 30)),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:            os.Getenv("OPENAI_ORG"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		SystemPrompt:         os.Getenv("SYSTEM_PROMPT"),
		ReexplainPrompt:      os.Getenv("REEXPLAIN_PROMPT"),
		ReplyLocale:          getEnv("REPLY_LOCALE", "es"),
		TelegramToken:        os.Getenv("TELEGRAM_TOKEN"),
		TelegramBotUsername:  os.Getenv("TELEGRAM_BOT_USERNAME"),
		TelegramWebhookToken: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		TelegramMode:         strings.ToLower(getEnv("TELEGRAM_MODE", TelegramModeWebhook)),
		DispatchWorkers:      getEnvInt("DISPATCH_WORKERS", 16),
	}

	if path := strings.TrimSpace(os.Getenv("SYSTEM_PROMPT_FILE")); path != "" && cfg.SystemPrompt == "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read SYSTEM_PROMPT_FILE: %w", err)
		}
		cfg.SystemPrompt = strings.TrimSpace(string(raw))
	}

	loc, err := time.LoadLocation(cfg.QuotaTimezone)
	if err != nil {
		return nil, fmt.Errorf("QUOTA_TIMEZONE %q: %w", cfg.QuotaTimezone, err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field combinations LoadConfig cannot default.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverFile, StoreDriverSQLite:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("STORE_PATH is required for the %s store", c.StoreDriver)
		}
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.GenerationProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unsupported GENERATION_PROVIDER %q", c.GenerationProvider)
	}
	switch c.TelegramMode {
	case TelegramModeWebhook:
		// Without the secret anyone can post updates in any user's name.
		if strings.TrimSpace(c.TelegramWebhookToken) == "" && !c.IsDevelopment() {
			return fmt.Errorf("TELEGRAM_WEBHOOK_SECRET is required in webhook mode outside development")
		}
	case TelegramModePolling:
	default:
		return fmt.Errorf("unsupported TELEGRAM_MODE %q", c.TelegramMode)
	}
	if c.ContextWindowTurns < 0 {
		return fmt.Errorf("CONTEXT_WINDOW_TURNS must be >= 0")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT_SECONDS must be > 0")
	}
	return nil
}

// IsDevelopment reports whether APP_ENV selects development behaviour.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
