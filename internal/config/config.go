package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Web Server
	WebBind            string
	AgentRatePerSecond float64
	AgentRateBurst     int
	// Comma-separated proxy addresses or CIDRs allowed to set X-Forwarded-For
	TrustedProxies []string

	// Database
	DatabaseURL string

	// Session store; empty keeps sessions in memory
	RedisURL string

	// Text generation
	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string

	// Ledger bridge
	HederaServiceURL   string
	HederaNetwork      string
	HederaClientID     string
	HederaClientSecret string
	HederaTokenURL     string

	// Email
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	EmailFrom          string
	EmailRatePerSecond float64

	// Discord announcements
	DiscordToken     string
	DiscordChannelID string

	// Operator tokens
	JWTSecret string

	// Proposals
	DefaultDeadline       string
	ProposalCloseInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		WebBind:            getEnvDefault("WEB_BIND", "0.0.0.0:4000"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		LLMProvider:        getEnvDefault("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnvDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		HederaServiceURL:   getEnvDefault("HEDERA_SERVICE_URL", "http://localhost:5000"),
		HederaNetwork:      getEnvDefault("HEDERA_NETWORK", "testnet"),
		HederaClientID:     os.Getenv("HEDERA_CLIENT_ID"),
		HederaClientSecret: os.Getenv("HEDERA_CLIENT_SECRET"),
		HederaTokenURL:     os.Getenv("HEDERA_TOKEN_URL"),
		SMTPHost:           os.Getenv("SMTP_HOST"),
		SMTPUsername:       os.Getenv("SMTP_USERNAME"),
		SMTPPassword:       os.Getenv("SMTP_PASSWORD"),
		EmailFrom:          os.Getenv("EMAIL_FROM"),
		DiscordToken:       os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID:   os.Getenv("DISCORD_CHANNEL_ID"),
		JWTSecret:          getEnvDefault("JWT_SECRET", "dev-only-change-me"),
		DefaultDeadline:    getEnvDefault("PROPOSAL_DEFAULT_DEADLINE", "November 30, 2025"),
		LogLevel:           getEnvDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvDefault("LOG_FORMAT", "json"),
	}

	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = strings.Split(v, ",")
	}

	var err error
	if cfg.SMTPPort, err = getEnvInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.AgentRateBurst, err = getEnvInt("AGENT_RATE_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.AgentRatePerSecond, err = getEnvFloat("AGENT_RATE_PER_SECOND", 2); err != nil {
		return nil, err
	}
	if cfg.EmailRatePerSecond, err = getEnvFloat("EMAIL_RATE_PER_SECOND", 5); err != nil {
		return nil, err
	}
	if cfg.ProposalCloseInterval, err = getEnvDuration("PROPOSAL_CLOSE_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireLLM checks that the selected text generation provider has a key.
func (c *Config) RequireLLM() error {
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be gemini or openai, got %q", c.LLMProvider)
	}
	return nil
}

// RequireDatabase reports a configuration error when DATABASE_URL is unset.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// EmailEnabled reports whether enough SMTP settings are present to send mail.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.EmailFrom != ""
}

// DiscordEnabled reports whether proposal announcements should be posted.
func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != "" && c.DiscordChannelID != ""
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
