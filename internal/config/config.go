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
	App struct {
		Name string
		ENV  string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN          string
		Host         string
		Port         string
		User         string
		Password     string
		Name         string
		MaxOpenConns int
		MaxIdleConns int
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	HTTP struct {
		Host        string
		Port        string
		CORSOrigins []string
	}

	Auth struct {
		JWTSecret       string
		AccessTokenTTL  time.Duration
		RefreshTokenTTL time.Duration
		ResetTokenTTL   time.Duration
	}

	LLM struct {
		Provider    string // primary provider: "openai" or "anthropic"
		Fallback    string // optional secondary provider
		Model       string
		BaseURL     string
		Temperature float64
		MaxTokens   int
		MaxAttempts int
		Timeout     time.Duration

		OpenAIKey    string
		AnthropicKey string
	}

	Push struct {
		VAPIDPublicKey  string
		VAPIDPrivateKey string
		Subscriber      string
	}

	Payments struct {
		KhaltiSecretKey string
		ESewaMerchantID string
	}

	Moderation struct {
		ToxicityThreshold float64
		AutoEnabled       bool
	}

	RateLimit struct {
		Requests int
		Window   time.Duration
	}
}

// New builds the config from environment variables. A .env file in the
// working directory is loaded first if present; real env vars win.
func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.Name = getEnvDefault("APP_NAME", "jodi")
	cfg.App.ENV = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "api_server")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "jodi")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}
	cfg.DB.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DB.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// HTTP
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "0.0.0.0")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")
	cfg.HTTP.CORSOrigins = splitList(getEnvDefault(
		"CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"))

	// Auth
	cfg.Auth.JWTSecret = getEnvDefault("JWT_SECRET", "change-me-in-production")
	cfg.Auth.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute)
	cfg.Auth.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	cfg.Auth.ResetTokenTTL = getEnvDuration("RESET_TOKEN_TTL", time.Hour)

	// LLM
	cfg.LLM.Provider = getEnvDefault("LLM_PROVIDER", "openai")
	cfg.LLM.Fallback = getEnvDefault("LLM_FALLBACK_PROVIDER", "")
	cfg.LLM.Model = getEnvDefault("LLM_MODEL", "gpt-4o-mini")
	cfg.LLM.BaseURL = getEnvDefault("LLM_BASE_URL", "")
	cfg.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", 0.7)
	cfg.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", 1000)
	cfg.LLM.MaxAttempts = getEnvInt("LLM_MAX_ATTEMPTS", 3)
	cfg.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", 30*time.Second)
	cfg.LLM.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.LLM.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")

	// Web push
	cfg.Push.VAPIDPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	cfg.Push.VAPIDPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")
	cfg.Push.Subscriber = getEnvDefault("PUSH_SUBSCRIBER", "mailto:support@jodi.app")

	// Payments
	cfg.Payments.KhaltiSecretKey = os.Getenv("KHALTI_SECRET_KEY")
	cfg.Payments.ESewaMerchantID = os.Getenv("ESEWA_MERCHANT_ID")

	// Moderation
	cfg.Moderation.ToxicityThreshold = getEnvFloat("TOXICITY_THRESHOLD", 0.7)
	cfg.Moderation.AutoEnabled = isTruthy(getEnvDefault("AUTO_MODERATION", "true"))

	// Rate limiting
	cfg.RateLimit.Requests = getEnvInt("RATE_LIMIT_REQUESTS", 100)
	cfg.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
