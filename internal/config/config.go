package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          int
	JWTSecret     string
	MessageSecret string
	GinMode       string
	TLSCertFile   string
	TLSKeyFile    string
	TokenExpiry   time.Duration

	ChatDBFile    string
	ChatStateFile string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:        5000,
		GinMode:     "release",
		TokenExpiry: 15 * time.Minute,
		ChatDBFile:  "chatly.db",
		OpenAIModel: "gpt-4o-mini",
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.JWTSecret = env.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	cfg.MessageSecret = env.Getenv("MESSAGE_SECRET")
	if cfg.MessageSecret == "" {
		return Config{}, fmt.Errorf("MESSAGE_SECRET is required")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	if raw := env.Getenv("TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("CHAT_DB_FILE"); raw != "" {
		cfg.ChatDBFile = raw
	}
	cfg.ChatStateFile = env.Getenv("CHAT_STATE_FILE")

	cfg.OpenAIAPIKey = env.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = env.Getenv("OPENAI_BASE_URL")
	if raw := env.Getenv("OPENAI_MODEL"); raw != "" {
		cfg.OpenAIModel = raw
	}

	return cfg, nil
}
