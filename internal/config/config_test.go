package config

import "testing"

type mapEnv map[string]string

func (m mapEnv) Getenv(key string) string { return m[key] }

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"JWT_SECRET": "j", "MESSAGE_SECRET": "m"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 5000 {
		t.Fatalf("expected default port 5000, got %d", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("expected default gin mode release, got %q", cfg.GinMode)
	}
	if cfg.ChatDBFile != "chatly.db" {
		t.Fatalf("expected default db file, got %q", cfg.ChatDBFile)
	}
}

func TestLoadConfigFromEnv_MissingSecrets(t *testing.T) {
	if _, err := LoadConfigFromEnv(mapEnv{"MESSAGE_SECRET": "m"}); err == nil {
		t.Fatalf("expected error for missing JWT_SECRET")
	}
	if _, err := LoadConfigFromEnv(mapEnv{"JWT_SECRET": "j"}); err == nil {
		t.Fatalf("expected error for missing MESSAGE_SECRET")
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{
		"JWT_SECRET":           "j",
		"MESSAGE_SECRET":       "m",
		"PORT":                 "1234",
		"TOKEN_EXPIRY_SECONDS": "60",
		"OPENAI_MODEL":         "gpt-4o",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 1234 {
		t.Fatalf("expected port 1234, got %d", cfg.Port)
	}
	if cfg.TokenExpiry.Seconds() != 60 {
		t.Fatalf("expected 60s expiry, got %v", cfg.TokenExpiry)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Fatalf("expected model override, got %q", cfg.OpenAIModel)
	}
}

func TestLoadConfigFromEnv_InvalidPort(t *testing.T) {
	_, err := LoadConfigFromEnv(mapEnv{"JWT_SECRET": "j", "MESSAGE_SECRET": "m", "PORT": "nope"})
	if err == nil {
		t.Fatalf("expected error")
	}
}
