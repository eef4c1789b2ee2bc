package main

import (
	"fmt"
	"os"

	"chatly-server/internal/auth"
	"chatly-server/internal/bot"
	"chatly-server/internal/config"
	"chatly-server/internal/crypto"
	"chatly-server/internal/server"
	"chatly-server/internal/store"
	"chatly-server/internal/userstore"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	gin.SetMode(cfg.GinMode)

	codec, err := crypto.NewCodec(cfg.MessageSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("message codec init failed")
	}

	users, err := userstore.New(cfg.ChatDBFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.ChatDBFile).Msg("user store init failed")
	}
	defer users.Close()

	st := store.NewWithOptions(store.Options{
		StateFile: cfg.ChatStateFile,
		Logger:    log,
	})

	var generator bot.Generator
	if cfg.OpenAIAPIKey != "" {
		g, err := bot.NewOpenAIGenerator(bot.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("reply generator init failed")
		}
		generator = g
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, bot replies use the fallback text")
	}

	tokenCfg := auth.TokenConfig{
		Secret: cfg.JWTSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "chatly-server",
	}

	router := server.NewRouter(server.Deps{
		Store:       st,
		Users:       users,
		Codec:       codec,
		Generator:   generator,
		TokenConfig: tokenCfg,
		Logger:      log,
	})

	log.Info().Str("addr", fmt.Sprintf(":%d", cfg.Port)).Msg("listening")
	if err := server.Run(cfg, router); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
