package bot

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// Fallback is sent in place of a bot reply when the generator fails or none
// is configured. The conversation proceeds; it never surfaces as an error.
const Fallback = "Sorry, I'm having trouble answering right now. Please try again."

const systemPrompt = "You are a friendly chat assistant. Keep answers short and conversational."

// Generator produces the bot's reply to one user message.
type Generator interface {
	Reply(ctx context.Context, message string) (string, error)
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type OpenAIGenerator struct {
	client  openai.Client
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

func NewOpenAIGenerator(cfg OpenAIConfig, log zerolog.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing API key")
	}
	if cfg.Model == "" {
		return nil, errors.New("missing model")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIGenerator{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
		log:     log.With().Str("component", "bot").Logger(),
	}, nil
}

func (g *OpenAIGenerator) Reply(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		g.log.Warn().Err(err).Msg("completion request failed")
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}
