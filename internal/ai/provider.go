package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 300
)

var (
	ErrNoModel       = errors.New("no AI model configured")
	ErrEmptyResponse = errors.New("AI returned an empty answer")
)

type Config struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
}

// Provider answers questions in a player's voice through an OpenAI
// compatible chat completions endpoint.
type Provider struct {
	client *openai.Client
	cfg    Config
}

func NewProvider(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Provider{client: openai.NewClientWithConfig(clientConfig), cfg: cfg}
}

// GenerateAnswer asks model, or the configured default, to answer question
// under systemPrompt.
func (p *Provider) GenerateAnswer(ctx context.Context, question, systemPrompt, model string) (string, error) {
	if model = strings.TrimSpace(model); model == "" {
		model = p.cfg.DefaultModel
	}
	if model == "" {
		return "", ErrNoModel
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion with %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices from %s", ErrEmptyResponse, model)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: blank content from %s", ErrEmptyResponse, model)
	}

	log.Debug().Str("model", model).Dur("took", time.Since(start)).Int("length", len(content)).
		Msg("[GenerateAnswer] AI answer received")
	return content, nil
}
