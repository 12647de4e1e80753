package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrEmptyResponse is returned when the API answers without choices
var ErrEmptyResponse = errors.New("no response from OpenAI")

// Config configures the OpenAI adapters
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	VisionModel       string
	Temperature       float32
	MaxTokens         int
	RequestsPerMinute int
}

// Client wraps the OpenAI API with a shared request limiter and prompts
type Client struct {
	api     *openai.Client
	limiter *rate.Limiter
	prompts *PromptConfig
	cfg     Config
	logger  *zap.Logger
}

// NewClient creates a client. A nil prompts uses the built-in prompts.
func NewClient(cfg Config, prompts *PromptConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if prompts == nil {
		var err error
		if prompts, err = DefaultPrompts(); err != nil {
			return nil, err
		}
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		limiter: rate.NewLimiter(limit, 1),
		prompts: prompts,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// complete waits for the limiter and returns the first choice's content
func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("OpenAI API call failed", zap.String("model", req.Model), zap.Error(err))
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("OpenAI response received",
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// jsonFormat asks the API for a JSON object response
var jsonFormat = &openai.ChatCompletionResponseFormat{
	Type: openai.ChatCompletionResponseFormatTypeJSONObject,
}
