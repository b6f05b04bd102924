package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/Zuo-Peng/cc-analytics/internal/config"
)

var ErrNoAPIKey = errors.New("no LLM API key configured; set OPENROUTER_API_KEY or [llm] api_key")

// LLMClient is the part of the OpenAI client used here.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewClient returns a client for the configured OpenAI-compatible endpoint.
func NewClient(cfg config.LLMConfig) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(c), nil
}

type Result struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Run sends prompt as a single user message and returns the first choice.
func Run(ctx context.Context, client LLMClient, model, prompt string) (Result, error) {
	if client == nil {
		return Result{}, fmt.Errorf("LLM client is nil")
	}
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("LLM request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("LLM returned no choices")
	}
	res := Result{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if res.Model == "" {
		res.Model = model
	}
	return res, nil
}
