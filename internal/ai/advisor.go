package ai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
)

// Advisor asks an OpenAI-compatible model (DeepSeek by default) to comment on
// a grid account's risk.
type Advisor struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *logger.Logger
}

func NewAdvisor(cfg *config.Config, log *logger.Logger) *Advisor {
	ocfg := openai.DefaultConfig(cfg.AI.APIKey)
	ocfg.BaseURL = cfg.AI.BaseURL

	return &Advisor{
		client:  openai.NewClientWithConfig(ocfg),
		model:   cfg.AI.Model,
		timeout: cfg.AITimeout(),
		logger:  log,
	}
}

func (a *Advisor) Comment(ctx context.Context, req *ReviewRequest) (*Review, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.logger.Info("sending review request",
		"window", req.Summary.Window.Kind,
		"grids", len(req.Grids))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildReviewPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ai API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ai returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	a.logger.Debug("AI raw response", "content", raw)

	review, err := ParseReview(raw)
	if err != nil {
		return nil, fmt.Errorf("parse AI response: %w", err)
	}
	return review, nil
}
