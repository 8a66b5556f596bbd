package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/elitevogue/newsbot/internal/news"
	"github.com/elitevogue/newsbot/internal/translate"
)

const DefaultOpenAIModel = "gpt-4.1-mini"

// OpenAI rewrites items with the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI returns a writer for apiKey. baseURL overrides the API endpoint
// when non-empty. A missing key yields an unavailable writer.
func NewOpenAI(apiKey, model, baseURL string, logger *slog.Logger) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &OpenAI{model: model, logger: logger}
	if apiKey == "" {
		return w
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	w.client = openai.NewClientWithConfig(cfg)
	return w
}

func (w *OpenAI) Name() string    { return "openai" }
func (w *OpenAI) Available() bool { return w.client != nil }

func (w *OpenAI) Rewrite(ctx context.Context, it news.Item, req Request) (*Article, error) {
	if w.client == nil {
		return nil, errors.New("openai writer not configured")
	}

	w.logger.Info("requesting editorial text", "provider", "openai", "model", w.model, "title", it.Title)
	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(it, req),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	raw := translate.SanitizeAIText(resp.Choices[0].Message.Content)
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty response from OpenAI")
	}
	return FromMarkdown(raw, it.Title), nil
}
