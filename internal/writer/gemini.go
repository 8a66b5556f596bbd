package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/elitevogue/newsbot/internal/gemini"
	"github.com/elitevogue/newsbot/internal/news"
	"github.com/elitevogue/newsbot/internal/translate"
)

// Generator returns a JSON answer for a prompt. *gemini.Client implements it.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

const articleSchema = `{
  "type": "object",
  "required": ["title", "subtitle", "body_markdown"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "subtitle": {"type": "string"},
    "body_markdown": {"type": "string", "minLength": 1}
  }
}`

var articleSchemaLoader = gojsonschema.NewStringLoader(articleSchema)

type geminiAnswer struct {
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	BodyMarkdown string `json:"body_markdown"`
}

// Gemini rewrites items through a JSON-mode model.
type Gemini struct {
	gen    Generator
	logger *slog.Logger
}

// NewGemini wraps gen. A nil generator yields an unavailable writer.
func NewGemini(gen Generator, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{gen: gen, logger: logger}
}

func (w *Gemini) Name() string    { return "gemini" }
func (w *Gemini) Available() bool { return w.gen != nil }

func (w *Gemini) Rewrite(ctx context.Context, it news.Item, req Request) (*Article, error) {
	if w.gen == nil {
		return nil, errors.New("gemini writer not configured")
	}

	prompt := BuildPrompt(it, req) +
		"\nResponde únicamente con un objeto JSON con las claves \"title\" (título), " +
		"\"subtitle\" (subtítulo) y \"body_markdown\" (cuerpo del artículo en markdown, sin repetir el título).\n"

	w.logger.Info("requesting editorial text", "provider", "gemini", "title", it.Title)
	raw, err := w.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return ParseGeminiAnswer(raw, it.Title)
}

// ParseGeminiAnswer validates the JSON answer and builds the article.
func ParseGeminiAnswer(raw, sourceTitle string) (*Article, error) {
	raw = gemini.StripCodeFence(raw)

	result, err := gojsonschema.Validate(articleSchemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("gemini answer is not JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("gemini answer invalid: %s", strings.Join(msgs, "; "))
	}

	var ans geminiAnswer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return nil, fmt.Errorf("decode gemini answer: %w", err)
	}

	title := translate.SanitizeAIText(ans.Title)
	subtitle := translate.SanitizeAIText(ans.Subtitle)
	body := translate.SanitizeAIText(ans.BodyMarkdown)

	md := body
	if !strings.HasPrefix(strings.TrimSpace(body), "#") {
		head := "# " + title + "\n\n"
		if subtitle != "" {
			head += "## " + subtitle + "\n\n"
		}
		md = head + body
	}

	a := FromMarkdown(md, sourceTitle)
	a.Title = title
	a.Subtitle = subtitle
	return a, nil
}
