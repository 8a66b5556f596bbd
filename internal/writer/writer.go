// Package writer turns a news item into an editorial article in Spanish.
package writer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/elitevogue/newsbot/internal/news"
)

// Style selects the editorial voice.
type Style string

const (
	Luxury     Style = "luxury"
	Streetwear Style = "streetwear"
)

// ParseStyle maps a configuration value to a style. Unknown values are Luxury.
func ParseStyle(s string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case Streetwear:
		return Streetwear
	default:
		return Luxury
	}
}

// Request carries the per-run rewrite options.
type Request struct {
	Style              Style
	TranslationEnabled bool
	TargetLanguage     string
}

// Article is the rewritten piece ready for publishing.
type Article struct {
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle"`
	RawText         string `json:"raw_text"`
	HTMLBody        string `json:"html_body"`
	MetaDescription string `json:"meta_description"`
}

// Writer rewrites items. Available is false for the placeholder.
type Writer interface {
	Name() string
	Available() bool
	Rewrite(ctx context.Context, it news.Item, req Request) (*Article, error)
}

// Choose picks the writer for provider ("auto", "openai", "gemini" or
// "placeholder"). Auto takes the first available candidate. Anything that is
// not available resolves to the placeholder.
func Choose(provider string, logger *slog.Logger, candidates ...Writer) Writer {
	if logger == nil {
		logger = slog.Default()
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	placeholder := Placeholder{}

	for _, w := range candidates {
		if w == nil || !w.Available() {
			continue
		}
		if provider == "" || provider == "auto" || provider == w.Name() {
			logger.Info("writer selected", "provider", w.Name())
			return w
		}
	}
	if provider != "placeholder" {
		logger.Warn("no text generation credentials, writer runs in placeholder mode", "provider", provider)
	}
	return placeholder
}
