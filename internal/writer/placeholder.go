package writer

import (
	"context"
	"strings"

	"github.com/elitevogue/newsbot/internal/news"
)

const placeholderSubtitle = "Subtítulo de ejemplo"

// Placeholder produces a local stand-in article so the pipeline runs without
// text generation credentials.
type Placeholder struct{}

func (Placeholder) Name() string    { return "placeholder" }
func (Placeholder) Available() bool { return false }

func (Placeholder) Rewrite(ctx context.Context, it news.Item, req Request) (*Article, error) {
	title := it.Title
	if strings.TrimSpace(title) == "" {
		title = fallbackTitle
	}
	body := "# " + title + "\n\n" +
		"## " + placeholderSubtitle + "\n\n" +
		"Este artículo es un marcador de posición generado localmente. " +
		"Configura OPENAI_API_KEY para obtener texto editorial real."

	return &Article{
		Title:           title,
		Subtitle:        placeholderSubtitle,
		RawText:         body,
		HTMLBody:        RenderHTML(body),
		MetaDescription: title,
	}, nil
}
