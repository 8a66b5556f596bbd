package writer

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
)

const (
	fallbackTitle  = "Artículo de moda"
	metaMaxChars   = 155
	metaEllipsis   = "…"
	metaStripChars = "#*/`"
)

var md = goldmark.New()

// FromMarkdown builds an article from a model answer. The first heading line
// becomes the title and the first "##" line the subtitle.
func FromMarkdown(raw, sourceTitle string) *Article {
	title := sourceTitle
	if strings.TrimSpace(title) == "" {
		title = fallbackTitle
	}
	subtitle := ""

	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			if t := headingText(line); t != "" {
				title = t
			}
			break
		}
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "##") {
			subtitle = headingText(line)
			break
		}
	}

	return &Article{
		Title:           title,
		Subtitle:        subtitle,
		RawText:         raw,
		HTMLBody:        RenderHTML(raw),
		MetaDescription: MetaDescription(raw),
	}
}

func headingText(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "# "))
}

// MetaDescription strips markdown markers and keeps the first 155 characters
// followed by an ellipsis.
func MetaDescription(raw string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(metaStripChars, r) || r == '\n' {
			return ' '
		}
		return r
	}, raw)
	runes := []rune(clean)
	if len(runes) > metaMaxChars {
		runes = runes[:metaMaxChars]
	}
	return strings.TrimSpace(string(runes)) + metaEllipsis
}

// RenderHTML converts markdown to HTML. On a render error the text is
// returned with paragraph breaks as <br> tags.
func RenderHTML(raw string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(raw), &buf); err != nil {
		return strings.ReplaceAll(raw, "\n\n", "<br><br>")
	}
	return buf.String()
}
