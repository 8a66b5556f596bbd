// Package illustrate generates a cover image for an article.
package illustrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/elitevogue/newsbot/internal/news"
	"github.com/elitevogue/newsbot/internal/writer"
)

const DefaultModel = "imagen-3.0-generate-002"

// Illustrator returns the path of a generated image.
type Illustrator interface {
	Available() bool
	Illustrate(ctx context.Context, it news.Item, style writer.Style) (string, error)
}

// Disabled never produces an image.
type Disabled struct{}

func (Disabled) Available() bool { return false }

func (Disabled) Illustrate(ctx context.Context, it news.Item, style writer.Style) (string, error) {
	return "", nil
}

// Imagen generates images through the Gemini API image models.
type Imagen struct {
	client    *genai.Client
	model     string
	outputDir string
	logger    *slog.Logger
}

type ImagenConfig struct {
	APIKey    string
	Model     string
	OutputDir string
	Timeout   time.Duration
	// BaseURL overrides the API endpoint when non-empty.
	BaseURL string
}

// NewImagen returns an unavailable illustrator when no API key is set.
func NewImagen(ctx context.Context, cfg ImagenConfig, logger *slog.Logger) (*Imagen, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Imagen{model: cfg.Model, outputDir: cfg.OutputDir, logger: logger}
	if cfg.APIKey == "" {
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create imagen client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Imagen) Available() bool { return g.client != nil }

// Prompt builds the image prompt for the article's style.
func Prompt(it news.Item, style writer.Style) string {
	var b strings.Builder
	if style == writer.Streetwear {
		b.WriteString("Streetwear editorial photography, urban setting, fresh and modern aesthetics, " +
			"dynamic composition, natural light, stylish outfits. ")
	} else {
		b.WriteString("Editorial fashion photography, luxury magazine style, dramatic lighting, " +
			"high-end wardrobe, premium textures, elegant composition. ")
	}
	b.WriteString("High quality, professional studio feel, no recognizable faces, can be conceptual: " +
		"runway silhouettes, fabrics in motion, accessories, or urban details depending on context. ")
	title := it.Title
	if strings.TrimSpace(title) == "" {
		title = "fashion"
	}
	b.WriteString("Inspired by: " + title)
	return b.String()
}

// Illustrate generates one image and stores it as img_<fingerprint>.<ext>.
func (g *Imagen) Illustrate(ctx context.Context, it news.Item, style writer.Style) (string, error) {
	if !g.Available() {
		return "", nil
	}
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create images dir: %w", err)
	}

	g.logger.Info("generating image", "model", g.model, "title", it.Title)
	resp, err := g.client.Models.GenerateImages(ctx, g.model, Prompt(it, style), &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return "", fmt.Errorf("imagen: %w", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return "", errors.New("imagen returned no image")
	}
	generated := resp.GeneratedImages[0]
	if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		if generated.RAIFilteredReason != "" {
			return "", fmt.Errorf("imagen filtered the image: %s", generated.RAIFilteredReason)
		}
		return "", errors.New("imagen returned an empty image")
	}

	name := "img_" + fileStem(it) + extension(generated.Image.MIMEType)
	path := filepath.Join(g.outputDir, name)
	if err := os.WriteFile(path, generated.Image.ImageBytes, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	g.logger.Info("image saved", "path", path)
	return path, nil
}

func fileStem(it news.Item) string {
	if it.Fingerprint != "" {
		return it.Fingerprint
	}
	return it.ComputeFingerprint()
}

func extension(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
