package classify

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/elitevogue/newsbot/internal/news"
)

// DefaultFallback is the label returned when no rule matches the built-in table.
const DefaultFallback = "moda"

// Rule maps a label to the keywords that select it.
type Rule struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Classifier assigns the first matching label. Rule order matters.
type Classifier struct {
	rules    []Rule
	fallback string
}

// New builds a classifier. Keywords are case-folded once here; empty ones are dropped.
func New(rules []Rule, fallback string) *Classifier {
	folded := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			k = fold(strings.TrimSpace(k))
			if k == "" {
				continue
			}
			kws = append(kws, k)
		}
		folded = append(folded, Rule{Label: r.Label, Keywords: kws})
	}
	return &Classifier{rules: folded, fallback: fallback}
}

// Default returns the editorial table used when no rules file is configured.
func Default() *Classifier {
	return New(DefaultRules(), DefaultFallback)
}

// Classify joins the fields with spaces and returns the label of the first rule
// with a keyword contained in the text, or the fallback.
func (c *Classifier) Classify(title, description, content string) string {
	text := fold(title + " " + description + " " + content)
	for _, r := range c.rules {
		for _, k := range r.Keywords {
			if strings.Contains(text, k) {
				return r.Label
			}
		}
	}
	return c.fallback
}

// ClassifyItem classifies a news item by its title, description and content.
func (c *Classifier) ClassifyItem(it news.Item) string {
	return c.Classify(it.Title, it.Description, it.Content)
}

// Labels returns every label in rule order followed by the fallback.
func (c *Classifier) Labels() []string {
	out := make([]string, 0, len(c.rules)+1)
	seen := make(map[string]bool)
	for _, r := range c.rules {
		if !seen[r.Label] {
			seen[r.Label] = true
			out = append(out, r.Label)
		}
	}
	if c.fallback != "" && !seen[c.fallback] {
		out = append(out, c.fallback)
	}
	return out
}

// Fallback returns the label used when nothing matches.
func (c *Classifier) Fallback() string {
	return c.fallback
}

// Casers keep state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

type rulesFile struct {
	Fallback string `yaml:"fallback"`
	Rules    []Rule `yaml:"rules"`
}

// LoadRules reads an ordered rule table from a YAML file:
//
//	fallback: moda
//	rules:
//	  - label: belleza
//	    keywords: [makeup, skincare]
func LoadRules(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s has no rules", path)
	}
	for i, r := range f.Rules {
		if strings.TrimSpace(r.Label) == "" {
			return nil, fmt.Errorf("rule %d has no label", i)
		}
	}
	if f.Fallback == "" {
		f.Fallback = DefaultFallback
	}
	return New(f.Rules, f.Fallback), nil
}

// DefaultRules is the built-in editorial table, checked in this order.
func DefaultRules() []Rule {
	return []Rule{
		{Label: "portadas", Keywords: []string{
			"portada", "cover", "editorial photo", "front page", "producción",
			"modelo destacada", "shoot", "sesión fotográfica",
		}},
		{Label: "moda", Keywords: []string{
			"moda", "fashion", "outfit", "vestido", "colección", "desfile",
			"runway", "silhouette", "estilismo", "look", "prenda",
		}},
		{Label: "tendencias", Keywords: []string{
			"tendencia", "trend", "temporada", "color del año", "pronóstico",
			"futuro de la moda", "trend report", "forecast", "estará de moda",
		}},
		{Label: "belleza", Keywords: []string{
			"maquillaje", "makeup", "skincare", "belleza", "cosmética",
			"fragancia", "perfume", "piel", "labial", "cuidado",
		}},
		{Label: "editorial", Keywords: []string{
			"reflexión", "poético", "crónica", "análisis profundo", "ensayo",
			"narrativa", "metáfora", "estética conceptual", "observación", "sensibilidad",
		}},
		{Label: "lifestyle", Keywords: []string{
			"lujo", "viaje", "lifestyle", "experiencia", "inspiración",
			"estilo de vida", "wellness", "vivir", "cultura moderna",
		}},
		{Label: "cultura_visual", Keywords: []string{
			"visual", "estética", "fotografía", "imagen", "simbolismo",
			"arte", "composición", "color", "sombra", "contraste",
		}},
		{Label: "entrevistas", Keywords: []string{
			"entrevista", "dialogo", "conversación", "perfil", "historia de vida",
			"modelo", "diseñador", "creador", "hablamos con", "nos cuenta",
		}},
	}
}
