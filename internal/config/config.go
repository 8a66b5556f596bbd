// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/elitevogue/newsbot/internal/rss"
)

const categoryPrefix = "WP_CATEGORY_"

type Config struct {
	// Sources
	NewsAPIKey      string
	UseNewsAPI      bool
	NewsAPIQuery    string `validate:"required"`
	RSSFeeds        []string
	FeedsConfigPath string

	// Writers
	WriterProvider     string `validate:"oneof=auto openai gemini placeholder"`
	WriterStyle        string
	OpenAIAPIKey       string
	OpenAIModel        string `validate:"required"`
	GeminiAPIKey       string
	GeminiModel        string `validate:"required"`
	ImagenModel        string `validate:"required"`
	TranslationEnabled bool
	TargetLanguage     string `validate:"required,len=2"`

	// WordPress
	WPBaseURL     string `validate:"omitempty,url"`
	WPUser        string
	WPAppPassword string
	DryRun        bool
	CategoryIDs   map[string]int

	// Classifier
	CategoryRulesPath string

	// Run policy
	MaxArticlesPerRun   int `validate:"min=1"`
	CollapseDuplicates  bool
	EnrichContent       bool
	MaxTextGenerations  int `validate:"min=0"`
	MaxImageGenerations int `validate:"min=0"`

	// Storage
	DataDir         string `validate:"required"`
	ImagesDir       string `validate:"required"`
	ArticlesDir     string `validate:"required"`
	PublishedDBPath string `validate:"required"`
	StatsDBPath     string `validate:"required"`
	StorageDriver   string `validate:"oneof=file postgres"`
	DatabaseURL     string `validate:"required_if=StorageDriver postgres"`

	// Logging
	LogLevel string `validate:"oneof=DEBUG INFO WARN ERROR"`
	LogFile  string
	Debug    bool

	// Control bot and scheduling
	TelegramToken        string
	TelegramAllowedChats string
	Schedule             string `validate:"required"`

	// Monitoring
	EnableHTTPMonitoring bool
	MonitoringPort       int `validate:"min=1,max=65535"`

	// HTTP behaviour
	RequestTimeout time.Duration `validate:"gt=0"`
	RetryAttempts  int           `validate:"min=1"`
	RetryDelay     time.Duration `validate:"min=0"`
}

// Load reads the environment. Missing credentials are not an error: the
// affected collaborator degrades to its offline variant.
func Load() (*Config, error) {
	dataDir := getEnvOrDefault("DATA_DIR", "data")

	cfg := &Config{
		NewsAPIKey:      os.Getenv("NEWSAPI_KEY"),
		UseNewsAPI:      getEnvBool("USE_NEWSAPI", true),
		NewsAPIQuery:    getEnvOrDefault("NEWSAPI_QUERY", "fashion OR moda"),
		FeedsConfigPath: getEnvOrDefault("FEEDS_CONFIG_PATH", "configs/feeds.yaml"),

		WriterProvider:     strings.ToLower(getEnvOrDefault("WRITER_PROVIDER", "auto")),
		WriterStyle:        getEnvOrDefault("WRITER_STYLE", "luxury"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnvOrDefault("OPENAI_MODEL", "gpt-4.1-mini"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		ImagenModel:        getEnvOrDefault("IMAGEN_MODEL", "imagen-3.0-generate-002"),
		TranslationEnabled: getEnvBool("TRANSLATION_ENABLED", true),
		TargetLanguage:     strings.ToLower(getEnvOrDefault("TARGET_LANGUAGE", "es")),

		WPBaseURL:     os.Getenv("WP_BASE_URL"),
		WPUser:        os.Getenv("WP_USER"),
		WPAppPassword: os.Getenv("WP_APP_PASSWORD"),
		DryRun:        getEnvBool("DRY_RUN", false),

		CategoryRulesPath: os.Getenv("CATEGORY_RULES_PATH"),

		MaxArticlesPerRun:   getEnvIntOrDefault("MAX_ARTICLES_PER_RUN", 3),
		CollapseDuplicates:  getEnvBool("COLLAPSE_DUPLICATES", false),
		EnrichContent:       getEnvBool("ENRICH_CONTENT", false),
		MaxTextGenerations:  getEnvIntOrDefault("MAX_TEXT_GENERATIONS", 0),
		MaxImageGenerations: getEnvIntOrDefault("MAX_IMAGE_GENERATIONS", 0),

		DataDir:         dataDir,
		ImagesDir:       getEnvOrDefault("IMAGES_DIR", "images"),
		ArticlesDir:     getEnvOrDefault("ARTICLES_DIR", filepath.Join(dataDir, "articles")),
		PublishedDBPath: getEnvOrDefault("PUBLISHED_DB_PATH", filepath.Join(dataDir, "published.json")),
		StatsDBPath:     getEnvOrDefault("STATS_DB_PATH", filepath.Join(dataDir, "stats.json")),
		StorageDriver:   strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", "file")),
		DatabaseURL:     os.Getenv("DATABASE_URL"),

		LogLevel: strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO")),
		LogFile:  getEnvOrDefault("LOG_FILE", filepath.Join("logs", "bot.log")),
		Debug:    getEnvBool("DEBUG", false),

		TelegramToken:        os.Getenv("TELEGRAM_TOKEN"),
		TelegramAllowedChats: os.Getenv("TELEGRAM_ALLOWED_CHATS"),
		Schedule:             getEnvOrDefault("SCHEDULE", "0 */6 * * *"),

		EnableHTTPMonitoring: getEnvBool("ENABLE_HTTP_MONITORING", false),
		MonitoringPort:       getEnvIntOrDefault("MONITORING_PORT", 8080),

		RequestTimeout: getEnvDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		RetryAttempts:  getEnvIntOrDefault("RETRY_ATTEMPTS", 3),
		RetryDelay:     getEnvDurationOrDefault("RETRY_DELAY", 2*time.Second),
	}

	if cfg.Debug {
		cfg.LogLevel = "DEBUG"
	}

	fileFeeds, err := loadFeedFile(cfg.FeedsConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg.RSSFeeds = mergeFeeds(fileFeeds, splitList(os.Getenv("RSS_FEEDS")))

	ids, err := ParseCategoryIDs(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg.CategoryIDs = ids

	return cfg, cfg.Validate()
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// WordPressConfigured reports whether real publishing is possible.
func (c *Config) WordPressConfigured() bool {
	return c.WPBaseURL != "" && c.WPUser != "" && c.WPAppPassword != ""
}

// CategoryID maps a label to its WordPress id: the label's own id, else the
// fallback's id, else none.
func (c *Config) CategoryID(label, fallback string) (int, bool) {
	if id, ok := c.CategoryIDs[strings.ToLower(label)]; ok {
		return id, true
	}
	if id, ok := c.CategoryIDs[strings.ToLower(fallback)]; ok {
		return id, true
	}
	return 0, false
}

// ParseCategoryIDs collects WP_CATEGORY_<LABEL>=<id> variables and the
// WP_CATEGORY_IDS=label=id,... list from environ. The list wins on conflicts.
func ParseCategoryIDs(environ []string) (map[string]int, error) {
	ids := make(map[string]int)
	var list string

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, categoryPrefix) {
			continue
		}
		if key == categoryPrefix+"IDS" {
			list = value
			continue
		}
		label := strings.ToLower(strings.TrimPrefix(key, categoryPrefix))
		if label == "" || strings.TrimSpace(value) == "" {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid category id %q", key, value)
		}
		ids[label] = id
	}

	for _, pair := range splitList(list) {
		label, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("WP_CATEGORY_IDS: expected label=id, got %q", pair)
		}
		id, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("WP_CATEGORY_IDS: invalid category id %q", value)
		}
		ids[strings.ToLower(strings.TrimSpace(label))] = id
	}
	return ids, nil
}

// CategoryLabels returns the mapped labels in sorted order.
func (c *Config) CategoryLabels() []string {
	out := make([]string, 0, len(c.CategoryIDs))
	for l := range c.CategoryIDs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// loadFeedFile tolerates a missing file. A file that exists but does not
// parse is an error.
func loadFeedFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	feeds, err := rss.LoadFeeds(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FEEDS_CONFIG_PATH: %w", err)
	}
	return feeds, nil
}

func mergeFeeds(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, f := range l {
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s") or plain seconds ("90").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
