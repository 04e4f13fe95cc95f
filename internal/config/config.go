package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Serper    SerperConfig    `yaml:"serper" mapstructure:"serper"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Merge     MergeConfig     `yaml:"merge" mapstructure:"merge"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	TextModel   string `yaml:"text_model" mapstructure:"text_model"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SerperConfig holds the web search API settings.
type SerperConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CacheConfig configures the on-disk content cache.
type CacheConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// FetchConfig configures the tiered content fetcher.
type FetchConfig struct {
	TextThreshold   int    `yaml:"text_threshold" mapstructure:"text_threshold"`
	VisionThreshold int    `yaml:"vision_threshold" mapstructure:"vision_threshold"`
	HybridThreshold int    `yaml:"hybrid_threshold" mapstructure:"hybrid_threshold"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTextChars    int    `yaml:"max_text_chars" mapstructure:"max_text_chars"`
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
}

// RenderConfig configures headless browser rendering and screenshot tiling.
type RenderConfig struct {
	TimeoutSecs   int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TileHeight    int `yaml:"tile_height" mapstructure:"tile_height"`
	TileOverlap   int `yaml:"tile_overlap" mapstructure:"tile_overlap"`
	MaxTiles      int `yaml:"max_tiles" mapstructure:"max_tiles"`
	ViewportWidth int `yaml:"viewport_width" mapstructure:"viewport_width"`
}

// ExtractConfig configures structured LLM extraction.
type ExtractConfig struct {
	MaxRetries     int   `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffSecs    []int `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	MaxPromptChars int   `yaml:"max_prompt_chars" mapstructure:"max_prompt_chars"`
}

// Backoff returns the retry delay sequence.
func (c ExtractConfig) Backoff() []time.Duration {
	out := make([]time.Duration, len(c.BackoffSecs))
	for i, s := range c.BackoffSecs {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// MergeConfig configures asset reconciliation.
type MergeConfig struct {
	// Policy is "enrich_only" (detail pages may only enrich overview assets)
	// or "additive" (detail pages may introduce new assets).
	Policy string `yaml:"policy" mapstructure:"policy"`
}

// BatchConfig bounds run-wide concurrency and page counts.
type BatchConfig struct {
	MaxConcurrentCompanies  int `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies"`
	MaxConcurrentFetches    int `yaml:"max_concurrent_fetches" mapstructure:"max_concurrent_fetches"`
	MaxConcurrentEnrichment int `yaml:"max_concurrent_enrichment" mapstructure:"max_concurrent_enrichment"`
	MaxDrugPages            int `yaml:"max_drug_pages" mapstructure:"max_drug_pages"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("anthropic.text_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("cache.dir", ".cache")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("fetch.text_threshold", 500)
	v.SetDefault("fetch.vision_threshold", 300)
	v.SetDefault("fetch.hybrid_threshold", 3000)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_text_chars", 50000)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("render.timeout_secs", 60)
	v.SetDefault("render.tile_height", 900)
	v.SetDefault("render.tile_overlap", 100)
	v.SetDefault("render.max_tiles", 5)
	v.SetDefault("render.viewport_width", 1280)
	v.SetDefault("extract.max_retries", 3)
	v.SetDefault("extract.backoff_secs", []int{1, 3, 10})
	v.SetDefault("extract.max_prompt_chars", 40000)
	v.SetDefault("merge.policy", "enrich_only")
	v.SetDefault("batch.max_concurrent_companies", 3)
	v.SetDefault("batch.max_concurrent_fetches", 5)
	v.SetDefault("batch.max_concurrent_enrichment", 3)
	v.SetDefault("batch.max_drug_pages", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given mode ("scan" or "serve").
// Collects all problems into one error so the operator can fix them at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "scan":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "serve":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.MaxConcurrentCompanies < 1 || c.Batch.MaxConcurrentCompanies > 50 {
		problems = append(problems, "batch.max_concurrent_companies must be between 1 and 50")
	}
	if c.Batch.MaxConcurrentFetches < 1 || c.Batch.MaxConcurrentFetches > 50 {
		problems = append(problems, "batch.max_concurrent_fetches must be between 1 and 50")
	}
	if c.Fetch.TextThreshold < c.Fetch.VisionThreshold {
		problems = append(problems, "fetch.text_threshold must be >= fetch.vision_threshold")
	}
	if c.Merge.Policy != "enrich_only" && c.Merge.Policy != "additive" {
		problems = append(problems, "merge.policy must be enrich_only or additive")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger builds and installs the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
