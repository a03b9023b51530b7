package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgallion1/manualgest/internal/chunker"
	"github.com/dgallion1/manualgest/internal/ingest"
	"github.com/dgallion1/manualgest/internal/layout"
	"github.com/dgallion1/manualgest/internal/llm"
)

type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`
	CaptionModel   string        `mapstructure:"caption_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	MaxRetries     int           `mapstructure:"max_retries"`
	StatsWindow    time.Duration `mapstructure:"stats_window"`

	AzureEndpoint   string `mapstructure:"azure_endpoint"`
	AzureAPIKey     string `mapstructure:"azure_api_key"`
	AzureAPIVersion string `mapstructure:"azure_api_version"`

	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
}

type QdrantConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

type ExtractConfig struct {
	BandTop           float64 `mapstructure:"band_top"`
	BandBottom        float64 `mapstructure:"band_bottom"`
	HeaderMinFontSize float64 `mapstructure:"header_min_font_size"`
	Captions          bool    `mapstructure:"captions"`
}

type IngestConfig struct {
	EmbeddingSize      int           `mapstructure:"embedding_size"`
	MaxEmbedTokens     int           `mapstructure:"max_embed_tokens"`
	UpsertBatchSize    int           `mapstructure:"upsert_batch_size"`
	MaxConcurrentEmbed int           `mapstructure:"max_concurrent_embed"`
	Retries            int           `mapstructure:"retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
}

type Config struct {
	Port string `mapstructure:"port"`

	// Auth
	APIKey string `mapstructure:"api_key"`

	// Worker pool
	WorkerCount  int `mapstructure:"worker_count"`
	MaxQueueSize int `mapstructure:"max_queue_size"`

	// Upload limits
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// Job state
	JobTTL    time.Duration `mapstructure:"job_ttl"`
	OutputDir string        `mapstructure:"output_dir"`

	Extract ExtractConfig `mapstructure:"extract"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Qdrant  QdrantConfig  `mapstructure:"qdrant"`
}

// Mode names the entry point a Config is validated for.
type Mode string

const (
	ModeServe   Mode = "serve"
	ModeExtract Mode = "extract"
	ModeIngest  Mode = "ingest"
	ModeSearch  Mode = "search"
)

var defaults = map[string]any{
	"port":             "8090",
	"worker_count":     2,
	"max_queue_size":   100,
	"max_upload_bytes": int64(52428800), // 50MB
	"job_ttl":          time.Hour,
	"output_dir":       "output",

	"extract.band_top":    layout.DefaultBand.Top,
	"extract.band_bottom": layout.DefaultBand.Bottom,
	"extract.captions":    true,

	"ingest.embedding_size":       3072,
	"ingest.max_embed_tokens":     8000,
	"ingest.upsert_batch_size":    64,
	"ingest.max_concurrent_embed": 4,
	"ingest.retries":              3,
	"ingest.retry_delay":          time.Second,

	"llm.provider":          llm.ProviderAzure,
	"llm.max_retries":       2,
	"llm.stats_window":      time.Hour,
	"llm.azure_api_version": "2024-10-21",

	"qdrant.url": "http://localhost:6333",
}

// envBindings maps config keys to environment variables, first match wins.
var envBindings = map[string][]string{
	"port":             {"PORT"},
	"api_key":          {"MANUALGEST_API_KEY"},
	"worker_count":     {"WORKER_COUNT"},
	"max_queue_size":   {"MAX_QUEUE_SIZE"},
	"max_upload_bytes": {"MAX_UPLOAD_BYTES"},
	"job_ttl":          {"JOB_TTL"},
	"output_dir":       {"OUTPUT_DIR"},

	"extract.header_min_font_size": {"HEADER_MIN_FONT_SIZE"},
	"extract.captions":             {"CAPTIONS_ENABLED"},

	"ingest.embedding_size":       {"EMBEDDING_SIZE"},
	"ingest.max_embed_tokens":     {"MAX_EMBED_TOKENS"},
	"ingest.upsert_batch_size":    {"UPSERT_BATCH_SIZE"},
	"ingest.max_concurrent_embed": {"MAX_CONCURRENT_EMBED"},
	"ingest.retries":              {"INGEST_RETRIES"},

	"llm.provider":          {"LLM_PROVIDER"},
	"llm.caption_model":     {"LLM_CAPTION_MODEL", "AZURE_OPENAI_CAPTION_DEPLOYMENT"},
	"llm.embedding_model":   {"LLM_EMBEDDING_MODEL", "AZURE_OPENAI_EMBEDDING_DEPLOYMENT"},
	"llm.azure_endpoint":    {"AZURE_OPENAI_ENDPOINT"},
	"llm.azure_api_key":     {"AZURE_OPENAI_API_KEY"},
	"llm.azure_api_version": {"AZURE_OPENAI_API_VERSION"},
	"llm.openai_api_key":    {"OPENAI_API_KEY"},
	"llm.openai_base_url":   {"OPENAI_BASE_URL"},
	"llm.gemini_api_key":    {"GEMINI_API_KEY"},

	"qdrant.url":     {"QDRANT_URL"},
	"qdrant.api_key": {"QDRANT_API_KEY"},
}

// Load reads defaults, then the optional config file, then the
// environment. An empty configFile looks for ./manualgest.yaml; a missing
// file is not an error.
func Load(configFile string) (Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("manualgest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.clamp()
	return cfg, nil
}

// clamp replaces non-positive numeric settings with their defaults.
func (c *Config) clamp() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = defaults["worker_count"].(int)
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaults["max_queue_size"].(int)
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = defaults["max_upload_bytes"].(int64)
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
	if c.Ingest.EmbeddingSize <= 0 {
		c.Ingest.EmbeddingSize = defaults["ingest.embedding_size"].(int)
	}
	if c.Ingest.MaxEmbedTokens <= 0 {
		c.Ingest.MaxEmbedTokens = defaults["ingest.max_embed_tokens"].(int)
	}
	if c.Ingest.UpsertBatchSize <= 0 {
		c.Ingest.UpsertBatchSize = defaults["ingest.upsert_batch_size"].(int)
	}
	if c.Ingest.MaxConcurrentEmbed <= 0 {
		c.Ingest.MaxConcurrentEmbed = defaults["ingest.max_concurrent_embed"].(int)
	}
	if c.Ingest.Retries <= 0 {
		c.Ingest.Retries = defaults["ingest.retries"].(int)
	}
	if c.Ingest.RetryDelay <= 0 {
		c.Ingest.RetryDelay = time.Second
	}
	if c.LLM.MaxRetries < 0 {
		c.LLM.MaxRetries = 0
	}
	if c.LLM.StatsWindow <= 0 {
		c.LLM.StatsWindow = time.Hour
	}
}

// Validate checks the settings needed to run the HTTP service.
func (c Config) Validate() error {
	return c.ValidateFor(ModeServe)
}

// ValidateFor checks the settings needed by mode.
func (c Config) ValidateFor(mode Mode) error {
	if c.Extract.BandTop >= c.Extract.BandBottom {
		return fmt.Errorf("extract.band_top (%v) must be above extract.band_bottom (%v)", c.Extract.BandTop, c.Extract.BandBottom)
	}

	needCaptions := c.Extract.Captions && (mode == ModeServe || mode == ModeExtract)
	needEmbeddings := mode == ModeServe || mode == ModeIngest || mode == ModeSearch

	if mode == ModeServe && c.APIKey == "" {
		return fmt.Errorf("MANUALGEST_API_KEY is required")
	}
	if needEmbeddings {
		if strings.EqualFold(c.LLM.Provider, llm.ProviderNoop) {
			return fmt.Errorf("llm provider %q cannot produce embeddings", c.LLM.Provider)
		}
		if c.Qdrant.URL == "" {
			return fmt.Errorf("QDRANT_URL is required")
		}
	}
	if needCaptions || needEmbeddings {
		return c.validateProvider()
	}
	return nil
}

func (c Config) validateProvider() error {
	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderAzure:
		if c.LLM.AzureEndpoint == "" {
			return fmt.Errorf("AZURE_OPENAI_ENDPOINT is required")
		}
		if c.LLM.AzureAPIKey == "" {
			return fmt.Errorf("AZURE_OPENAI_API_KEY is required")
		}
	case llm.ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	case llm.ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	case llm.ProviderNoop:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}

// LLMOptions returns the provider settings for llm.New.
func (c Config) LLMOptions() llm.Options {
	opts := llm.Options{
		Provider:       c.LLM.Provider,
		CaptionModel:   c.LLM.CaptionModel,
		EmbeddingModel: c.LLM.EmbeddingModel,
		MaxRetries:     c.LLM.MaxRetries,
	}
	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderAzure:
		opts.APIKey = c.LLM.AzureAPIKey
		opts.Endpoint = c.LLM.AzureEndpoint
		opts.APIVersion = c.LLM.AzureAPIVersion
	case llm.ProviderOpenAI:
		opts.APIKey = c.LLM.OpenAIAPIKey
		opts.BaseURL = c.LLM.OpenAIBaseURL
	case llm.ProviderGemini:
		opts.APIKey = c.LLM.GeminiAPIKey
	}
	return opts
}

// ChunkerConfig returns extractor settings writing images under imageDir.
func (c Config) ChunkerConfig(imageDir string) chunker.Config {
	cfg := chunker.DefaultConfig()
	cfg.Band = layout.Band{Top: c.Extract.BandTop, Bottom: c.Extract.BandBottom}
	cfg.HeaderMinFontSize = c.Extract.HeaderMinFontSize
	if imageDir != "" {
		cfg.ImageDir = imageDir
	}
	return cfg
}

// IngestOptions returns ingestion settings.
func (c Config) IngestOptions() ingest.Config {
	return ingest.Config{
		EmbeddingSize:      c.Ingest.EmbeddingSize,
		MaxEmbedTokens:     c.Ingest.MaxEmbedTokens,
		UpsertBatchSize:    c.Ingest.UpsertBatchSize,
		MaxConcurrentEmbed: c.Ingest.MaxConcurrentEmbed,
		Retries:            c.Ingest.Retries,
		RetryDelay:         c.Ingest.RetryDelay,
	}
}
