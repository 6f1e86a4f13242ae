package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Parsing methods select the document extraction chain.
const (
	ParsingMethodAI  = "ai"
	ParsingMethodOCR = "ocr"
)

// Dispatch modes of the pipeline coordinator.
const (
	ModeAsync = "async"
	ModeSync  = "sync"
)

// Config holds the full application configuration.
type Config struct {
	ProPublica ProPublicaConfig `yaml:"propublica" mapstructure:"propublica"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Monitor    MonitorConfig    `yaml:"monitor" mapstructure:"monitor"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ProPublicaConfig configures the Nonprofit Explorer directory API.
type ProPublicaConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	PageSize        int     `yaml:"page_size" mapstructure:"page_size"`
	MaxPages        int     `yaml:"max_pages" mapstructure:"max_pages"`
	PageDelayMs     int     `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	Burst           int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	AltUserAgent    string  `yaml:"alt_user_agent" mapstructure:"alt_user_agent"`
}

// AnthropicConfig holds Anthropic API settings for AI document extraction.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxPDFBytes int64  `yaml:"max_pdf_bytes" mapstructure:"max_pdf_bytes"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToPPMPath  string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	MinTextChars  int    `yaml:"min_text_chars" mapstructure:"min_text_chars"`
	DPI           int    `yaml:"dpi" mapstructure:"dpi"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
	TempDir       string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// PipelineConfig configures collection, dispatch and filtering.
type PipelineConfig struct {
	State                   string  `yaml:"state" mapstructure:"state"`
	Mode                    string  `yaml:"mode" mapstructure:"mode"`
	ParsingMethod           string  `yaml:"parsing_method" mapstructure:"parsing_method"`
	MaxConcurrentAPI        int     `yaml:"max_concurrent_api" mapstructure:"max_concurrent_api"`
	MaxConcurrentExtraction int     `yaml:"max_concurrent_extraction" mapstructure:"max_concurrent_extraction"`
	MaxWorkers              int     `yaml:"max_workers" mapstructure:"max_workers"`
	SyncDelayMs             int     `yaml:"sync_delay_ms" mapstructure:"sync_delay_ms"`
	ProgressEvery           int     `yaml:"progress_every" mapstructure:"progress_every"`
	CooldownSecs            int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	MaxCooldownSecs         int     `yaml:"max_cooldown_secs" mapstructure:"max_cooldown_secs"`
	GracePeriodSecs         int     `yaml:"grace_period_secs" mapstructure:"grace_period_secs"`
	RevenueMin              float64 `yaml:"revenue_min" mapstructure:"revenue_min"`
	RevenueMax              float64 `yaml:"revenue_max" mapstructure:"revenue_max"`
	QueryFile               string  `yaml:"query_file" mapstructure:"query_file"`
	IncludeAlphabetical     bool    `yaml:"include_alphabetical" mapstructure:"include_alphabetical"`
	Limit                   int     `yaml:"limit" mapstructure:"limit"`
}

// RetryConfig configures retry behavior for directory and AI calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ExportConfig configures the spreadsheet sink.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// MonitorConfig configures the monitor sink and alerting.
type MonitorConfig struct {
	StatsFile          string  `yaml:"stats_file" mapstructure:"stats_file"`
	LogFile            string  `yaml:"log_file" mapstructure:"log_file"`
	Addr               string  `yaml:"addr" mapstructure:"addr"`
	CheckIntervalSecs  int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	RateLimitThreshold float64 `yaml:"rate_limit_threshold" mapstructure:"rate_limit_threshold"`
	CostThresholdUSD   float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
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
	v.SetEnvPrefix("NONPROFIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Keys without a useful default are registered so environment
	// overrides reach Unmarshal.
	for _, key := range []string{
		"anthropic.key",
		"anthropic.base_url",
		"ocr.mistral_api_key",
		"ocr.temp_dir",
		"pipeline.state",
		"pipeline.query_file",
		"monitor.addr",
		"monitor.webhook_url",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("pipeline.limit", 0)
	v.SetDefault("monitor.cost_threshold_usd", 0.0)

	v.SetDefault("propublica.base_url", "https://projects.propublica.org/nonprofits/api/v2")
	v.SetDefault("propublica.page_size", 25)
	v.SetDefault("propublica.max_pages", 400)
	v.SetDefault("propublica.page_delay_ms", 100)
	v.SetDefault("propublica.rate_limit_per_sec", 5.0)
	v.SetDefault("propublica.burst", 5)
	v.SetDefault("propublica.timeout_secs", 30)
	v.SetDefault("propublica.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("propublica.alt_user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15")

	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.max_pdf_bytes", 32<<20)

	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.min_text_chars", 200)
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.mistral_ocr_model", "mistral-ocr-latest")

	v.SetDefault("pipeline.mode", ModeAsync)
	v.SetDefault("pipeline.parsing_method", ParsingMethodAI)
	v.SetDefault("pipeline.max_concurrent_api", 10)
	v.SetDefault("pipeline.max_concurrent_extraction", 3)
	v.SetDefault("pipeline.max_workers", 20)
	v.SetDefault("pipeline.sync_delay_ms", 500)
	v.SetDefault("pipeline.progress_every", 5)
	v.SetDefault("pipeline.cooldown_secs", 60)
	v.SetDefault("pipeline.max_cooldown_secs", 600)
	v.SetDefault("pipeline.grace_period_secs", 30)
	v.SetDefault("pipeline.revenue_min", 250000.0)
	v.SetDefault("pipeline.revenue_max", 1000000.0)
	v.SetDefault("pipeline.include_alphabetical", true)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	v.SetDefault("export.output_dir", ".")

	v.SetDefault("monitor.stats_file", "scraper_stats.json")
	v.SetDefault("monitor.log_file", "scraper_log.txt")
	v.SetDefault("monitor.check_interval_secs", 30)
	v.SetDefault("monitor.error_rate_threshold", 0.25)
	v.SetDefault("monitor.rate_limit_threshold", 0.10)

	v.SetDefault("pricing.anthropic.claude-haiku-4-5-20251001.input", 1.00)
	v.SetDefault("pricing.anthropic.claude-haiku-4-5-20251001.output", 5.00)
	v.SetDefault("pricing.anthropic.claude-haiku-4-5-20251001.cache_write_mul", 1.25)
	v.SetDefault("pricing.anthropic.claude-haiku-4-5-20251001.cache_read_mul", 0.1)
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.input", 3.00)
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.output", 15.00)
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.cache_write_mul", 1.25)
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.cache_read_mul", 0.1)
}

// Validate reports fatal misconfiguration for a run. All problems are
// collected into one error.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Pipeline.State) == "" {
		problems = append(problems, "pipeline.state is required")
	}

	switch c.Pipeline.ParsingMethod {
	case ParsingMethodAI:
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required when pipeline.parsing_method is ai")
		}
	case ParsingMethodOCR:
	default:
		problems = append(problems, "pipeline.parsing_method must be ai or ocr")
	}

	switch c.Pipeline.Mode {
	case ModeAsync, ModeSync:
	default:
		problems = append(problems, "pipeline.mode must be async or sync")
	}

	if c.Pipeline.RevenueMin < 0 || c.Pipeline.RevenueMax < 0 {
		problems = append(problems, "pipeline.revenue_min and revenue_max must be >= 0")
	}
	if c.Pipeline.RevenueMin > c.Pipeline.RevenueMax {
		problems = append(problems, "pipeline.revenue_min must be <= revenue_max")
	}

	if c.Pipeline.MaxConcurrentAPI < 1 || c.Pipeline.MaxConcurrentAPI > 100 {
		problems = append(problems, "pipeline.max_concurrent_api must be between 1 and 100")
	}
	if c.Pipeline.MaxConcurrentExtraction < 1 || c.Pipeline.MaxConcurrentExtraction > 50 {
		problems = append(problems, "pipeline.max_concurrent_extraction must be between 1 and 50")
	}

	if c.OCR.Provider == "mistral" && c.OCR.MistralKey == "" {
		problems = append(problems, "ocr.mistral_api_key is required when ocr.provider is mistral")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
