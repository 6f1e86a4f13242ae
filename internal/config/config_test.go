package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://projects.propublica.org/nonprofits/api/v2", cfg.ProPublica.BaseURL)
	assert.Equal(t, 25, cfg.ProPublica.PageSize)
	assert.Equal(t, 400, cfg.ProPublica.MaxPages)
	assert.Equal(t, ModeAsync, cfg.Pipeline.Mode)
	assert.Equal(t, ParsingMethodAI, cfg.Pipeline.ParsingMethod)
	assert.Equal(t, 10, cfg.Pipeline.MaxConcurrentAPI)
	assert.Equal(t, 3, cfg.Pipeline.MaxConcurrentExtraction)
	assert.Equal(t, 500, cfg.Pipeline.SyncDelayMs)
	assert.Equal(t, 5, cfg.Pipeline.ProgressEvery)
	assert.Equal(t, 30, cfg.Pipeline.GracePeriodSecs)
	assert.InDelta(t, 250000.0, cfg.Pipeline.RevenueMin, 0.001)
	assert.InDelta(t, 1000000.0, cfg.Pipeline.RevenueMax, 0.001)
	assert.True(t, cfg.Pipeline.IncludeAlphabetical)
	assert.Equal(t, 200, cfg.OCR.MinTextChars)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, "tesseract", cfg.OCR.TesseractPath)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "scraper_stats.json", cfg.Monitor.StatsFile)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)

	sonnet, ok := cfg.Pricing.Anthropic["claude-sonnet-4-5-20250929"]
	require.True(t, ok)
	assert.InDelta(t, 3.0, sonnet.Input, 0.001)
	assert.InDelta(t, 15.0, sonnet.Output, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
pipeline:
  state: CT
  parsing_method: ocr
  revenue_min: 100000
  max_concurrent_extraction: 5
ocr:
  provider: mistral
  mistral_api_key: mk
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "CT", cfg.Pipeline.State)
	assert.Equal(t, ParsingMethodOCR, cfg.Pipeline.ParsingMethod)
	assert.InDelta(t, 100000.0, cfg.Pipeline.RevenueMin, 0.001)
	assert.Equal(t, 5, cfg.Pipeline.MaxConcurrentExtraction)
	assert.Equal(t, "mistral", cfg.OCR.Provider)
	assert.Equal(t, "mk", cfg.OCR.MistralKey)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Pipeline.MaxConcurrentAPI)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
pipeline:
  state: CT
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("NONPROFIT_PIPELINE_STATE", "RI")
	t.Setenv("NONPROFIT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "RI", cfg.Pipeline.State)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("NONPROFIT_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("NONPROFIT_PIPELINE_MAX_CONCURRENT_API", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentAPI)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("pipeline: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validRun returns a Config that passes validation.
func validRun() *Config {
	cfg := &Config{}
	cfg.Pipeline.State = "CT"
	cfg.Pipeline.Mode = ModeAsync
	cfg.Pipeline.ParsingMethod = ParsingMethodAI
	cfg.Pipeline.MaxConcurrentAPI = 10
	cfg.Pipeline.MaxConcurrentExtraction = 3
	cfg.Pipeline.RevenueMin = 250000
	cfg.Pipeline.RevenueMax = 1000000
	cfg.Anthropic.Key = "sk-ant-key"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validRun().Validate())

	cfg := validRun()
	cfg.Pipeline.ParsingMethod = ParsingMethodOCR
	cfg.Anthropic.Key = ""
	assert.NoError(t, cfg.Validate())

	cfg = validRun()
	cfg.Pipeline.RevenueMin = cfg.Pipeline.RevenueMax
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing state", func(c *Config) { c.Pipeline.State = " " }, "pipeline.state is required"},
		{"missing ai key", func(c *Config) { c.Anthropic.Key = "" }, "anthropic.key is required"},
		{"unknown method", func(c *Config) { c.Pipeline.ParsingMethod = "vision" }, "parsing_method must be ai or ocr"},
		{"unknown mode", func(c *Config) { c.Pipeline.Mode = "batch" }, "pipeline.mode must be async or sync"},
		{"inverted bounds", func(c *Config) { c.Pipeline.RevenueMin = 2e6 }, "revenue_min must be <= revenue_max"},
		{"negative bounds", func(c *Config) { c.Pipeline.RevenueMin = -1 }, "must be >= 0"},
		{"api ceiling", func(c *Config) { c.Pipeline.MaxConcurrentAPI = 0 }, "max_concurrent_api must be between 1 and 100"},
		{"extraction ceiling", func(c *Config) { c.Pipeline.MaxConcurrentExtraction = 51 }, "max_concurrent_extraction must be between 1 and 50"},
		{"mistral key", func(c *Config) { c.OCR.Provider = "mistral" }, "ocr.mistral_api_key is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validRun()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.state is required")
	assert.Contains(t, err.Error(), "pipeline.mode must be async or sync")
}
