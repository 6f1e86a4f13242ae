// Package cost prices AI extraction calls.
package cost

import (
	"github.com/sells-group/nonprofit-cli/internal/config"
)

// Rates holds per-model pricing for the AI extraction provider.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Usage is the token consumption of one call.
type Usage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// FromConfig builds rates from the pricing section, falling back to
// DefaultRates when none are configured.
func FromConfig(cfg config.PricingConfig) Rates {
	if len(cfg.Anthropic) == 0 {
		return DefaultRates()
	}
	rates := Rates{Anthropic: make(map[string]ModelRate, len(cfg.Anthropic))}
	for model, p := range cfg.Anthropic {
		rates.Anthropic[model] = ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return rates
}

// Claude computes the cost for a Claude API call. Unknown models cost 0.
func (c *Calculator) Claude(model string, u Usage) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	inCost := (float64(u.Input) / 1e6) * rate.Input
	outCost := (float64(u.Output) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Known reports whether the calculator has rates for model.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates.Anthropic[model]
	return ok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
	}
}
