package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-cli/internal/config"
	"github.com/sells-group/nonprofit-cli/internal/cost"
	"github.com/sells-group/nonprofit-cli/internal/form990"
	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/internal/resilience"
	"github.com/sells-group/nonprofit-cli/pkg/anthropic"
)

// ErrNotForm990 is returned when the model reports the document is not a
// Form 990 return.
var ErrNotForm990 = eris.New("extract: document is not a form 990")

const systemPrompt = `You are analyzing a nonprofit Form 990 tax filing PDF. Extract these figures:

1. Total revenue: Part I line 12, or the total of the Part VIII statement of revenue. On a pre-2008 return use Part I line 12.
2. Total expenses: Part I line 18, or the total of Part IX functional expenses.
3. Total executive compensation: the sum of reportable compensation of officers, directors, trustees and key employees in Part VII section A.

Respond with only a JSON object in this format:
{
  "total_revenue": <number or null>,
  "total_expenses": <number or null>,
  "total_executive_compensation": <number or null>,
  "confidence_level": "<high|medium|low>",
  "is_form_990": <true|false>,
  "notes": "<short observations>"
}

Rules:
- Numbers carry no dollar signs, commas or other formatting.
- Use null for any figure you cannot find. Do not guess.
- Set is_form_990 to false when the document is not a Form 990, 990-EZ or 990-PF return.
- confidence_level is "high" for clear unambiguous values, "medium" when some uncertainty remains, and "low" when values are unclear or the scan is poor.`

// AIStrategy sends the filing PDF to Claude as a document block.
type AIStrategy struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	maxPDFBytes int64
	retry       resilience.RetryConfig
	calc        *cost.Calculator
	onCost      func(usd float64)
}

// AIOption configures an AIStrategy.
type AIOption func(*AIStrategy)

// WithCostRecorder reports the cost of every call.
func WithCostRecorder(fn func(usd float64)) AIOption {
	return func(s *AIStrategy) { s.onCost = fn }
}

// WithCalculator prices calls with c instead of the default rates.
func WithCalculator(c *cost.Calculator) AIOption {
	return func(s *AIStrategy) { s.calc = c }
}

// NewAIStrategy creates the AI strategy. Transient failures are retried
// according to retry; rate limits never are.
func NewAIStrategy(client anthropic.Client, cfg config.AnthropicConfig, retry resilience.RetryConfig, opts ...AIOption) *AIStrategy {
	s := &AIStrategy{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		maxPDFBytes: cfg.MaxPDFBytes,
		retry:       retry,
		calc:        cost.NewCalculator(cost.DefaultRates()),
	}
	if s.maxTokens <= 0 {
		s.maxTokens = 1024
	}
	if s.retry.OnRetry == nil {
		s.retry.OnRetry = resilience.RetryLogger("anthropic", "extract_filing")
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AIStrategy) Provenance() model.Provenance { return model.ProvenanceAI }

func (s *AIStrategy) Source() model.Source { return model.SourceAI }

// Extract asks the model for the figures of doc.
func (s *AIStrategy) Extract(ctx context.Context, doc Document) (*Result, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, eris.Wrap(err, "extract: read document")
	}
	if s.maxPDFBytes > 0 && int64(len(data)) > s.maxPDFBytes {
		return nil, eris.Errorf("extract: document is %d bytes, limit %d", len(data), s.maxPDFBytes)
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt),
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:      "user",
			Content:   userPrompt(doc.Ref),
			Documents: []anthropic.Document{{Data: data}},
		}},
	}

	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.recordCost(resp.Usage)

	ans, err := parseAnswer(resp.Text())
	if err != nil {
		return nil, err
	}
	if ans.IsForm990 != nil && !*ans.IsForm990 {
		return nil, ErrNotForm990
	}
	if !ans.TotalRevenue.valid && !ans.ExecCompensation.valid {
		return nil, ErrNoData
	}

	notes := ans.Notes
	if ans.TotalExpenses.valid {
		notes = strings.TrimSpace(fmt.Sprintf("%s (total expenses %.0f)", notes, ans.TotalExpenses.value))
	}
	return &Result{
		Revenue:          ans.TotalRevenue.ptr(),
		ExecCompensation: ans.ExecCompensation.ptr(),
		Confidence:       ans.Confidence,
		Notes:            notes,
	}, nil
}

func (s *AIStrategy) recordCost(u anthropic.TokenUsage) {
	usd := s.calc.Claude(s.model, cost.Usage{
		Input:      u.InputTokens,
		Output:     u.OutputTokens,
		CacheWrite: u.CacheCreationInputTokens,
		CacheRead:  u.CacheReadInputTokens,
	})
	u.LogCost(s.model, "extract_filing", usd)
	if s.onCost != nil {
		s.onCost(usd)
	}
}

func userPrompt(ref model.FilingReference) string {
	form := ref.Form
	if form == "" || form == model.FormOther {
		form = model.Form990
	}
	if ref.TaxYear > 0 {
		return fmt.Sprintf("Extract the figures from the attached Form %s filing for tax year %d.", form, ref.TaxYear)
	}
	return fmt.Sprintf("Extract the figures from the attached Form %s filing.", form)
}

// answer is the JSON object the model is asked to return.
type answer struct {
	TotalRevenue     amount `json:"total_revenue"`
	TotalExpenses    amount `json:"total_expenses"`
	ExecCompensation amount `json:"total_executive_compensation"`
	Confidence       string `json:"confidence_level"`
	IsForm990        *bool  `json:"is_form_990"`
	Notes            string `json:"notes"`
}

// amount accepts a JSON number, a formatted string such as "$1,234", or
// null. Unparseable strings decode as absent.
type amount struct {
	value float64
	valid bool
}

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		a.value, a.valid = form990.CleanAmount(s)
		return nil
	}
	if err := json.Unmarshal(b, &a.value); err != nil {
		return err
	}
	a.valid = true
	return nil
}

func (a amount) ptr() *float64 {
	if !a.valid {
		return nil
	}
	v := a.value
	return &v
}

// parseAnswer decodes the first JSON object in text. Prose or code fences
// around the object are ignored.
func parseAnswer(text string) (*answer, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("extract: no JSON object in ai response")
	}

	var ans answer
	if err := json.Unmarshal([]byte(text[start:end+1]), &ans); err != nil {
		return nil, eris.Wrap(err, "extract: decode ai response")
	}
	return &ans, nil
}
