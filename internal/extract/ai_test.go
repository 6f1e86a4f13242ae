package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nonprofit-cli/internal/config"
	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/internal/resilience"
	"github.com/sells-group/nonprofit-cli/pkg/anthropic"
)

var testAICfg = config.AnthropicConfig{
	Model:       "claude-sonnet-4-5-20250929",
	MaxTokens:   1024,
	MaxPDFBytes: 1 << 20,
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func testDoc(t *testing.T) Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filing.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o644))
	return Document{Ref: testRef(), Path: path}
}

func TestAIStrategy_Success(t *testing.T) {
	client := new(mockAIClient)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == testAICfg.Model &&
			req.Temperature != nil && *req.Temperature == 0 &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			len(req.Messages) == 1 &&
			len(req.Messages[0].Documents) == 1 &&
			string(req.Messages[0].Documents[0].Data) == "%PDF-1.4 body"
	})).Return(textResponse("Here is what I found:\n```json\n"+
		`{"total_revenue": 512000, "total_expenses": 480000, "total_executive_compensation": "$95,000",`+
		` "confidence_level": "high", "is_form_990": true, "notes": "clear scan"}`+"\n```"), nil)

	var spent float64
	s := NewAIStrategy(client, testAICfg, fastRetry(), WithCostRecorder(func(usd float64) { spent += usd }))

	res, err := s.Extract(context.Background(), testDoc(t))
	require.NoError(t, err)
	require.NotNil(t, res.Revenue)
	assert.Equal(t, 512000.0, *res.Revenue)
	require.NotNil(t, res.ExecCompensation)
	assert.Equal(t, 95000.0, *res.ExecCompensation)
	assert.Equal(t, "high", res.Confidence)
	assert.Equal(t, "clear scan (total expenses 480000)", res.Notes)
	assert.InDelta(t, 0.0045, spent, 1e-9)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestAIStrategy_FallThroughErrors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"not a form 990", `{"total_revenue": 1000, "is_form_990": false}`, ErrNotForm990},
		{"no figures", `{"total_revenue": null, "total_executive_compensation": null, "is_form_990": true}`, ErrNoData},
		{"unparseable strings", `{"total_revenue": "unknown", "total_executive_compensation": "n/a"}`, ErrNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockAIClient)
			client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(tt.text), nil)
			s := NewAIStrategy(client, testAICfg, fastRetry())

			_, err := s.Extract(context.Background(), testDoc(t))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, resilience.IsRateLimit(err))
		})
	}
}

func TestAIStrategy_MalformedJSON(t *testing.T) {
	client := new(mockAIClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I could not read this document."), nil)
	s := NewAIStrategy(client, testAICfg, fastRetry())

	_, err := s.Extract(context.Background(), testDoc(t))
	require.Error(t, err)
	assert.False(t, resilience.IsRateLimit(err))
}

func TestAIStrategy_RateLimitNotRetried(t *testing.T) {
	client := new(mockAIClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewRateLimitError(anthropic.RateLimitSource, 429, eris.New("rate_limit_error")))
	s := NewAIStrategy(client, testAICfg, fastRetry())

	_, err := s.Extract(context.Background(), testDoc(t))
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimit(err))
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestAIStrategy_TransientRetried(t *testing.T) {
	client := new(mockAIClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(eris.New("anthropic: 503"), 503)).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"total_revenue": 300000}`), nil).Once()
	s := NewAIStrategy(client, testAICfg, fastRetry())

	res, err := s.Extract(context.Background(), testDoc(t))
	require.NoError(t, err)
	assert.Equal(t, 300000.0, *res.Revenue)
	assert.Nil(t, res.ExecCompensation)
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestAIStrategy_TransientExhausted(t *testing.T) {
	client := new(mockAIClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(eris.New("anthropic: 500"), 500))
	s := NewAIStrategy(client, testAICfg, fastRetry())

	_, err := s.Extract(context.Background(), testDoc(t))
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "CreateMessage", 3)
}

func TestAIStrategy_DocumentTooLarge(t *testing.T) {
	client := new(mockAIClient)
	cfg := testAICfg
	cfg.MaxPDFBytes = 4
	s := NewAIStrategy(client, cfg, fastRetry())

	_, err := s.Extract(context.Background(), testDoc(t))
	require.Error(t, err)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestAIStrategy_Identity(t *testing.T) {
	s := NewAIStrategy(new(mockAIClient), testAICfg, fastRetry())
	assert.Equal(t, model.ProvenanceAI, s.Provenance())
	assert.Equal(t, model.SourceAI, s.Source())
}

func TestParseAnswer(t *testing.T) {
	ans, err := parseAnswer(`prefix {"total_revenue": "1,250,000", "total_executive_compensation": 0} suffix`)
	require.NoError(t, err)
	require.NotNil(t, ans.TotalRevenue.ptr())
	assert.Equal(t, 1250000.0, *ans.TotalRevenue.ptr())
	require.NotNil(t, ans.ExecCompensation.ptr())
	assert.Equal(t, 0.0, *ans.ExecCompensation.ptr())
	assert.Nil(t, ans.TotalExpenses.ptr())
	assert.Nil(t, ans.IsForm990)

	_, err = parseAnswer("no braces at all")
	assert.Error(t, err)

	_, err = parseAnswer(`{"total_revenue": [1, 2]}`)
	assert.Error(t, err)
}

func TestUserPrompt(t *testing.T) {
	assert.Equal(t, "Extract the figures from the attached Form 990-EZ filing for tax year 2006.",
		userPrompt(model.FilingReference{Form: model.Form990EZ, TaxYear: 2006}))
	assert.Equal(t, "Extract the figures from the attached Form 990 filing.",
		userPrompt(model.FilingReference{}))
}
