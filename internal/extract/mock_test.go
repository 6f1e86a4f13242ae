package extract

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/nonprofit-cli/internal/model"
	"github.com/sells-group/nonprofit-cli/pkg/anthropic"
)

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockFetcher) DownloadToFile(ctx context.Context, url, path string) (int64, error) {
	args := m.Called(ctx, url, path)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockFetcher) DownloadPDF(ctx context.Context, url, path string) (int64, error) {
	args := m.Called(ctx, url, path)
	return args.Get(0).(int64), args.Error(1)
}

// writesPDF makes a DownloadPDF expectation write a minimal PDF to the
// requested path.
func writesPDF(args mock.Arguments) {
	_ = os.WriteFile(args.String(2), []byte("%PDF-1.4 test"), 0o644)
}

// --- Anthropic Mock ---

type mockAIClient struct {
	mock.Mock
}

func (m *mockAIClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:   "claude-sonnet-4-5-20250929",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 100},
	}
}

// --- OCR stub ---

type stubText struct {
	text string
	err  error
}

func (s stubText) ExtractText(_ context.Context, _ string) (string, error) {
	return s.text, s.err
}

// --- Strategy stub ---

type stubStrategy struct {
	provenance model.Provenance
	source     model.Source
	result     *Result
	err        error

	mu    sync.Mutex
	calls int
}

func (s *stubStrategy) Provenance() model.Provenance { return s.provenance }
func (s *stubStrategy) Source() model.Source         { return s.source }

func (s *stubStrategy) Extract(_ context.Context, _ Document) (*Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.result, s.err
}

func (s *stubStrategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
