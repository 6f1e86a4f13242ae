package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-cli/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"

	// MistralSource labels rate-limit errors from the OCR API.
	MistralSource = "ocr"
)

// MistralOCR recognizes scanned PDFs with the Mistral OCR API.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMistralOCR creates a MistralOCR extractor. If model is empty, the default is used.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	return &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// ExtractText sends the PDF inline as a data URL and joins the page
// markdown. 429, or any error body that reads like a quota refusal, surfaces
// as a resilience.RateLimitError and 5xx as a resilience.TransientError.
func (m *MistralOCR) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read PDF %s", pdfPath)
	}

	reqBody := mistralOCRRequest{
		Model: m.model,
		Document: mistralOCRDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", eris.Wrap(err, "ocr: marshal mistral request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "ocr: read mistral response")
	}

	switch {
	case resilience.IsRateLimitHTTPStatus(resp.StatusCode),
		resp.StatusCode != http.StatusOK && resilience.LooksRateLimited(string(respBody)):
		return "", resilience.NewRateLimitError(MistralSource, resp.StatusCode,
			eris.Errorf("ocr: mistral API returned %d", resp.StatusCode))
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return "", resilience.NewTransientError(
			eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(respBody)), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var ocrResp mistralOCRResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return "", eris.Wrap(err, "ocr: unmarshal mistral response")
	}

	pages := make([]string, 0, len(ocrResp.Pages))
	for _, page := range ocrResp.Pages {
		pages = append(pages, page.Markdown)
	}
	return strings.Join(pages, "\n\n"), nil
}
