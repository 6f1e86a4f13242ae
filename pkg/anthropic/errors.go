package anthropic

import (
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-cli/internal/resilience"
)

// RateLimitSource labels rate-limit errors raised by this client.
const RateLimitSource = "ai"

// classifyError maps API failures onto the resilience taxonomy. A 429, or a
// message that reads like a quota refusal, becomes a RateLimitError.
// Overload and 5xx become a TransientError. Anything else is wrapped as is.
func classifyError(err error, msg string) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case resilience.IsRateLimitHTTPStatus(apiErr.StatusCode):
			return resilience.NewRateLimitError(RateLimitSource, apiErr.StatusCode, eris.Wrap(err, msg))
		case resilience.IsTransientHTTPStatus(apiErr.StatusCode):
			return resilience.NewTransientError(eris.Wrap(err, msg), apiErr.StatusCode)
		}
	}
	if resilience.IsRateLimit(err) || resilience.LooksRateLimited(err.Error()) {
		return resilience.NewRateLimitError(RateLimitSource, 0, eris.Wrap(err, msg))
	}
	return eris.Wrap(err, msg)
}
