package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// classifyAPIError extracts a human-readable error from the API response and wraps it
// with domain.ErrTransientService (rate limits, timeouts, 5xx, network) or
// domain.ErrFatalService (everything the provider will keep rejecting).
func classifyAPIError(op string, err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		class := classForStatus(reqErr.HTTPStatusCode)
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("%s API error %d: %s: %w", op, reqErr.HTTPStatusCode, detail, class)
		}
		return fmt.Errorf("%s API error %d: %s: %w", op, reqErr.HTTPStatusCode, string(reqErr.Body), class)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w",
			op, apiErr.HTTPStatusCode, apiErr.Message, classForStatus(apiErr.HTTPStatusCode))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request timed out: %w", op, domain.ErrTransientService)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s request canceled: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s request failed: %s: %w", op, netErr.Error(), domain.ErrTransientService)
	}

	return fmt.Errorf("%s request failed: %s: %w", op, err.Error(), domain.ErrFatalService)
}

func classForStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= http.StatusInternalServerError:
		return domain.ErrTransientService
	default:
		return domain.ErrFatalService
	}
}

// extractDetail extracts the "detail" field from a JSON error body, used by some OpenAI-compatible providers.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
