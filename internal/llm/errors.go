package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ashureev/debatebot/internal/retry"
	"github.com/sashabaranov/go-openai"
)

// ClassifyError maps OpenAI client errors to retry classes.
// 401 and 403 are auth failures; 408, 429 and 5xx are transient.
func ClassifyError(err error) retry.Class {
	if err == nil {
		return retry.ClassNone
	}
	if errors.Is(err, retry.ErrAuthentication) {
		return retry.ClassAuth
	}

	if status := statusCode(err); status != 0 {
		switch {
		case status == http.StatusUnauthorized, status == http.StatusForbidden:
			return retry.ClassAuth
		case status == http.StatusTooManyRequests,
			status == http.StatusRequestTimeout,
			status >= http.StatusInternalServerError:
			return retry.ClassTransient
		default:
			return retry.ClassUnknown
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMalformedResponse) {
		return retry.ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.ClassTransient
	}
	return retry.DefaultClassifier(err)
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
