package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const maxRetries = 3

// retryableStatus reports whether a response status should trigger a retry.
// Rate limits and server-side failures are transient; everything else is not.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

//nolint:bodyclose // false positive: [*http.Response] is a generic type parameter, not an actual response
func newRetryPolicy() retrypolicy.RetryPolicy[*http.Response] {
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(250*time.Millisecond, 4*time.Second).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			if resp != nil && retryableStatus(resp.StatusCode) {
				_ = resp.Body.Close()
				return true
			}
			return false
		}).
		Build()
}

// doWithRetry issues the request built by buildReq through the shared retry
// policy. The request must be rebuilt per attempt because bodies are one-shot.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error)) (*http.Response, error) {
	resp, err := failsafe.With(newRetryPolicy()).WithContext(ctx).Get(func() (*http.Response, error) {
		req, reqErr := buildReq()
		if reqErr != nil {
			return nil, reqErr
		}
		return client.Do(req)
	})
	if err != nil {
		return nil, err
	}
	if resp != nil && retryableStatus(resp.StatusCode) {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("request failed after %d retries: status %s", maxRetries, resp.Status)
	}
	return resp, nil
}
