package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrMalformedOutput means the backend answered but the answer is unusable
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrQuotaExceeded means the account has no remaining quota
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// RetryPolicy controls retries of transient backend failures
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := p.MaxRetries
	if max < 0 {
		max = 0
	}
	return retry.WithMaxRetries(uint64(max), retry.NewExponential(base))
}

// do runs call under the policy. Only errors classified as transient are
// retried; context errors end the loop immediately.
func (p RetryPolicy) do(ctx context.Context, call func(ctx context.Context) (string, error)) (string, error) {
	var out string
	attempts := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		reply, err := call(ctx)
		if err == nil {
			out = reply
			return nil
		}
		err = classify(err)
		if retryable(ctx, err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("after %d attempt(s): %w", attempts, err)
	}
	return out, nil
}

// classify maps backend-specific errors onto the package sentinels
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type == "insufficient_quota" || apiErr.Code == "insufficient_quota" {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
	}
	return err
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMalformedOutput) || errors.Is(err, ErrQuotaExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode)
	}

	// Transport failures and opaque errors from other clients
	return true
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
