package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"time"

	"telchat/internal/logging"
	"telchat/internal/metrics"
)

// RetryPolicy decides which HTTP responses are repeated and how long to wait
// between attempts.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts int

	// BackoffFactor is the delay after the first failed attempt; each later
	// delay doubles it.
	BackoffFactor time.Duration

	// RetryableStatus lists the status codes that trigger another attempt.
	RetryableStatus []int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BackoffFactor:   300 * time.Millisecond,
		RetryableStatus: []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
	}
}

func (p RetryPolicy) Retryable(status int) bool {
	return slices.Contains(p.RetryableStatus, status)
}

// Backoff returns the wait after the given failed attempt (1-based):
// factor * 2^(attempt-1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BackoffFactor <= 0 {
		return 0
	}
	return time.Duration(float64(p.BackoffFactor) * math.Pow(2, float64(attempt-1)))
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// retryTransport repeats requests answered with a retryable status. Errors
// from the underlying transport are returned as-is and never retried.
type retryTransport struct {
	next    http.RoundTripper
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Recorder
	sleep   func(ctx context.Context, d time.Duration) error
}

func newRetryTransport(next http.RoundTripper, policy RetryPolicy, logger *slog.Logger, rec *metrics.Recorder) *retryTransport {
	if logger == nil {
		logger = logging.Discard()
	}
	return &retryTransport{
		next:    next,
		policy:  policy,
		logger:  logger,
		metrics: rec,
		sleep:   sleepContext,
	}
}

type attemptTimeoutKey struct{}

// WithAttemptTimeout bounds every individual attempt made for requests
// carrying ctx. Backoff waits are not part of an attempt.
func WithAttemptTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, attemptTimeoutKey{}, d)
}

func attemptTimeout(ctx context.Context) time.Duration {
	d, _ := ctx.Value(attemptTimeoutKey{}).(time.Duration)
	return d
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	maxAttempts := t.policy.attempts()
	timeout := attemptTimeout(req.Context())
	for attempt := 1; ; attempt++ {
		attemptReq := req
		if attempt > 1 {
			var err error
			attemptReq, err = rewindRequest(req)
			if err != nil {
				return nil, err
			}
		}
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			var ctx context.Context
			ctx, cancel = context.WithTimeout(req.Context(), timeout)
			attemptReq = attemptReq.WithContext(ctx)
		}

		resp, err := t.next.RoundTrip(attemptReq)
		if err != nil {
			cancel()
			t.metrics.ObserveAttempt(0, err)
			return nil, err
		}
		t.metrics.ObserveAttempt(resp.StatusCode, nil)

		if attempt >= maxAttempts || !t.policy.Retryable(resp.StatusCode) ||
			(req.Body != nil && req.GetBody == nil) {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		delay := t.policy.Backoff(attempt)
		t.logger.Debug("retrying request",
			"attempt", attempt,
			"status", resp.StatusCode,
			"delay", delay,
		)
		// Keep the body so the response can still be surfaced if the
		// caller gives up during the wait.
		body := bufferBody(resp.Body)
		cancel()
		if err := t.sleep(req.Context(), delay); err != nil {
			resp.Body = io.NopCloser(bytes.NewReader(body))
			return resp, nil
		}
		t.metrics.ObserveRetry()
	}
}

// cancelOnClose releases the attempt deadline once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (t *retryTransport) CloseIdleConnections() {
	if closer, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

func rewindRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.GetBody == nil {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

func bufferBody(body io.ReadCloser) []byte {
	data, _ := io.ReadAll(io.LimitReader(body, 64*1024))
	_ = body.Close()
	return data
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
