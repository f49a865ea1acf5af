package jettalib

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/danielbankhead/jetta/pkg/jerror"
)

// Default retry configuration values
const (
	DefMaxRetries    = 3
	DefBaseDelay     = 500 * time.Millisecond
	DefMaxDelay      = 30 * time.Second
	DefJitterFactor  = 0.5
	DefBackoffFactor = 2.0
)

// RetryConfig holds configuration for Fetch retries.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts (0 = no retries)
	BaseDelay     time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	JitterFactor  float64       // Random jitter factor (0-1)
	BackoffFactor float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns a RetryConfig with sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    DefMaxRetries,
		BaseDelay:     DefBaseDelay,
		MaxDelay:      DefMaxDelay,
		JitterFactor:  DefJitterFactor,
		BackoffFactor: DefBackoffFactor,
	}
}

// RetryState tracks the state of retry attempts
type RetryState struct {
	Attempts     int
	LastError    error
	LastAttempt  time.Time
	TotalDelayed time.Duration
}

// ErrorCategory classifies errors for retry decisions
type ErrorCategory int

const (
	ErrCategoryFatal     ErrorCategory = iota // Non-retryable errors (404, canceled)
	ErrCategoryRetryable                      // Transient errors (EOF, timeout, reset)
	ErrCategoryThrottled                      // Rate limiting errors (429, 503)
)

// ClassifyError determines how an error should be handled for retry purposes
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryFatal
	}

	// user cancellation is final, deadlines are per attempt
	if errors.Is(err, context.Canceled) {
		return ErrCategoryFatal
	}

	if je, ok := jerror.As(err); ok {
		switch {
		case je.Code == jerror.RequestBadResponseCode:
			status, _ := je.Detail("statusCode").(int)
			switch {
			case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
				return ErrCategoryThrottled
			case status >= 500:
				return ErrCategoryRetryable
			}
			return ErrCategoryFatal
		case je.IsTransient():
			return ErrCategoryRetryable
		case je.Code == jerror.RequestAborted:
			return ErrCategoryFatal
		}
	}

	var te *TransportError
	if errors.As(err, &te) && !te.IsTransient() {
		return ErrCategoryFatal
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrCategoryRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrCategoryRetryable
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) && transientErrno(sysErr) {
		return ErrCategoryRetryable
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"timeout",
		"eof",
		"temporary failure",
		"no such host",
		"network is unreachable",
	} {
		if strings.Contains(errStr, pattern) {
			return ErrCategoryRetryable
		}
	}
	for _, pattern := range []string{
		"too many requests",
		"service unavailable",
		"rate limit",
		"throttl",
	} {
		if strings.Contains(errStr, pattern) {
			return ErrCategoryThrottled
		}
	}

	// unknown errors are fatal to avoid retry loops
	return ErrCategoryFatal
}

// CalculateBackoff computes the delay before the next retry attempt
func (c *RetryConfig) CalculateBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))
	if c.JitterFactor > 0 {
		jitter := c.JitterFactor * (2*rand.Float64() - 1)
		delay *= (1 + jitter)
	}
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if delay < 0 {
		delay = float64(c.BaseDelay)
	}
	return time.Duration(delay)
}

// ShouldRetry determines if another retry attempt should be made
func (c *RetryConfig) ShouldRetry(state *RetryState, err error) bool {
	if ClassifyError(err) == ErrCategoryFatal {
		return false
	}
	return state.Attempts <= c.MaxRetries
}

// WaitForRetry blocks until the retry delay has elapsed or ctx is done.
func (c *RetryConfig) WaitForRetry(ctx context.Context, state *RetryState, category ErrorCategory) error {
	delay := c.CalculateBackoff(state.Attempts)

	// throttled errors get double the normal delay
	if category == ErrCategoryThrottled {
		delay *= 2
		if delay > c.MaxDelay {
			delay = c.MaxDelay
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		state.TotalDelayed += delay
		return nil
	}
}

var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
	syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH,
	syscall.EPIPE,
}

func transientErrno(errno syscall.Errno) bool {
	return slices.Contains(transientErrnos, errno) || slices.Contains(platformTransientErrnos, errno)
}
