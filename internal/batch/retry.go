package batch

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// transientMarkers matches driver error strings that indicate a flaky
// backend rather than a bad request.
var transientMarkers = []string{
	"connection reset",
	"connection refused",
	"connection lost",
	"connection closed",
	"timeout",
	"timed out",
	"no such host",
}

// IsTransient classifies an error as retryable: network faults, timeouts
// and DNS failures. Business errors (invalid action parameters, missing
// rows) are permanent and never retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RetryPolicy retries transient failures with linear backoff: the delay
// after attempt n is n times Backoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Do runs fn until it succeeds, fails permanently, or the attempt budget
// is exhausted. Returns the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * p.Backoff):
		}
	}
	return err
}
