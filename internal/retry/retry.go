// Package retry runs external calls with a per-attempt timeout and bounded
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Policy bounds one unit of external work.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Timeout applies to each attempt separately.
	Timeout time.Duration
}

// DefaultPolicy is three attempts starting at one second.
func DefaultPolicy(timeout time.Duration) Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Timeout: timeout}
}

// Budget is the longest Do can run under p when every attempt times out and
// every backoff draws its maximum jitter.
func (p Policy) Budget() time.Duration {
	attempts := max(p.MaxAttempts, 1)
	total := time.Duration(attempts) * p.Timeout
	backoff := p.BaseDelay
	for range attempts - 1 {
		wait := backoff * 3 / 2
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		total += wait
		backoff *= 2
	}
	return total
}

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s: http %d: %s", e.Service, e.StatusCode, body)
}

// Retryable reports whether the status warrants another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// CheckResponse returns a *StatusError for responses with status >= 300.
// The body is consumed in that case.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: body}
}

// RedactURL replaces the URL a transport error carries with display, so
// credentials in the query string or path stay out of logs. The result is
// still a *url.Error and still unwraps to the underlying cause.
func RedactURL(err error, display string) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: display, Err: ue.Err}
}

// Retryable reports whether err is transient: a 5xx or 429 response, an
// attempt timeout, or a transport-level failure.
func Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// Do calls fn until it succeeds, fails permanently, or MaxAttempts is
// reached. Each call gets its own context bounded by p.Timeout. Cancelling
// ctx stops the loop immediately.
func Do(ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	backoff := p.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := jitter(backoff)
			if p.MaxDelay > 0 && wait > p.MaxDelay {
				wait = p.MaxDelay
			}
			if logger != nil {
				logger.DebugContext(ctx, "retrying",
					slog.String("op", op),
					slog.Int("attempt", attempt),
					slog.Duration("backoff", wait),
					slog.String("error", lastErr.Error()),
				)
			}
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			backoff *= 2
		}

		lastErr = runAttempt(ctx, p.Timeout, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !Retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, attempts, lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}

// jitter spreads d over [d/2, 3d/2).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}
