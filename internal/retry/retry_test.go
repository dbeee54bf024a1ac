package retry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Timeout: time.Second}
}

func get(url string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return CheckResponse("test", resp)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Do(context.Background(), fastPolicy(), nil, "get", get(srv.URL)); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := Do(context.Background(), fastPolicy(), nil, "get", get(srv.URL))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("last error not preserved: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := Do(context.Background(), fastPolicy(), nil, "get", get(srv.URL))
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400 StatusError", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestDoTimesOutEachAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := fastPolicy()
	p.MaxAttempts = 2
	p.Timeout = 20 * time.Millisecond

	start := time.Now()
	err := Do(context.Background(), p, nil, "get", get(srv.URL))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("took %v, attempt timeout not applied", elapsed)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.BaseDelay = time.Hour
	p.MaxDelay = 0

	calls := 0
	err := Do(ctx, p, nil, "op", func(context.Context) error {
		calls++
		cancel()
		return &StatusError{StatusCode: 503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&StatusError{StatusCode: 500}, true},
		{&StatusError{StatusCode: 429}, true},
		{&StatusError{StatusCode: 404}, false},
		{context.DeadlineExceeded, true},
		{errors.New("decode: unexpected EOF"), false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRedactURL(t *testing.T) {
	cause := context.DeadlineExceeded
	err := RedactURL(&url.Error{Op: "Get", URL: "https://api.example.com/p?key=hunter2", Err: cause}, "https://api.example.com/p")
	if strings.Contains(err.Error(), "hunter2") {
		t.Errorf("error = %q, still carries the secret", err)
	}
	var ue *url.Error
	if !errors.As(err, &ue) || ue.Op != "Get" {
		t.Errorf("err = %#v, want *url.Error", err)
	}
	if !errors.Is(err, cause) || !Retryable(err) {
		t.Errorf("redacted error lost its cause: %v", err)
	}

	plain := errors.New("boom")
	if RedactURL(plain, "x") != plain {
		t.Error("non-url error changed")
	}
}

func TestPolicyBudget(t *testing.T) {
	tests := []struct {
		name string
		p    Policy
		want time.Duration
	}{
		{"single attempt", Policy{MaxAttempts: 1, BaseDelay: time.Second, Timeout: 10 * time.Second}, 10 * time.Second},
		{"zero attempts runs once", Policy{Timeout: time.Second}, time.Second},
		// 3x10s attempts, then backoffs of 1.5s and 3s.
		{"uncapped backoff", Policy{MaxAttempts: 3, BaseDelay: time.Second, Timeout: 10 * time.Second}, 34500 * time.Millisecond},
		{"capped backoff", Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 2 * time.Second, Timeout: 10 * time.Second}, 33500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := tt.p.Budget(); got != tt.want {
			t.Errorf("%s: Budget() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
