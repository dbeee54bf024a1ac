package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunOnceRunsEveryJobInOrder(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	jobs := []Job{
		{Name: "ingest", Interval: time.Minute, Run: func(context.Context) error { order = append(order, "ingest"); return boom }},
		{Name: "refresh", Interval: time.Minute, Run: func(context.Context) error { order = append(order, "refresh"); return nil }},
		{Name: "alert", Interval: time.Minute, Run: func(context.Context) error { order = append(order, "alert"); return nil }},
	}

	err := NewOrchestrator(jobs, false, discard()).RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(order) != 3 || order[0] != "ingest" || order[2] != "alert" {
		t.Errorf("order = %v", order)
	}
}

func TestRunRunsJobsOnStartAndStops(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{}, 1)
	jobs := []Job{{Name: "ingest", Interval: time.Hour, Run: func(context.Context) error {
		calls.Add(1)
		started <- struct{}{}
		return nil
	}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewOrchestrator(jobs, true, discard()).Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRunRejectsMissingInterval(t *testing.T) {
	jobs := []Job{{Name: "x", Run: func(context.Context) error { return nil }}}
	if err := NewOrchestrator(jobs, false, discard()).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
