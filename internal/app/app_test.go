package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/config"
)

func TestModeJobs(t *testing.T) {
	tests := []struct {
		mode string
		want []string
	}{
		{"ingest", []string{"ingest"}},
		{"refresh", []string{"refresh"}},
		{"alert", []string{"alert"}},
		{"full", []string{"ingest", "refresh", "alert"}},
		{"once", []string{"ingest", "refresh", "alert"}},
	}
	for _, tt := range tests {
		got, err := modeJobs(tt.mode)
		if err != nil {
			t.Fatalf("%s: %v", tt.mode, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.mode, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.mode, got, tt.want)
			}
		}
	}
	if _, err := modeJobs("trade"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestFeeScheduleFromConfig(t *testing.T) {
	cfg := config.Defaults()
	fees := feeSchedule(cfg.Fees)
	if fees.BuyerPremiumRate != 0.15 || fees.LotFee != 3 {
		t.Errorf("auction fees = %+v", fees)
	}
	if got := fees.ReferralRate("Electronics"); got != 0.08 {
		t.Errorf("Electronics rate = %v, want 0.08", got)
	}
	if got := fees.ReferralRate("Garden"); got != 0.15 {
		t.Errorf("default rate = %v, want 0.15", got)
	}
	if got := fees.FulfillmentFee(); got != 3.22 {
		t.Errorf("fulfillment = %v, want 3.22", got)
	}
}

func TestPolicyUsesClientTimeout(t *testing.T) {
	cfg := config.Defaults()
	p := policy(cfg.Retry, 7*time.Second)
	if p.MaxAttempts != 3 || p.BaseDelay != time.Second || p.MaxDelay != 30*time.Second {
		t.Errorf("policy = %+v", p)
	}
	if p.Timeout != 7*time.Second {
		t.Errorf("timeout = %v", p.Timeout)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
