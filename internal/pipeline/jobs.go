package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/service"
)

// StaleRepricer re-prices products whose observations have aged.
type StaleRepricer interface {
	RefreshStale(ctx context.Context, olderThan time.Duration) (service.LookupReport, error)
}

// Refresher rebuilds every active listing's opportunities.
type Refresher interface {
	RefreshAll(ctx context.Context) (service.RefreshReport, error)
}

// Dispatcher sends pending alerts.
type Dispatcher interface {
	Dispatch(ctx context.Context) (service.DispatchReport, error)
}

// RefreshJob keeps prices current and then rebuilds opportunities.
type RefreshJob struct {
	prices     StaleRepricer
	opps       Refresher
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewRefreshJob creates the refresh job. prices may be nil to skip
// re-pricing.
func NewRefreshJob(prices StaleRepricer, opps Refresher, staleAfter time.Duration, logger *slog.Logger) *RefreshJob {
	return &RefreshJob{prices: prices, opps: opps, staleAfter: staleAfter, logger: logger}
}

// Run executes one refresh cycle. A re-pricing failure is logged and the
// rebuild still runs on the prices already stored.
func (j *RefreshJob) Run(ctx context.Context) error {
	if j.prices != nil && j.staleAfter > 0 {
		if _, err := j.prices.RefreshStale(ctx, j.staleAfter); err != nil {
			j.logger.WarnContext(ctx, "stale re-pricing failed", slog.String("error", err.Error()))
		}
	}
	if _, err := j.opps.RefreshAll(ctx); err != nil {
		return fmt.Errorf("refresh job: %w", err)
	}
	return nil
}

// AlertJob wraps a Dispatcher as a job.
type AlertJob struct {
	alerts Dispatcher
}

// NewAlertJob creates the alert job.
func NewAlertJob(alerts Dispatcher) *AlertJob {
	return &AlertJob{alerts: alerts}
}

// Run executes one dispatch cycle.
func (j *AlertJob) Run(ctx context.Context) error {
	if _, err := j.alerts.Dispatch(ctx); err != nil {
		return fmt.Errorf("alert job: %w", err)
	}
	return nil
}
