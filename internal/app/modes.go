package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/calculator"
	"github.com/alanyoungcy/auctionarb/internal/config"
	"github.com/alanyoungcy/auctionarb/internal/normalize"
	"github.com/alanyoungcy/auctionarb/internal/notify"
	"github.com/alanyoungcy/auctionarb/internal/pipeline"
	"github.com/alanyoungcy/auctionarb/internal/platform/ebay"
	"github.com/alanyoungcy/auctionarb/internal/platform/keepa"
	"github.com/alanyoungcy/auctionarb/internal/platform/macbid"
	"github.com/alanyoungcy/auctionarb/internal/retry"
	"github.com/alanyoungcy/auctionarb/internal/service"
)

// macbidRequestsPerSecond keeps the scraper polite; the source publishes no
// limit.
const macbidRequestsPerSecond = 1

// Job names, also used as the mode names that run a single job.
const (
	jobIngest  = "ingest"
	jobRefresh = "refresh"
	jobAlert   = "alert"
)

// modeJobs returns the jobs a mode runs, in execution order.
func modeJobs(mode string) ([]string, error) {
	switch mode {
	case jobIngest, jobRefresh, jobAlert:
		return []string{mode}, nil
	case "full", "once":
		return []string{jobIngest, jobRefresh, jobAlert}, nil
	default:
		return nil, fmt.Errorf("app: unsupported mode %q", mode)
	}
}

// services holds the built services shared by the jobs.
type services struct {
	ingest *service.IngestService
	prices *service.PriceService
	opps   *service.OpportunityService
	alerts *service.AlertService
}

// policy derives a retry policy from the shared retry settings and a
// per-client attempt timeout.
func policy(cfg config.RetryConfig, timeout time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay.Duration,
		MaxDelay:    cfg.MaxDelay.Duration,
		Timeout:     timeout,
	}
}

// feeSchedule maps the fees section onto the calculator's schedule.
func feeSchedule(cfg config.FeesConfig) calculator.FeeSchedule {
	return calculator.FeeSchedule{
		BuyerPremiumRate:    cfg.BuyerPremiumRate,
		LotFee:              cfg.LotFee,
		EbayFVFRate:         cfg.EbayFVFRate,
		EbayPerOrderFee:     cfg.EbayPerOrderFee,
		ReferralRates:       cfg.AmazonReferralRates,
		DefaultReferralRate: cfg.AmazonDefaultRate,
		UseFulfillment:      cfg.UseFBA,
		IsLarge:             cfg.IsLarge,
		FulfillmentSmall:    cfg.FBASmall,
		FulfillmentLarge:    cfg.FBALarge,
	}
}

// buildServices creates the services. Lookup providers without credentials
// are left out; the alert service exists only when an email key is set.
func (a *App) buildServices(deps *Dependencies) *services {
	cfg := a.cfg

	var ebayClient service.EbaySearcher
	if cfg.Ebay.ClientID != "" && cfg.Ebay.ClientSecret != "" {
		ebayClient = ebay.NewClient(ebay.Config{
			ClientID:          cfg.Ebay.ClientID,
			ClientSecret:      cfg.Ebay.ClientSecret,
			APIBase:           cfg.Ebay.APIBase,
			ResultLimit:       cfg.Ebay.ResultLimit,
			RequestsPerSecond: cfg.Ebay.RequestsPerSecond,
			CacheTTL:          cfg.Ebay.CacheTTL.Duration,
			Retry:             policy(cfg.Retry, cfg.Ebay.Timeout.Duration),
		}, deps.LookupCache, a.logger)
	}

	var amazon service.AmazonLookup
	if cfg.Keepa.APIKey != "" {
		amazon = keepa.NewClient(keepa.Config{
			APIKey:            cfg.Keepa.APIKey,
			BaseURL:           cfg.Keepa.BaseURL,
			Domain:            cfg.Keepa.Domain,
			RequestsPerSecond: cfg.Keepa.RequestsPerSecond,
			CacheTTL:          cfg.Keepa.CacheTTL.Duration,
			Retry:             policy(cfg.Retry, cfg.Keepa.Timeout.Duration),
		}, deps.LookupCache, a.logger)
	}

	if ebayClient == nil && amazon == nil {
		a.logger.Warn("no lookup provider configured, products will not be priced")
	}

	svc := &services{
		ingest: service.NewIngestService(deps.Products, deps.Listings, a.logger),
		prices: service.NewPriceService(deps.Products, deps.Prices, ebayClient, amazon, deps.Notifier,
			service.LookupOptions{
				MaxStalePerRun: cfg.Lookup.MaxStalePerRun,
				Concurrency:    cfg.Lookup.Concurrency,
			}, a.logger),
	}
	svc.opps = service.NewOpportunityService(deps.Listings, deps.Products, svc.prices, deps.Opportunities,
		deps.Locks, deps.Notifier, feeSchedule(cfg.Fees), cfg.Fees.TaxRate, a.logger)

	if cfg.Email.ResendAPIKey != "" {
		mailer := notify.NewResendMailer(cfg.Email.APIURL, cfg.Email.ResendAPIKey, cfg.Email.FromAddress)
		svc.alerts = service.NewAlertService(deps.Alerts, deps.Opportunities, mailer, deps.Locks,
			deps.Notifier, policy(cfg.Retry, cfg.Email.Timeout.Duration), a.logger)
	}
	return svc
}

// buildJobs creates the named jobs.
func (a *App) buildJobs(names []string, deps *Dependencies, svc *services) ([]pipeline.Job, error) {
	cfg := a.cfg
	jobs := make([]pipeline.Job, 0, len(names))
	for _, name := range names {
		switch name {
		case jobIngest:
			source := macbid.NewClient(macbid.Config{
				BaseURL:           cfg.MacBid.BaseURL,
				APIURL:            cfg.MacBid.APIURL,
				UserAgent:         cfg.MacBid.UserAgent,
				MaxPages:          cfg.MacBid.MaxPages,
				RequestsPerSecond: macbidRequestsPerSecond,
				Retry:             policy(cfg.Retry, cfg.MacBid.Timeout.Duration),
			}, a.logger)
			var archive pipeline.RawArchiver
			if deps.RawArchive != nil {
				archive = deps.RawArchive
			}
			scraper := pipeline.NewListingScraper(source, normalize.New(cfg.MacBid.BaseURL),
				svc.ingest, svc.prices, archive, deps.Notifier, a.logger)
			jobs = append(jobs, pipeline.Job{
				Name:     jobIngest,
				Interval: cfg.Schedule.ScrapeInterval.Duration,
				Run:      scraper.Run,
			})

		case jobRefresh:
			refresh := pipeline.NewRefreshJob(svc.prices, svc.opps, cfg.Lookup.StaleAfter.Duration, a.logger)
			jobs = append(jobs, pipeline.Job{
				Name:     jobRefresh,
				Interval: cfg.Schedule.RefreshInterval.Duration,
				Run:      refresh.Run,
			})

		case jobAlert:
			if svc.alerts == nil {
				return nil, fmt.Errorf("app: alert job needs email.resend_api_key")
			}
			alert := pipeline.NewAlertJob(svc.alerts)
			jobs = append(jobs, pipeline.Job{
				Name:     jobAlert,
				Interval: cfg.Schedule.AlertInterval.Duration,
				Run:      alert.Run,
			})
		}
	}
	return jobs, nil
}

// ScheduledMode runs the jobs on their intervals until ctx is cancelled.
func (a *App) ScheduledMode(ctx context.Context, jobs []pipeline.Job) error {
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.Name
	}
	a.logger.InfoContext(ctx, "starting scheduled mode", slog.Any("jobs", names))
	return pipeline.NewOrchestrator(jobs, a.cfg.Schedule.RunOnStart, a.logger).Run(ctx)
}

// OnceMode runs every job a single time and returns.
func (a *App) OnceMode(ctx context.Context, jobs []pipeline.Job) error {
	a.logger.InfoContext(ctx, "starting single pass")
	return pipeline.NewOrchestrator(jobs, false, a.logger).RunOnce(ctx)
}
