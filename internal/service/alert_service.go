package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/notify"
	"github.com/alanyoungcy/auctionarb/internal/retry"
)

// alertLockTTL bounds how long one run holds a setting. A run stops taking
// new candidates once the next send could outlive the lock; the rest wait
// for the next run.
const alertLockTTL = 5 * time.Minute

// AlertService emails subscribers about opportunities that pass their
// thresholds, at most once per (setting, opportunity).
type AlertService struct {
	alerts domain.AlertStore
	opps   domain.OpportunityStore
	mailer notify.Mailer
	locks  domain.LockManager
	ops    OpsNotifier
	policy retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewAlertService creates an AlertService. locks may be nil.
func NewAlertService(
	alerts domain.AlertStore,
	opps domain.OpportunityStore,
	mailer notify.Mailer,
	locks domain.LockManager,
	ops OpsNotifier,
	policy retry.Policy,
	logger *slog.Logger,
) *AlertService {
	return &AlertService{
		alerts: alerts,
		opps:   opps,
		mailer: mailer,
		locks:  locks,
		ops:    ops,
		policy: policy,
		logger: logger.With(slog.String("component", "alert")),
		now:    time.Now,
	}
}

// DispatchReport summarizes one alert run.
type DispatchReport struct {
	Settings   int
	Candidates int
	Sent       int
	Skipped    int
	Failed     int
	// Deferred counts candidates left for the next run so the setting lock
	// would not expire mid-send.
	Deferred int
	// Locked counts settings another run was already dispatching.
	Locked int
}

// Dispatch sends every pending alert. A failed send is counted and the run
// continues; history is written only after the provider accepts the email.
func (s *AlertService) Dispatch(ctx context.Context) (DispatchReport, error) {
	var rep DispatchReport
	settings, err := s.alerts.ListActiveSettings(ctx)
	if err != nil {
		return rep, fmt.Errorf("alert: list settings: %w", err)
	}

	for _, setting := range settings {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Settings++
		held, err := withLock(ctx, s.locks, "alert:"+setting.ID, alertLockTTL, func() error {
			return s.dispatchSetting(ctx, setting, &rep)
		})
		if held {
			rep.Locked++
			s.logger.DebugContext(ctx, "setting locked by another run", slog.String("setting_id", setting.ID))
			continue
		}
		if err != nil {
			rep.Failed++
			s.logger.WarnContext(ctx, "alert setting failed",
				slog.String("setting_id", setting.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "alerts dispatched",
		slog.Int("settings", rep.Settings),
		slog.Int("candidates", rep.Candidates),
		slog.Int("sent", rep.Sent),
		slog.Int("skipped", rep.Skipped),
		slog.Int("failed", rep.Failed),
		slog.Int("deferred", rep.Deferred),
		slog.Int("locked", rep.Locked),
	)
	return rep, nil
}

func (s *AlertService) dispatchSetting(ctx context.Context, setting domain.AlertSetting, rep *DispatchReport) error {
	candidates, err := s.opps.ListCandidates(ctx, setting)
	if err != nil {
		return fmt.Errorf("alert: candidates for %s: %w", setting.ID, err)
	}
	rep.Candidates += len(candidates)

	start := s.now()
	budget := s.policy.Budget()
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.now().Sub(start)+budget >= alertLockTTL {
			rep.Deferred += len(candidates) - i
			s.logger.WarnContext(ctx, "setting lock budget spent, deferring candidates",
				slog.String("setting_id", setting.ID),
				slog.Int("deferred", len(candidates)-i),
			)
			break
		}
		sent, err := s.alerts.HasSent(ctx, setting.ID, c.Opportunity.ID)
		if err != nil {
			return fmt.Errorf("alert: check history: %w", err)
		}
		if sent {
			rep.Skipped++
			continue
		}
		if err := s.send(ctx, setting, c); err != nil {
			rep.Failed++
			continue
		}
		rep.Sent++
	}
	return nil
}

func (s *AlertService) send(ctx context.Context, setting domain.AlertSetting, c domain.AlertCandidate) error {
	log := s.logger.With(
		slog.String("setting_id", setting.ID),
		slog.String("opportunity_id", c.Opportunity.ID),
	)

	subject := notify.AlertSubject(c)
	body, err := notify.RenderAlert(c)
	if err != nil {
		log.ErrorContext(ctx, "render alert failed", slog.String("error", err.Error()))
		return err
	}

	var messageID string
	err = retry.Do(ctx, s.policy, log, "send alert", func(ctx context.Context) error {
		var err error
		messageID, err = s.mailer.SendEmail(ctx, setting.Email, subject, body)
		return err
	})
	if err != nil {
		log.WarnContext(ctx, "alert send abandoned", slog.String("error", err.Error()))
		notifyOps(ctx, s.ops, s.logger, notify.EventAlertAbandoned,
			"Alert email abandoned",
			fmt.Sprintf("alert for opportunity %s to %s failed: %v", c.Opportunity.ID, setting.Email, err))
		return err
	}

	h := domain.AlertHistory{
		ID:             uuid.NewString(),
		AlertSettingID: setting.ID,
		OpportunityID:  c.Opportunity.ID,
		Email:          setting.Email,
		Subject:        subject,
		SentAt:         s.now().UTC(),
	}
	if err := s.alerts.RecordSent(ctx, h); err != nil {
		// The email went out; the next run may send it again.
		log.ErrorContext(ctx, "record alert history failed", slog.String("error", err.Error()))
		return err
	}
	log.InfoContext(ctx, "alert sent", slog.String("message_id", messageID))
	return nil
}
