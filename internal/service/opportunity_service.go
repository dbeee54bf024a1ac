package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/auctionarb/internal/calculator"
	"github.com/alanyoungcy/auctionarb/internal/confidence"
	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/notify"
)

// opportunityNamespace scopes deterministic opportunity ids.
var opportunityNamespace = uuid.MustParse("6f1c1f0e-4b7e-4c3a-9a55-2d7f0c7a9e21")

const (
	refreshLockKey = "refresh"
	refreshLockTTL = 10 * time.Minute
	refreshPage    = 200
)

// OpportunityID is the stable id of the (listing, marketplace) pair, so an
// opportunity keeps its identity across refresh cycles.
func OpportunityID(listingID string, m domain.Marketplace) string {
	return uuid.NewSHA1(opportunityNamespace, []byte(listingID+"/"+string(m))).String()
}

// Windower returns a product's recent observations.
type Windower interface {
	Window(ctx context.Context, productID string, now time.Time) ([]domain.PriceObservation, error)
}

// OpportunityService derives opportunities from listings and prices.
type OpportunityService struct {
	listings domain.ListingStore
	products domain.ProductStore
	window   Windower
	opps     domain.OpportunityStore
	locks    domain.LockManager
	ops      OpsNotifier
	fees     calculator.FeeSchedule
	taxRate  float64
	logger   *slog.Logger
	now      func() time.Time
}

// NewOpportunityService creates an OpportunityService. locks may be nil.
func NewOpportunityService(
	listings domain.ListingStore,
	products domain.ProductStore,
	window Windower,
	opps domain.OpportunityStore,
	locks domain.LockManager,
	ops OpsNotifier,
	fees calculator.FeeSchedule,
	taxRate float64,
	logger *slog.Logger,
) *OpportunityService {
	return &OpportunityService{
		listings: listings,
		products: products,
		window:   window,
		opps:     opps,
		locks:    locks,
		ops:      ops,
		fees:     fees,
		taxRate:  taxRate,
		logger:   logger.With(slog.String("component", "opportunity")),
		now:      time.Now,
	}
}

// ComputeForListing derives one opportunity per marketplace present in obs.
// obs must be newest first. It does no I/O.
func (s *OpportunityService) ComputeForListing(l domain.Listing, p domain.Product, obs []domain.PriceObservation, now time.Time) ([]domain.Opportunity, error) {
	groups := make(map[domain.Marketplace][]domain.PriceObservation)
	for _, o := range obs {
		groups[o.Marketplace] = append(groups[o.Marketplace], o)
	}
	markets := make([]domain.Marketplace, 0, len(groups))
	for m := range groups {
		markets = append(markets, m)
	}
	slices.Sort(markets)

	out := make([]domain.Opportunity, 0, len(markets))
	for _, m := range markets {
		group := groups[m]
		price := Median(group)
		shipping := MeanShipping(group)

		res, err := calculator.Profit(l.CurrentBid, price, m, p.CategoryName(), shipping, s.taxRate, s.fees)
		if err != nil {
			return nil, fmt.Errorf("opportunity: listing %s: %w", l.ID, err)
		}

		var rank *int
		if m == domain.MarketplaceAmazon {
			rank = FirstRank(group)
		}
		score := confidence.Score(len(group), FreshnessHours(group, now), rank)

		out = append(out, domain.Opportunity{
			ID:                 OpportunityID(l.ID, m),
			ProductID:          p.ID,
			ListingID:          l.ID,
			Marketplace:        m,
			BuyCost:            res.Cost.TotalCost,
			EstimatedSellPrice: price,
			PlatformFees:       res.Revenue.PlatformFees,
			ShippingCost:       shipping,
			Profit:             res.Profit,
			ROIPct:             res.ROIPct,
			ConfidenceScore:    score,
			CreatedAt:          now,
		})
	}
	return out, nil
}

// Median returns the lower-middle price: for an even count the smaller of
// the two middle values.
func Median(obs []domain.PriceObservation) float64 {
	if len(obs) == 0 {
		return 0
	}
	prices := make([]float64, len(obs))
	for i, o := range obs {
		prices[i] = o.Price
	}
	sort.Float64s(prices)
	return prices[(len(prices)-1)/2]
}

// MeanShipping averages shipping cost, counting a missing cost as zero.
func MeanShipping(obs []domain.PriceObservation) float64 {
	if len(obs) == 0 {
		return 0
	}
	var sum float64
	for _, o := range obs {
		if o.ShippingCost != nil {
			sum += *o.ShippingCost
		}
	}
	return calculator.Round2(sum / float64(len(obs)))
}

// FreshnessHours is the age of the newest observation.
func FreshnessHours(obs []domain.PriceObservation, now time.Time) float64 {
	var newest time.Time
	for _, o := range obs {
		if o.FetchedAt.After(newest) {
			newest = o.FetchedAt
		}
	}
	if newest.IsZero() {
		return 0
	}
	return max(now.Sub(newest).Hours(), 0)
}

// FirstRank returns the first rank signal in obs order.
func FirstRank(obs []domain.PriceObservation) *int {
	for _, o := range obs {
		if r, ok := o.Rank(); ok {
			return &r
		}
	}
	return nil
}

// RefreshListing recomputes a listing's opportunities and swaps them in
// atomically. On failure the previous set stays in place.
func (s *OpportunityService) RefreshListing(ctx context.Context, l domain.Listing) (int, error) {
	p, err := s.products.GetByID(ctx, l.ProductID)
	if err != nil {
		return 0, fmt.Errorf("opportunity: product %s: %w", l.ProductID, err)
	}
	now := s.now().UTC()
	obs, err := s.window.Window(ctx, p.ID, now)
	if err != nil {
		return 0, err
	}
	opps, err := s.ComputeForListing(l, p, obs, now)
	if err != nil {
		return 0, err
	}
	if err := s.opps.ReplaceForListing(ctx, l.ID, opps); err != nil {
		return 0, fmt.Errorf("opportunity: replace for %s: %w", l.ID, err)
	}
	return len(opps), nil
}

// RefreshReport summarizes one refresh run.
type RefreshReport struct {
	Listings      int
	Refreshed     int
	Failed        int
	Opportunities int
	// Skipped is set when another process held the refresh lock.
	Skipped bool
}

// RefreshAll refreshes every active listing. A failing listing is logged
// and counted and the run moves on.
func (s *OpportunityService) RefreshAll(ctx context.Context) (RefreshReport, error) {
	var rep RefreshReport
	held, err := withLock(ctx, s.locks, refreshLockKey, refreshLockTTL, func() error {
		return s.refreshAll(ctx, &rep)
	})
	if held {
		s.logger.InfoContext(ctx, "refresh already running elsewhere, skipping")
		rep.Skipped = true
		return rep, nil
	}
	if err != nil {
		return rep, err
	}

	s.logger.InfoContext(ctx, "opportunities refreshed",
		slog.Int("listings", rep.Listings),
		slog.Int("refreshed", rep.Refreshed),
		slog.Int("failed", rep.Failed),
		slog.Int("opportunities", rep.Opportunities),
	)
	if rep.Failed > 0 {
		notifyOps(ctx, s.ops, s.logger, notify.EventRefreshFailed,
			"Opportunity refresh had failures",
			fmt.Sprintf("%d of %d listings failed to refresh", rep.Failed, rep.Listings))
	}
	return rep, nil
}

func (s *OpportunityService) refreshAll(ctx context.Context, rep *RefreshReport) error {
	for offset := 0; ; offset += refreshPage {
		page, err := s.listings.ListActive(ctx, domain.ListOpts{Limit: refreshPage, Offset: offset})
		if err != nil {
			return fmt.Errorf("opportunity: list active listings: %w", err)
		}
		for _, l := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			rep.Listings++
			n, err := s.RefreshListing(ctx, l)
			if err != nil {
				rep.Failed++
				s.logger.WarnContext(ctx, "listing refresh failed",
					slog.String("listing_id", l.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			rep.Refreshed++
			rep.Opportunities += n
		}
		if len(page) < refreshPage {
			return nil
		}
	}
}
