package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/notify"
	"github.com/alanyoungcy/auctionarb/internal/platform/ebay"
	"github.com/alanyoungcy/auctionarb/internal/platform/keepa"
)

// PriceWindow is how far back observations count toward an opportunity.
const PriceWindow = 48 * time.Hour

// LookupOptions bounds background re-pricing.
type LookupOptions struct {
	MaxStalePerRun int
	Concurrency    int
}

// PriceService records marketplace prices and runs the lookups that
// produce them.
type PriceService struct {
	products domain.ProductStore
	prices   domain.PriceStore
	ebay     EbaySearcher
	amazon   AmazonLookup
	ops      OpsNotifier
	opts     LookupOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewPriceService creates a PriceService. Either lookup collaborator may be
// nil when its credentials are not configured.
func NewPriceService(
	products domain.ProductStore,
	prices domain.PriceStore,
	ebayClient EbaySearcher,
	amazon AmazonLookup,
	ops OpsNotifier,
	opts LookupOptions,
	logger *slog.Logger,
) *PriceService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &PriceService{
		products: products,
		prices:   prices,
		ebay:     ebayClient,
		amazon:   amazon,
		ops:      ops,
		opts:     opts,
		logger:   logger.With(slog.String("component", "price")),
		now:      time.Now,
	}
}

// RecordObservations appends observations for a product, filling in ids
// and fetch times that are unset.
func (s *PriceService) RecordObservations(ctx context.Context, productID string, obs []domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}
	now := s.now().UTC()
	batch := make([]domain.PriceObservation, len(obs))
	for i, o := range obs {
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		if o.FetchedAt.IsZero() {
			o.FetchedAt = now
		}
		o.ProductID = productID
		batch[i] = o
	}
	if err := s.prices.InsertBatch(ctx, batch); err != nil {
		return fmt.Errorf("price: record observations: %w", err)
	}
	return nil
}

// Window returns the product's observations fetched within PriceWindow of
// now, newest first.
func (s *PriceService) Window(ctx context.Context, productID string, now time.Time) ([]domain.PriceObservation, error) {
	obs, err := s.prices.ListSince(ctx, productID, now.Add(-PriceWindow))
	if err != nil {
		return nil, fmt.Errorf("price: window for %s: %w", productID, err)
	}
	return obs, nil
}

// LookupResult counts what one product lookup stored.
type LookupResult struct {
	Ebay   int
	Amazon int
}

// LookupProduct queries eBay and Amazon concurrently and stores what each
// returns. A failing collaborator is reported and abandoned without
// affecting the other. The product is stamped as looked up unless every
// collaborator failed.
func (s *PriceService) LookupProduct(ctx context.Context, p domain.Product) (LookupResult, error) {
	var (
		res      LookupResult
		g        errgroup.Group
		mu       sync.Mutex
		errs     []error
		asin     *string
		category *string
		ran      int
	)
	fail := func(source string, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", source, err))
		mu.Unlock()
		s.logger.WarnContext(ctx, "lookup abandoned",
			slog.String("product_id", p.ID),
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		notifyOps(ctx, s.ops, s.logger, notify.EventLookupAbandoned,
			"Price lookup abandoned",
			fmt.Sprintf("%s lookup for product %s (%s) failed: %v", source, p.ID, p.Title, err))
	}

	if s.ebay != nil {
		ran++
		g.Go(func() error {
			n, err := s.lookupEbay(ctx, p)
			if err != nil {
				fail("ebay", err)
				return nil
			}
			res.Ebay = n
			return nil
		})
	}
	if s.amazon != nil && p.UPC != nil {
		ran++
		g.Go(func() error {
			n, kp, err := s.lookupAmazon(ctx, p)
			if err != nil {
				fail("keepa", err)
				return nil
			}
			res.Amazon = n
			if kp.ASIN != "" {
				asin = &kp.ASIN
			}
			if kp.Category != "" {
				category = &kp.Category
			}
			return nil
		})
	}
	_ = g.Wait()

	if ran > 0 && len(errs) == ran {
		return res, fmt.Errorf("price: lookup %s: %w", p.ID, errors.Join(errs...))
	}
	if err := s.products.MarkLookedUp(ctx, p.ID, asin, category, s.now().UTC()); err != nil {
		return res, fmt.Errorf("price: mark looked up %s: %w", p.ID, err)
	}
	s.logger.DebugContext(ctx, "product priced",
		slog.String("product_id", p.ID),
		slog.Int("ebay", res.Ebay),
		slog.Int("amazon", res.Amazon),
	)
	return res, nil
}

// lookupEbay searches by UPC and falls back to a title search when the UPC
// is missing or finds nothing.
func (s *PriceService) lookupEbay(ctx context.Context, p domain.Product) (int, error) {
	var items []ebay.Item
	if p.UPC != nil {
		var err error
		if items, err = s.ebay.SearchByUPC(ctx, *p.UPC); err != nil {
			return 0, err
		}
	}
	if len(items) == 0 && p.Title != "" {
		var err error
		if items, err = s.ebay.SearchByKeyword(ctx, p.Title, ""); err != nil {
			return 0, err
		}
	}

	obs := make([]domain.PriceObservation, 0, len(items))
	for _, it := range items {
		o := domain.PriceObservation{
			Marketplace:  domain.MarketplaceEbay,
			Price:        it.Price,
			ShippingCost: it.ShippingCost,
			URL:          it.URL,
			Metadata:     map[string]any{"item_id": it.ItemID, "currency": it.Currency},
		}
		if it.Condition != "" {
			o.Condition = &it.Condition
		}
		if it.Seller != "" {
			o.SellerInfo = &it.Seller
		}
		for k, v := range it.Extra {
			o.Metadata[k] = v
		}
		obs = append(obs, o)
	}
	if err := s.RecordObservations(ctx, p.ID, obs); err != nil {
		return 0, err
	}
	return len(obs), nil
}

func (s *PriceService) lookupAmazon(ctx context.Context, p domain.Product) (int, keepa.Product, error) {
	kp, found, err := s.amazon.LookupByUPC(ctx, *p.UPC)
	if err != nil || !found {
		return 0, kp, err
	}
	if kp.Price == nil {
		return 0, kp, nil
	}

	meta := map[string]any{
		"asin":             kp.ASIN,
		"new_offer_count":  kp.NewOfferCount,
		"used_offer_count": kp.UsedOfferCount,
	}
	if kp.SalesRank != nil {
		meta[domain.MetadataRank] = *kp.SalesRank
	}
	if kp.AvgPrice30d != nil {
		meta["avg_price_30d"] = *kp.AvgPrice30d
	}
	if kp.AvgPrice90d != nil {
		meta["avg_price_90d"] = *kp.AvgPrice90d
	}
	cond := string(domain.ConditionNew)
	free := 0.0
	obs := domain.PriceObservation{
		Marketplace:  domain.MarketplaceAmazon,
		Price:        *kp.Price,
		ShippingCost: &free,
		Condition:    &cond,
		URL:          kp.URL,
		Metadata:     meta,
	}
	if err := s.RecordObservations(ctx, p.ID, []domain.PriceObservation{obs}); err != nil {
		return 0, kp, err
	}
	return 1, kp, nil
}

// LookupReport summarizes a batch of product lookups.
type LookupReport struct {
	Products     int
	Succeeded    int
	Failed       int
	Observations int
}

// LookupAll prices products with bounded concurrency. Failures are counted,
// never returned.
func (s *PriceService) LookupAll(ctx context.Context, products []domain.Product) LookupReport {
	var (
		rep LookupReport
		mu  sync.Mutex
	)
	rep.Products = len(products)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, p := range products {
		g.Go(func() error {
			res, err := s.LookupProduct(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			rep.Observations += res.Ebay + res.Amazon
			if err != nil {
				rep.Failed++
				return nil
			}
			rep.Succeeded++
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// RefreshStale re-prices products of active listings whose last lookup is
// older than olderThan, so the price window stays populated.
func (s *PriceService) RefreshStale(ctx context.Context, olderThan time.Duration) (LookupReport, error) {
	limit := s.opts.MaxStalePerRun
	if limit <= 0 {
		limit = 50
	}
	products, err := s.products.ListStale(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return LookupReport{}, fmt.Errorf("price: list stale products: %w", err)
	}
	rep := s.LookupAll(ctx, products)
	if rep.Products > 0 {
		s.logger.InfoContext(ctx, "stale products re-priced",
			slog.Int("products", rep.Products),
			slog.Int("succeeded", rep.Succeeded),
			slog.Int("failed", rep.Failed),
			slog.Int("observations", rep.Observations),
		)
	}
	return rep, nil
}
