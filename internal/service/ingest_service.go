package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// IngestService upserts normalized listings and their products.
type IngestService struct {
	products domain.ProductStore
	listings domain.ListingStore
	logger   *slog.Logger
	now      func() time.Time
}

// IngestResult summarizes one ingest batch.
type IngestResult struct {
	Seen    int
	Created int
	Updated int
	Failed  int
	// NeedLookup lists products that have never been priced, each once.
	NeedLookup []domain.Product
}

// NewIngestService creates an IngestService.
func NewIngestService(products domain.ProductStore, listings domain.ListingStore, logger *slog.Logger) *IngestService {
	return &IngestService{
		products: products,
		listings: listings,
		logger:   logger.With(slog.String("component", "ingest")),
		now:      time.Now,
	}
}

// Ingest applies a batch. Re-ingesting a listing updates its bid and close
// time and creates nothing. A failing record is logged and skipped; an error
// is returned only when every record failed.
func (s *IngestService) Ingest(ctx context.Context, batch []domain.NormalizedListing) (IngestResult, error) {
	var (
		res     IngestResult
		errs    []error
		pending = make(map[string]bool)
	)
	for _, nl := range batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Seen++

		created, product, err := s.upsert(ctx, nl)
		if err != nil {
			res.Failed++
			errs = append(errs, err)
			s.logger.WarnContext(ctx, "ingest record failed",
				slog.String("external_id", nl.ExternalID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		if product != nil && product.LookedUpAt == nil && !pending[product.ID] {
			pending[product.ID] = true
			res.NeedLookup = append(res.NeedLookup, *product)
		}
	}

	s.logger.InfoContext(ctx, "ingest batch applied",
		slog.Int("seen", res.Seen),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("failed", res.Failed),
		slog.Int("need_lookup", len(res.NeedLookup)),
	)
	if res.Seen > 0 && res.Failed == res.Seen {
		return res, fmt.Errorf("ingest: every record failed: %w", errors.Join(errs...))
	}
	return res, nil
}

// upsert returns the listing's product only when the listing was created.
func (s *IngestService) upsert(ctx context.Context, nl domain.NormalizedListing) (bool, *domain.Product, error) {
	if nl.ExternalID == "" {
		return false, nil, fmt.Errorf("ingest: %w: empty external id", domain.ErrInvalidRecord)
	}
	existing, err := s.listings.GetByExternalID(ctx, nl.ExternalID)
	switch {
	case err == nil:
		return false, nil, s.updateSighting(ctx, existing.ID, nl)
	case !errors.Is(err, domain.ErrNotFound):
		return false, nil, fmt.Errorf("ingest: get listing %s: %w", nl.ExternalID, err)
	}

	product, err := s.resolveProduct(ctx, nl)
	if err != nil {
		return false, nil, err
	}

	now := s.now().UTC()
	l := domain.Listing{
		ID:                uuid.NewString(),
		ExternalID:        nl.ExternalID,
		ProductID:         product.ID,
		CurrentBid:        nl.CurrentBid,
		RetailPrice:       nl.RetailPrice,
		Condition:         nl.Condition,
		ClosesAt:          nl.ClosesAt,
		Status:            domain.ListingStatusActive,
		URL:               nl.URL,
		WarehouseLocation: nl.WarehouseLocation,
		RawPayload:        nl.RawPayload,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.listings.Create(ctx, l); err != nil {
		// A concurrent run inserted the same lot first.
		if errors.Is(err, domain.ErrAlreadyExists) {
			existing, gerr := s.listings.GetByExternalID(ctx, nl.ExternalID)
			if gerr != nil {
				return false, nil, fmt.Errorf("ingest: reload listing %s: %w", nl.ExternalID, gerr)
			}
			return false, nil, s.updateSighting(ctx, existing.ID, nl)
		}
		return false, nil, fmt.Errorf("ingest: create listing %s: %w", nl.ExternalID, err)
	}
	return true, &product, nil
}

func (s *IngestService) updateSighting(ctx context.Context, id string, nl domain.NormalizedListing) error {
	if err := s.listings.UpdateSighting(ctx, id, nl.CurrentBid, nl.ClosesAt); err != nil {
		return fmt.Errorf("ingest: update listing %s: %w", nl.ExternalID, err)
	}
	return nil
}

// resolveProduct finds the product by UPC or creates one. Listings without a
// UPC always get their own product.
func (s *IngestService) resolveProduct(ctx context.Context, nl domain.NormalizedListing) (domain.Product, error) {
	if nl.UPC != nil {
		p, err := s.products.GetByUPC(ctx, *nl.UPC)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Product{}, fmt.Errorf("ingest: get product by upc: %w", err)
		}
	}

	now := s.now().UTC()
	p := domain.Product{
		ID:        uuid.NewString(),
		UPC:       nl.UPC,
		Title:     nl.Title,
		ImageURL:  nl.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.products.Create(ctx, p)
	if errors.Is(err, domain.ErrAlreadyExists) && nl.UPC != nil {
		return s.products.GetByUPC(ctx, *nl.UPC)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("ingest: create product: %w", err)
	}
	return p, nil
}
