package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/notify"
	"github.com/alanyoungcy/auctionarb/internal/platform/macbid"
	"github.com/alanyoungcy/auctionarb/internal/service"
)

// ListingSource fetches raw auction payloads.
type ListingSource interface {
	Scrape(ctx context.Context) ([]macbid.Payload, error)
}

// ListingExtractor turns payloads into normalized listings.
type ListingExtractor interface {
	Extract(payloads ...any) []domain.NormalizedListing
}

// Ingester applies normalized listings to the store.
type Ingester interface {
	Ingest(ctx context.Context, batch []domain.NormalizedListing) (service.IngestResult, error)
}

// ProductPricer prices newly seen products.
type ProductPricer interface {
	LookupAll(ctx context.Context, products []domain.Product) service.LookupReport
}

// RawArchiver stores a run's raw payloads.
type RawArchiver interface {
	Archive(ctx context.Context, source, runID string, at time.Time, payloads []json.RawMessage) (string, error)
}

// ListingScraper is the ingest job: scrape, archive, normalize, upsert, then
// price new products.
type ListingScraper struct {
	source    ListingSource
	extractor ListingExtractor
	ingest    Ingester
	pricer    ProductPricer
	archive   RawArchiver
	ops       service.OpsNotifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewListingScraper creates the ingest job. archive and ops may be nil.
func NewListingScraper(
	source ListingSource,
	extractor ListingExtractor,
	ingest Ingester,
	pricer ProductPricer,
	archive RawArchiver,
	ops service.OpsNotifier,
	logger *slog.Logger,
) *ListingScraper {
	return &ListingScraper{
		source:    source,
		extractor: extractor,
		ingest:    ingest,
		pricer:    pricer,
		archive:   archive,
		ops:       ops,
		logger:    logger.With(slog.String("component", "listing_scraper")),
		now:       time.Now,
	}
}

// Run executes one ingest cycle.
func (s *ListingScraper) Run(ctx context.Context) error {
	payloads, err := s.source.Scrape(ctx)
	if err != nil {
		s.fail(ctx, "scrape", err)
		return fmt.Errorf("listing scraper: scrape: %w", err)
	}

	if s.archive != nil {
		s.archiveRaw(ctx, payloads)
	}

	data := make([]any, len(payloads))
	for i, p := range payloads {
		data[i] = p.Data
	}
	listings := s.extractor.Extract(data...)
	s.logger.InfoContext(ctx, "listings extracted",
		slog.Int("payloads", len(payloads)),
		slog.Int("listings", len(listings)),
	)
	if len(listings) == 0 {
		return nil
	}

	res, err := s.ingest.Ingest(ctx, listings)
	if err != nil {
		s.fail(ctx, "ingest", err)
		return fmt.Errorf("listing scraper: ingest: %w", err)
	}

	if len(res.NeedLookup) > 0 {
		rep := s.pricer.LookupAll(ctx, res.NeedLookup)
		s.logger.InfoContext(ctx, "new products priced",
			slog.Int("products", rep.Products),
			slog.Int("succeeded", rep.Succeeded),
			slog.Int("failed", rep.Failed),
			slog.Int("observations", rep.Observations),
		)
	}
	return nil
}

func (s *ListingScraper) archiveRaw(ctx context.Context, payloads []macbid.Payload) {
	if len(payloads) == 0 {
		return
	}
	raw := make([]json.RawMessage, len(payloads))
	for i, p := range payloads {
		raw[i] = p.Raw
	}
	key, err := s.archive.Archive(ctx, "macbid", uuid.NewString(), s.now(), raw)
	if err != nil {
		s.logger.WarnContext(ctx, "raw archive failed", slog.String("error", err.Error()))
		return
	}
	s.logger.DebugContext(ctx, "raw payloads archived", slog.String("key", key))
}

func (s *ListingScraper) fail(ctx context.Context, stage string, err error) {
	if s.ops == nil {
		return
	}
	if nerr := s.ops.Notify(ctx, notify.EventIngestFailed, "Ingest failed",
		fmt.Sprintf("%s stage failed: %v", stage, err)); nerr != nil {
		s.logger.WarnContext(ctx, "operator notification failed", slog.String("error", nerr.Error()))
	}
}
