package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/store/memory"
)

func normalized(id string, bid float64, upc *string) domain.NormalizedListing {
	return domain.NormalizedListing{
		ExternalID: id,
		Title:      "Lot " + id,
		CurrentBid: bid,
		Condition:  domain.ConditionOpenBox,
		UPC:        upc,
		URL:        "https://mac.bid/auction/" + id,
		RawPayload: json.RawMessage(`{"id":"` + id + `"}`),
	}
}

func newIngest(db *memory.DB) *IngestService {
	s := NewIngestService(db.Products(), db.Listings(), discard())
	s.now = fixed
	return s
}

func TestIngestCreatesListingsAndProducts(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	upc := strp("012345678905")

	res, err := newIngest(db).Ingest(ctx, []domain.NormalizedListing{
		normalized("1", 10, upc),
		normalized("2", 20, upc),
		normalized("3", 30, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Seen != 3 || res.Created != 3 || res.Updated != 0 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(res.NeedLookup) != 2 {
		t.Fatalf("need lookup = %d, want 2 (shared UPC counted once)", len(res.NeedLookup))
	}

	l1, _ := db.Listings().GetByExternalID(ctx, "1")
	l2, _ := db.Listings().GetByExternalID(ctx, "2")
	l3, _ := db.Listings().GetByExternalID(ctx, "3")
	if l1.ProductID != l2.ProductID {
		t.Error("listings with the same UPC got different products")
	}
	if l3.ProductID == l1.ProductID {
		t.Error("listing without UPC reused a product")
	}
	if l1.Status != domain.ListingStatusActive || l1.Condition != domain.ConditionOpenBox || string(l1.RawPayload) != `{"id":"1"}` {
		t.Errorf("listing = %+v", l1)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	s := newIngest(db)

	first := normalized("1", 10, nil)
	if _, err := s.Ingest(ctx, []domain.NormalizedListing{first}); err != nil {
		t.Fatal(err)
	}
	before, _ := db.Listings().GetByExternalID(ctx, "1")

	closes := testNow.Add(24 * time.Hour)
	again := normalized("1", 15, nil)
	again.ClosesAt = &closes
	res, err := s.Ingest(ctx, []domain.NormalizedListing{again})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 || res.Updated != 1 || len(res.NeedLookup) != 0 {
		t.Errorf("result = %+v", res)
	}

	after, _ := db.Listings().GetByExternalID(ctx, "1")
	if after.ID != before.ID || after.ProductID != before.ProductID {
		t.Error("re-ingest created a new listing or product")
	}
	if after.CurrentBid != 15 || after.ClosesAt == nil || !after.ClosesAt.Equal(closes) {
		t.Errorf("after = %+v", after)
	}

	// A sighting without a close time keeps the known one.
	if _, err := s.Ingest(ctx, []domain.NormalizedListing{normalized("1", 16, nil)}); err != nil {
		t.Fatal(err)
	}
	after, _ = db.Listings().GetByExternalID(ctx, "1")
	if after.ClosesAt == nil || after.CurrentBid != 16 {
		t.Errorf("after second sighting = %+v", after)
	}
}

func TestIngestSkipsPricedProducts(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	upc := strp("111")
	s := newIngest(db)

	res, _ := s.Ingest(ctx, []domain.NormalizedListing{normalized("1", 10, upc)})
	if err := db.Products().MarkLookedUp(ctx, res.NeedLookup[0].ID, nil, nil, testNow); err != nil {
		t.Fatal(err)
	}
	res, err := s.Ingest(ctx, []domain.NormalizedListing{normalized("2", 10, upc)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 1 || len(res.NeedLookup) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestIngestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newIngest(memory.New()).Ingest(ctx, []domain.NormalizedListing{normalized("1", 1, nil)}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestIngestRejectsRecordWithoutID(t *testing.T) {
	res, err := newIngest(memory.New()).Ingest(context.Background(), []domain.NormalizedListing{
		normalized("", 5, nil),
		normalized("7", 5, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Created != 1 {
		t.Errorf("result = %+v", res)
	}

	_, err = newIngest(memory.New()).Ingest(context.Background(), []domain.NormalizedListing{normalized("", 5, nil)})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Errorf("err = %v, want ErrInvalidRecord", err)
	}
}
