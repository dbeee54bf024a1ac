package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/notify"
	"github.com/alanyoungcy/auctionarb/internal/platform/ebay"
	"github.com/alanyoungcy/auctionarb/internal/platform/keepa"
	"github.com/alanyoungcy/auctionarb/internal/store/memory"
)

func newPrices(db *memory.DB, e EbaySearcher, a AmazonLookup, ops OpsNotifier) *PriceService {
	s := NewPriceService(db.Products(), db.Prices(), e, a, ops, LookupOptions{MaxStalePerRun: 10, Concurrency: 2}, discard())
	s.now = fixed
	return s
}

func keepaProduct() keepa.Product {
	rank := 1200
	price := 89.99
	return keepa.Product{
		ASIN:      "B00TEST",
		Category:  "Tools",
		Price:     &price,
		SalesRank: &rank,
		URL:       "https://www.amazon.com/dp/B00TEST",
	}
}

func TestLookupProductStoresBothMarketplaces(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	_, p := seedListing(db, "1", 10, nil)
	p.UPC = strp("012")

	fe := &fakeEbay{byUPC: map[string][]ebay.Item{"012": {
		{ItemID: "a", Price: 80, ShippingCost: f64p(5), Condition: "New", URL: "u1", Seller: "s"},
		{ItemID: "b", Price: 90},
	}}}
	fa := &fakeAmazon{products: map[string]keepa.Product{"012": keepaProduct()}}

	res, err := newPrices(db, fe, fa, nil).LookupProduct(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if res.Ebay != 2 || res.Amazon != 1 {
		t.Errorf("result = %+v", res)
	}

	obs, _ := db.Prices().ListSince(ctx, p.ID, testNow.Add(-time.Hour))
	var amazon *domain.PriceObservation
	for i := range obs {
		if obs[i].Marketplace == domain.MarketplaceAmazon {
			amazon = &obs[i]
		}
	}
	if amazon == nil {
		t.Fatal("no amazon observation")
	}
	if r, ok := amazon.Rank(); !ok || r != 1200 {
		t.Errorf("rank = %d, %v", r, ok)
	}
	if amazon.ShippingCost == nil || *amazon.ShippingCost != 0 || amazon.Price != 89.99 {
		t.Errorf("amazon = %+v", amazon)
	}

	stored, _ := db.Products().GetByID(ctx, p.ID)
	if stored.ASIN == nil || *stored.ASIN != "B00TEST" || stored.CategoryName() != "Tools" || stored.LookedUpAt == nil {
		t.Errorf("product = %+v", stored)
	}
}

func TestLookupProductFallsBackToTitle(t *testing.T) {
	db := memory.New()
	_, p := seedListing(db, "1", 10, nil)
	p.UPC = strp("999")
	fe := &fakeEbay{byTitle: map[string][]ebay.Item{p.Title: {{ItemID: "x", Price: 30}}}}

	res, err := newPrices(db, fe, nil, nil).LookupProduct(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if res.Ebay != 1 {
		t.Errorf("ebay = %d", res.Ebay)
	}
	if want := []string{"upc:999", "kw:" + p.Title}; !slices.Equal(fe.calls, want) {
		t.Errorf("calls = %v, want %v", fe.calls, want)
	}
}

func TestLookupProductOneCollaboratorFails(t *testing.T) {
	db := memory.New()
	_, p := seedListing(db, "1", 10, nil)
	p.UPC = strp("012")
	ops := &fakeOps{}
	fe := &fakeEbay{err: errBoom}
	fa := &fakeAmazon{products: map[string]keepa.Product{"012": keepaProduct()}}

	res, err := newPrices(db, fe, fa, ops).LookupProduct(context.Background(), p)
	if err != nil {
		t.Fatalf("err = %v, want partial success", err)
	}
	if res.Amazon != 1 || res.Ebay != 0 {
		t.Errorf("result = %+v", res)
	}
	if ops.count(notify.EventLookupAbandoned) != 1 {
		t.Errorf("ops events = %v", ops.events)
	}
}

func TestLookupProductAllFailLeavesProductStale(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	_, p := seedListing(db, "1", 10, nil)
	p.UPC = strp("012")

	_, err := newPrices(db, &fakeEbay{err: errBoom}, &fakeAmazon{err: errBoom}, nil).LookupProduct(ctx, p)
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	stored, _ := db.Products().GetByID(ctx, p.ID)
	if stored.LookedUpAt != nil {
		t.Error("product marked looked up after every lookup failed")
	}
}

func TestWindowExcludesOldObservations(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	s := newPrices(db, nil, nil, nil)
	err := s.RecordObservations(ctx, "p1", []domain.PriceObservation{
		{Marketplace: domain.MarketplaceEbay, Price: 1, FetchedAt: testNow.Add(-48 * time.Hour)},
		{Marketplace: domain.MarketplaceEbay, Price: 2, FetchedAt: testNow.Add(-48*time.Hour - time.Second)},
		{Marketplace: domain.MarketplaceEbay, Price: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	obs, err := s.Window(ctx, "p1", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 2 || obs[0].Price != 3 || obs[1].Price != 1 {
		t.Errorf("window = %+v", obs)
	}
	for _, o := range obs {
		if o.ID == "" || o.ProductID != "p1" {
			t.Errorf("observation not filled in: %+v", o)
		}
	}
}

func TestRefreshStale(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	_, fresh := seedListing(db, "1", 10, nil)
	_, stale := seedListing(db, "2", 10, nil)
	_, never := seedListing(db, "3", 10, nil)
	_ = db.Products().MarkLookedUp(ctx, fresh.ID, nil, nil, testNow.Add(-time.Hour))
	_ = db.Products().MarkLookedUp(ctx, stale.ID, nil, nil, testNow.Add(-13*time.Hour))

	fe := &fakeEbay{byTitle: map[string][]ebay.Item{
		stale.Title: {{Price: 10}},
		never.Title: {{Price: 20}},
	}}
	rep, err := newPrices(db, fe, nil, nil).RefreshStale(ctx, 12*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Products != 2 || rep.Succeeded != 2 || rep.Observations != 2 {
		t.Errorf("report = %+v", rep)
	}
	got, _ := db.Products().GetByID(ctx, stale.ID)
	if got.LookedUpAt == nil || !got.LookedUpAt.Equal(testNow) {
		t.Errorf("stale product looked up at %v", got.LookedUpAt)
	}
}
