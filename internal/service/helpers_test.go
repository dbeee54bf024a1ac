package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/calculator"
	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/platform/ebay"
	"github.com/alanyoungcy/auctionarb/internal/platform/keepa"
	"github.com/alanyoungcy/auctionarb/internal/retry"
	"github.com/alanyoungcy/auctionarb/internal/store/memory"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fixed() time.Time { return testNow }

func strp(s string) *string { return &s }
func f64p(f float64) *float64 { return &f }

type fakeEbay struct {
	byUPC   map[string][]ebay.Item
	byTitle map[string][]ebay.Item
	err     error
	calls   []string
	mu      sync.Mutex
}

func (f *fakeEbay) SearchByUPC(_ context.Context, upc string) ([]ebay.Item, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "upc:"+upc)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.byUPC[upc], nil
}

func (f *fakeEbay) SearchByKeyword(_ context.Context, q, _ string) ([]ebay.Item, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "kw:"+q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.byTitle[q], nil
}

type fakeAmazon struct {
	products map[string]keepa.Product
	err      error
}

func (f *fakeAmazon) LookupByUPC(_ context.Context, upc string) (keepa.Product, bool, error) {
	if f.err != nil {
		return keepa.Product{}, false, f.err
	}
	p, ok := f.products[upc]
	return p, ok, nil
}

type fakeOps struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeOps) Notify(_ context.Context, event, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOps) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

type sentEmail struct{ to, subject, html string }

type fakeMailer struct {
	mu sync.Mutex
	// failFor makes every send to that address fail with a 500.
	failFor map[string]bool
	sent    []sentEmail
	calls   int
	// onSend runs on every call, before the outcome is decided.
	onSend func()
}

func (f *fakeMailer) SendEmail(_ context.Context, to, subject, html string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onSend != nil {
		f.onSend()
	}
	if f.failFor[to] {
		return "", &retry.StatusError{Service: "resend", StatusCode: 500}
	}
	f.sent = append(f.sent, sentEmail{to, subject, html})
	return "msg", nil
}

var errBoom = errors.New("boom")

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: time.Second}
}

// seedListing stores a product and an active listing and returns both.
func seedListing(db *memory.DB, externalID string, bid float64, category *string) (domain.Listing, domain.Product) {
	ctx := context.Background()
	p := domain.Product{ID: "p-" + externalID, Title: "Item " + externalID, Category: category, CreatedAt: testNow}
	if err := db.Products().Create(ctx, p); err != nil {
		panic(err)
	}
	l := domain.Listing{
		ID:         "l-" + externalID,
		ExternalID: externalID,
		ProductID:  p.ID,
		CurrentBid: bid,
		Condition:  domain.ConditionNew,
		Status:     domain.ListingStatusActive,
		URL:        "https://mac.bid/auction/" + externalID,
		CreatedAt:  testNow,
	}
	if err := db.Listings().Create(ctx, l); err != nil {
		panic(err)
	}
	return l, p
}

func observation(productID string, m domain.Marketplace, price float64, shipping *float64, age time.Duration) domain.PriceObservation {
	return domain.PriceObservation{
		ID:           productID + string(m) + age.String(),
		ProductID:    productID,
		Marketplace:  m,
		Price:        price,
		ShippingCost: shipping,
		FetchedAt:    testNow.Add(-age),
	}
}

func newOpportunityService(db *memory.DB, locks domain.LockManager, ops OpsNotifier) *OpportunityService {
	prices := NewPriceService(db.Products(), db.Prices(), nil, nil, ops, LookupOptions{}, discard())
	prices.now = fixed
	s := NewOpportunityService(db.Listings(), db.Products(), prices, db.Opportunities(), locks, ops,
		calculator.DefaultFeeSchedule(), 0.06, discard())
	s.now = fixed
	return s
}
