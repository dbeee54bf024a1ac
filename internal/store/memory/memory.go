// Package memory is an in-process implementation of the domain stores, used
// by service tests. Every store shares one DB so joins see consistent data.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// DB holds all state behind a single mutex.
type DB struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	listings   map[string]domain.Listing
	byExternal map[string]string
	prices     []domain.PriceObservation
	opps       map[string][]domain.Opportunity
	settings   map[string]domain.AlertSetting
	history    map[historyKey]domain.AlertHistory

	// ReplaceHook, when set, runs inside ReplaceForListing after the old set
	// is deleted and before the new set is inserted. Returning an error
	// aborts the replacement as a failed transaction would. The hook runs
	// under the DB lock and must not call back into the stores.
	ReplaceHook func(listingID string) error
}

type historyKey struct{ setting, opportunity string }

// New returns an empty DB.
func New() *DB {
	return &DB{
		products:   make(map[string]domain.Product),
		listings:   make(map[string]domain.Listing),
		byExternal: make(map[string]string),
		opps:       make(map[string][]domain.Opportunity),
		settings:   make(map[string]domain.AlertSetting),
		history:    make(map[historyKey]domain.AlertHistory),
	}
}

// Products returns the product store view.
func (db *DB) Products() *ProductStore { return &ProductStore{db} }

// Listings returns the listing store view.
func (db *DB) Listings() *ListingStore { return &ListingStore{db} }

// Prices returns the price store view.
func (db *DB) Prices() *PriceStore { return &PriceStore{db} }

// Opportunities returns the opportunity store view.
func (db *DB) Opportunities() *OpportunityStore { return &OpportunityStore{db} }

// Alerts returns the alert store view.
func (db *DB) Alerts() *AlertStore { return &AlertStore{db} }

// HistoryCount returns the number of alert history rows.
func (db *DB) HistoryCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.history)
}

// ProductStore implements domain.ProductStore.
type ProductStore struct{ db *DB }

func (s *ProductStore) Create(_ context.Context, p domain.Product) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.products[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if p.UPC != nil {
		for _, existing := range s.db.products {
			if existing.UPC != nil && *existing.UPC == *p.UPC {
				return domain.ErrAlreadyExists
			}
		}
	}
	p.UpdatedAt = p.CreatedAt
	s.db.products[p.ID] = p
	return nil
}

func (s *ProductStore) GetByID(_ context.Context, id string) (domain.Product, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	p, ok := s.db.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *ProductStore) GetByUPC(_ context.Context, upc string) (domain.Product, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, p := range s.db.products {
		if p.UPC != nil && *p.UPC == upc {
			return p, nil
		}
	}
	return domain.Product{}, domain.ErrNotFound
}

func (s *ProductStore) MarkLookedUp(_ context.Context, id string, asin, category *string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.ASIN == nil {
		p.ASIN = asin
	}
	if p.Category == nil {
		p.Category = category
	}
	p.LookedUpAt = &at
	p.UpdatedAt = at
	s.db.products[id] = p
	return nil
}

func (s *ProductStore) ListStale(_ context.Context, before time.Time, limit int) ([]domain.Product, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	active := make(map[string]bool)
	for _, l := range s.db.listings {
		if l.Status == domain.ListingStatusActive {
			active[l.ProductID] = true
		}
	}
	var out []domain.Product
	for _, p := range s.db.products {
		if active[p.ID] && (p.LookedUpAt == nil || p.LookedUpAt.Before(before)) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return cmp.Compare(lookedUp(a), lookedUp(b))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func lookedUp(p domain.Product) int64 {
	if p.LookedUpAt == nil {
		return 0
	}
	return p.LookedUpAt.UnixNano()
}

// ListingStore implements domain.ListingStore.
type ListingStore struct{ db *DB }

func (s *ListingStore) Create(_ context.Context, l domain.Listing) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.byExternal[l.ExternalID]; ok {
		return domain.ErrAlreadyExists
	}
	l.UpdatedAt = l.CreatedAt
	s.db.listings[l.ID] = l
	s.db.byExternal[l.ExternalID] = l.ID
	return nil
}

func (s *ListingStore) GetByExternalID(_ context.Context, externalID string) (domain.Listing, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	id, ok := s.db.byExternal[externalID]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return s.db.listings[id], nil
}

func (s *ListingStore) UpdateSighting(_ context.Context, id string, bid float64, closesAt *time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	l, ok := s.db.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.CurrentBid = bid
	if closesAt != nil {
		l.ClosesAt = closesAt
	}
	s.db.listings[id] = l
	return nil
}

// SetStatus changes a listing's status, as the auction source would.
func (s *ListingStore) SetStatus(id string, status domain.ListingStatus) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if l, ok := s.db.listings[id]; ok {
		l.Status = status
		s.db.listings[id] = l
	}
}

func (s *ListingStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.Listing
	for _, l := range s.db.listings {
		if l.Status == domain.ListingStatusActive {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b domain.Listing) int { return cmp.Compare(a.ID, b.ID) })
	return page(out, opts), nil
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// PriceStore implements domain.PriceStore.
type PriceStore struct{ db *DB }

func (s *PriceStore) InsertBatch(_ context.Context, obs []domain.PriceObservation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.prices = append(s.db.prices, obs...)
	return nil
}

func (s *PriceStore) ListSince(_ context.Context, productID string, since time.Time) ([]domain.PriceObservation, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.PriceObservation
	for _, o := range s.db.prices {
		if o.ProductID == productID && !o.FetchedAt.Before(since) {
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.PriceObservation) int {
		return b.FetchedAt.Compare(a.FetchedAt)
	})
	return out, nil
}

// OpportunityStore implements domain.OpportunityStore.
type OpportunityStore struct{ db *DB }

func (s *OpportunityStore) ReplaceForListing(_ context.Context, listingID string, opps []domain.Opportunity) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.listings[listingID]; !ok {
		return domain.ErrNotFound
	}

	// Stage the swap; nothing is visible until the final assignment.
	staged := make(map[string][]domain.Opportunity, len(s.db.opps))
	for k, v := range s.db.opps {
		staged[k] = v
	}
	delete(staged, listingID)

	if s.db.ReplaceHook != nil {
		if err := s.db.ReplaceHook(listingID); err != nil {
			return err
		}
	}

	if len(opps) > 0 {
		staged[listingID] = slices.Clone(opps)
	}
	s.db.opps = staged
	return nil
}

func (s *OpportunityStore) ListByListing(_ context.Context, listingID string) ([]domain.Opportunity, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := slices.Clone(s.db.opps[listingID])
	slices.SortFunc(out, func(a, b domain.Opportunity) int { return cmp.Compare(a.Marketplace, b.Marketplace) })
	return out, nil
}

func (s *OpportunityStore) ListCandidates(_ context.Context, setting domain.AlertSetting) ([]domain.AlertCandidate, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.AlertCandidate
	for listingID, opps := range s.db.opps {
		l := s.db.listings[listingID]
		if l.Status != domain.ListingStatusActive {
			continue
		}
		for _, o := range opps {
			p := s.db.products[o.ProductID]
			if !setting.Matches(o.Profit, o.ROIPct, p.CategoryName()) {
				continue
			}
			c := domain.AlertCandidate{
				Opportunity: o,
				Title:       p.Title,
				Category:    p.CategoryName(),
				ListingURL:  l.URL,
				CurrentBid:  l.CurrentBid,
			}
			if p.ImageURL != nil {
				c.ImageURL = *p.ImageURL
			}
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.AlertCandidate) int {
		if c := cmp.Compare(b.Opportunity.Profit, a.Opportunity.Profit); c != 0 {
			return c
		}
		return cmp.Compare(a.Opportunity.ID, b.Opportunity.ID)
	})
	return out, nil
}

// AlertStore implements domain.AlertStore.
type AlertStore struct{ db *DB }

func (s *AlertStore) ListActiveSettings(_ context.Context) ([]domain.AlertSetting, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []domain.AlertSetting
	for _, a := range s.db.settings {
		if a.IsActive {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.AlertSetting) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *AlertStore) UpsertSetting(_ context.Context, a domain.AlertSetting) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.settings[a.ID] = a
	return nil
}

func (s *AlertStore) HasSent(_ context.Context, settingID, opportunityID string) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	_, ok := s.db.history[historyKey{settingID, opportunityID}]
	return ok, nil
}

func (s *AlertStore) RecordSent(_ context.Context, h domain.AlertHistory) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	k := historyKey{h.AlertSettingID, h.OpportunityID}
	if _, ok := s.db.history[k]; !ok {
		s.db.history[k] = h
	}
	return nil
}

var (
	_ domain.ProductStore     = (*ProductStore)(nil)
	_ domain.ListingStore     = (*ListingStore)(nil)
	_ domain.PriceStore       = (*PriceStore)(nil)
	_ domain.OpportunityStore = (*OpportunityStore)(nil)
	_ domain.AlertStore       = (*AlertStore)(nil)
)

// Locks is an in-process domain.LockManager. TTLs are ignored; a lock is
// held until its unlock func runs.
type Locks struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocks returns an empty lock table.
func NewLocks() *Locks {
	return &Locks{held: make(map[string]bool)}
}

func (l *Locks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

var _ domain.LockManager = (*Locks)(nil)
