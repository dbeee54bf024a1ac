package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ProductStore persists products.
type ProductStore interface {
	Create(ctx context.Context, p Product) error
	GetByID(ctx context.Context, id string) (Product, error)
	GetByUPC(ctx context.Context, upc string) (Product, error)
	// MarkLookedUp stamps the product's lookup time and fills ASIN and
	// Category when they are still empty.
	MarkLookedUp(ctx context.Context, id string, asin, category *string, at time.Time) error
	// ListStale returns products with at least one active listing that were
	// never looked up or last looked up before the given time, oldest first.
	ListStale(ctx context.Context, before time.Time, limit int) ([]Product, error)
}

// ListingStore persists auction listings.
type ListingStore interface {
	Create(ctx context.Context, l Listing) error
	GetByExternalID(ctx context.Context, externalID string) (Listing, error)
	// UpdateSighting applies the fields that change between sightings of the
	// same lot: current bid and, when known, close time.
	UpdateSighting(ctx context.Context, id string, bid float64, closesAt *time.Time) error
	ListActive(ctx context.Context, opts ListOpts) ([]Listing, error)
}

// PriceStore persists price observations. Observations are append-only.
type PriceStore interface {
	InsertBatch(ctx context.Context, obs []PriceObservation) error
	// ListSince returns a product's observations fetched at or after since,
	// newest first.
	ListSince(ctx context.Context, productID string, since time.Time) ([]PriceObservation, error)
}

// OpportunityStore persists derived opportunities.
type OpportunityStore interface {
	// ReplaceForListing deletes every opportunity of the listing and inserts
	// opps in a single transaction. On error the prior set is untouched.
	ReplaceForListing(ctx context.Context, listingID string, opps []Opportunity) error
	ListByListing(ctx context.Context, listingID string) ([]Opportunity, error)
	// ListCandidates returns opportunities passing the setting's thresholds
	// and category filter, joined with listing and product fields.
	ListCandidates(ctx context.Context, setting AlertSetting) ([]AlertCandidate, error)
}

// AlertStore persists alert settings and the alert history used for dedup.
type AlertStore interface {
	ListActiveSettings(ctx context.Context) ([]AlertSetting, error)
	UpsertSetting(ctx context.Context, s AlertSetting) error
	HasSent(ctx context.Context, settingID, opportunityID string) (bool, error)
	// RecordSent inserts the history row; a duplicate pair is a no-op.
	RecordSent(ctx context.Context, h AlertHistory) error
}
