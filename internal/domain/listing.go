package domain

import (
	"encoding/json"
	"time"
)

// Condition is the normalized item condition reported by the auction source.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionOpenBox Condition = "open_box"
	ConditionDamaged Condition = "damaged"
	ConditionUnknown Condition = "unknown"
)

// ListingStatus tracks the auction lifecycle. Transitions are driven by the
// source; the engine only ever creates listings as active.
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusClosed    ListingStatus = "closed"
	ListingStatusCancelled ListingStatus = "cancelled"
)

// Listing is one auction lot on the source site.
type Listing struct {
	ID                string
	ExternalID        string
	ProductID         string
	CurrentBid        float64
	RetailPrice       *float64
	Condition         Condition
	ClosesAt          *time.Time
	Status            ListingStatus
	URL               string
	WarehouseLocation *string
	RawPayload        json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NormalizedListing is the canonical form of one scraped auction record,
// before it is attached to a Product.
type NormalizedListing struct {
	ExternalID        string
	Title             string
	CurrentBid        float64
	RetailPrice       *float64
	Condition         Condition
	UPC               *string
	ImageURL          *string
	ClosesAt          *time.Time
	WarehouseLocation *string
	URL               string
	RawPayload        json.RawMessage
}
