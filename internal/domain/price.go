package domain

import (
	"fmt"
	"strings"
	"time"
)

// Marketplace identifies a resale venue.
type Marketplace string

const (
	MarketplaceEbay     Marketplace = "ebay"
	MarketplaceAmazon   Marketplace = "amazon"
	MarketplaceFacebook Marketplace = "facebook"
)

// ParseMarketplace maps a stored marketplace name onto the closed set.
func ParseMarketplace(s string) (Marketplace, error) {
	switch m := Marketplace(strings.ToLower(strings.TrimSpace(s))); m {
	case MarketplaceEbay, MarketplaceAmazon, MarketplaceFacebook:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMarketplace, s)
	}
}

// MetadataRank is the metadata key carrying the sales-rank signal.
const MetadataRank = "bsr"

// PriceObservation is one sell-side price seen on a marketplace. Observations
// are append-only.
type PriceObservation struct {
	ID           string
	ProductID    string
	Marketplace  Marketplace
	Price        float64
	ShippingCost *float64
	Condition    *string
	URL          string
	SellerInfo   *string
	Metadata     map[string]any
	FetchedAt    time.Time
}

// Rank returns the sales-rank signal carried in Metadata, if any.
func (o PriceObservation) Rank() (int, bool) {
	if o.Metadata == nil {
		return 0, false
	}
	switch v := o.Metadata[MetadataRank].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
