package domain

import "time"

// Opportunity pairs one listing with one resale marketplace. It is derived
// data: the refresh job deletes and regenerates a listing's full set on
// every run.
type Opportunity struct {
	ID                 string
	ProductID          string
	ListingID          string
	Marketplace        Marketplace
	BuyCost            float64
	EstimatedSellPrice float64
	PlatformFees       float64
	ShippingCost       float64
	Profit             float64
	ROIPct             float64
	ConfidenceScore    float64
	CreatedAt          time.Time
}

// AlertCandidate is an opportunity joined with the listing and product
// fields an alert renders.
type AlertCandidate struct {
	Opportunity Opportunity
	Title       string
	Category    string
	ImageURL    string
	ListingURL  string
	CurrentBid  float64
}
