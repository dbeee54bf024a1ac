// Package calculator computes auction-side cost and marketplace-side revenue
// for an arbitrage opportunity. All functions are pure; fee rates are passed
// in through FeeSchedule.
package calculator

// FeeSchedule holds every rate and flat fee the calculator applies.
type FeeSchedule struct {
	// Auction side.
	BuyerPremiumRate float64
	LotFee           float64

	// eBay.
	EbayFVFRate     float64
	EbayPerOrderFee float64

	// Amazon. ReferralRates is keyed by category; DefaultReferralRate
	// applies to unknown or empty categories.
	ReferralRates       map[string]float64
	DefaultReferralRate float64
	UseFulfillment      bool
	IsLarge             bool
	FulfillmentSmall    float64
	FulfillmentLarge    float64
}

// DefaultFeeSchedule returns the fee schedule published by the auction
// source and the marketplaces at the time of writing.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		BuyerPremiumRate: 0.15,
		LotFee:           3.00,
		EbayFVFRate:      0.136,
		EbayPerOrderFee:  0.40,
		ReferralRates: map[string]float64{
			"Electronics":    0.08,
			"Computers":      0.08,
			"Video Games":    0.15,
			"Home & Kitchen": 0.15,
			"Toys & Games":   0.15,
			"Clothing":       0.17,
			"Beauty":         0.08,
			"Health":         0.08,
			"Sports":         0.15,
			"Tools":          0.12,
		},
		DefaultReferralRate: 0.15,
		UseFulfillment:      true,
		IsLarge:             false,
		FulfillmentSmall:    3.22,
		FulfillmentLarge:    5.50,
	}
}

// ReferralRate returns the Amazon referral rate for category.
func (f FeeSchedule) ReferralRate(category string) float64 {
	if r, ok := f.ReferralRates[category]; ok {
		return r
	}
	return f.DefaultReferralRate
}

// FulfillmentFee returns the per-unit fulfillment charge, zero when the
// seller ships themselves.
func (f FeeSchedule) FulfillmentFee() float64 {
	if !f.UseFulfillment {
		return 0
	}
	if f.IsLarge {
		return f.FulfillmentLarge
	}
	return f.FulfillmentSmall
}
