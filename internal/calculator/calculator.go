package calculator

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// CostBreakdown is the total cost of winning an auction lot.
type CostBreakdown struct {
	WinningBid   float64
	BuyerPremium float64
	LotFee       float64
	Tax          float64
	TotalCost    float64
}

// RevenueBreakdown is what a sale on a marketplace nets the seller.
type RevenueBreakdown struct {
	SellPrice    float64
	PlatformFees float64
	ShippingCost float64
	NetRevenue   float64
}

// ProfitResult combines both sides of the trade.
type ProfitResult struct {
	Cost    CostBreakdown
	Revenue RevenueBreakdown
	Profit  float64
	ROIPct  float64
}

// ErrNotFinite is returned when a price, cost or rate is NaN or infinite.
var ErrNotFinite = errors.New("calculator: non-finite input")

var hundred = decimal.NewFromInt(100)

// dec panics on NaN and Inf; callers check inputs with finite first.
func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func finite(name string, vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s = %v", ErrNotFinite, name, v)
		}
	}
	return nil
}

// SourceCost returns the cost of winning a lot at bid. The buyer premium and
// tax are each rounded to cents before summing; tax applies to bid plus
// premium but not to the lot fee.
func SourceCost(bid float64, fees FeeSchedule, taxRate float64) (CostBreakdown, error) {
	cost, _, err := sourceCost(bid, fees, taxRate)
	return cost, err
}

func sourceCost(bid float64, fees FeeSchedule, taxRate float64) (CostBreakdown, decimal.Decimal, error) {
	if err := finite("bid", bid); err != nil {
		return CostBreakdown{}, decimal.Zero, err
	}
	if err := finite("auction fees", fees.BuyerPremiumRate, fees.LotFee, taxRate); err != nil {
		return CostBreakdown{}, decimal.Zero, err
	}
	b := dec(bid)
	premium := b.Mul(dec(fees.BuyerPremiumRate)).Round(2)
	tax := b.Add(premium).Mul(dec(taxRate)).Round(2)
	total := b.Add(premium).Add(dec(fees.LotFee)).Add(tax)

	return CostBreakdown{
		WinningBid:   bid,
		BuyerPremium: premium.InexactFloat64(),
		LotFee:       fees.LotFee,
		Tax:          tax.InexactFloat64(),
		TotalCost:    total.InexactFloat64(),
	}, total, nil
}

// Revenue returns the net proceeds of selling at price on marketplace m.
// An unsupported marketplace yields domain.ErrUnknownMarketplace.
func Revenue(m domain.Marketplace, price, shipping float64, category string, fees FeeSchedule) (RevenueBreakdown, error) {
	rev, _, err := netRevenue(m, price, shipping, category, fees)
	return rev, err
}

func netRevenue(m domain.Marketplace, price, shipping float64, category string, fees FeeSchedule) (RevenueBreakdown, decimal.Decimal, error) {
	if err := finite("price", price, shipping); err != nil {
		return RevenueBreakdown{}, decimal.Zero, err
	}
	net, fee, err := revenue(m, dec(price), dec(shipping), category, fees)
	if err != nil {
		return RevenueBreakdown{}, decimal.Zero, err
	}
	return RevenueBreakdown{
		SellPrice:    price,
		PlatformFees: fee.Round(2).InexactFloat64(),
		ShippingCost: shipping,
		NetRevenue:   net.InexactFloat64(),
	}, net, nil
}

func revenue(m domain.Marketplace, price, shipping decimal.Decimal, category string, fees FeeSchedule) (net, fee decimal.Decimal, err error) {
	switch m {
	case domain.MarketplaceEbay:
		if err := finite("ebay fees", fees.EbayFVFRate, fees.EbayPerOrderFee); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		fee = price.Mul(dec(fees.EbayFVFRate)).Add(dec(fees.EbayPerOrderFee))
	case domain.MarketplaceAmazon:
		if err := finite("amazon fees", fees.ReferralRate(category), fees.FulfillmentFee()); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		fee = price.Mul(dec(fees.ReferralRate(category))).Add(dec(fees.FulfillmentFee()))
	case domain.MarketplaceFacebook:
		return price.Sub(shipping), decimal.Zero, nil
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("calculator: %w: %q", domain.ErrUnknownMarketplace, m)
	}
	return price.Sub(fee).Sub(shipping), fee, nil
}

// Profit computes cost, revenue, profit and ROI for buying at bid and
// reselling at price on marketplace m. ROI is zero when total cost is not
// positive. Non-finite inputs yield ErrNotFinite.
func Profit(bid, price float64, m domain.Marketplace, category string, shipping, taxRate float64, fees FeeSchedule) (ProfitResult, error) {
	cost, total, err := sourceCost(bid, fees, taxRate)
	if err != nil {
		return ProfitResult{}, err
	}
	rev, net, err := netRevenue(m, price, shipping, category, fees)
	if err != nil {
		return ProfitResult{}, err
	}

	profit := net.Sub(total).Round(2)

	roi := decimal.Zero
	if total.IsPositive() {
		roi = profit.Div(total).Mul(hundred).Round(2)
	}

	return ProfitResult{
		Cost:    cost,
		Revenue: rev,
		Profit:  profit.InexactFloat64(),
		ROIPct:  roi.InexactFloat64(),
	}, nil
}

// Round2 rounds to cents, half away from zero. NaN and Inf pass through.
func Round2(f float64) float64 {
	if finite("", f) != nil {
		return f
	}
	return dec(f).Round(2).InexactFloat64()
}
