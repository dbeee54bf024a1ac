// Package confidence scores how much an opportunity's price estimate can be
// trusted, on a 0-100 scale.
package confidence

// NeutralRank is the rank band contribution when no rank signal exists.
const NeutralRank = 15

// Score sums the quantity, freshness and rank bands. rank is nil when the
// marketplace provides no sales-rank signal.
func Score(priceCount int, freshnessHours float64, rank *int) float64 {
	total := QuantityBand(priceCount) + FreshnessBand(freshnessHours) + RankBand(rank)
	return min(total, 100)
}

// QuantityBand rewards the number of comparable prices, up to 40.
func QuantityBand(n int) float64 {
	switch {
	case n >= 10:
		return 40
	case n >= 5:
		return 30
	case n >= 3:
		return 20
	case n >= 1:
		return 10
	default:
		return 0
	}
}

// FreshnessBand rewards recent data, up to 30.
func FreshnessBand(hours float64) float64 {
	switch {
	case hours <= 2:
		return 30
	case hours <= 6:
		return 25
	case hours <= 12:
		return 20
	case hours <= 24:
		return 10
	default:
		return 5
	}
}

// RankBand rewards a low (fast-selling) sales rank, up to 30.
func RankBand(rank *int) float64 {
	if rank == nil {
		return NeutralRank
	}
	switch r := *rank; {
	case r <= 5_000:
		return 30
	case r <= 20_000:
		return 25
	case r <= 50_000:
		return 20
	case r <= 100_000:
		return 15
	case r <= 500_000:
		return 10
	default:
		return 5
	}
}
