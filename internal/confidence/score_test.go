package confidence

import "testing"

func intp(v int) *int { return &v }

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		count int
		hours float64
		rank  *int
		want  float64
	}{
		{"best case", 12, 0.5, intp(1200), 100},
		{"no data", 0, 100, nil, 20},
		{"mid", 5, 8, intp(60_000), 65},
		{"no rank is neutral", 3, 3, nil, 60},
		{"worst rank", 1, 30, intp(2_000_000), 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.count, tt.hours, tt.rank); got != tt.want {
				t.Errorf("Score(%d, %v, %v) = %v, want %v", tt.count, tt.hours, tt.rank, got, tt.want)
			}
		})
	}
}

func TestQuantityBandNonDecreasing(t *testing.T) {
	edges := []int{0, 1, 2, 3, 4, 5, 9, 10, 50}
	prev := -1.0
	for _, n := range edges {
		got := QuantityBand(n)
		if got < prev {
			t.Errorf("QuantityBand(%d) = %v decreased from %v", n, got, prev)
		}
		prev = got
	}
	want := map[int]float64{0: 0, 1: 10, 3: 20, 5: 30, 10: 40}
	for n, w := range want {
		if got := QuantityBand(n); got != w {
			t.Errorf("QuantityBand(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestFreshnessBandNonIncreasing(t *testing.T) {
	edges := []float64{0, 2, 2.01, 6, 6.5, 12, 12.1, 24, 24.1, 1000}
	prev := 31.0
	for _, h := range edges {
		got := FreshnessBand(h)
		if got > prev {
			t.Errorf("FreshnessBand(%v) = %v increased from %v", h, got, prev)
		}
		prev = got
	}
	want := map[float64]float64{2: 30, 6: 25, 12: 20, 24: 10, 25: 5}
	for h, w := range want {
		if got := FreshnessBand(h); got != w {
			t.Errorf("FreshnessBand(%v) = %v, want %v", h, got, w)
		}
	}
}

func TestRankBand(t *testing.T) {
	if got := RankBand(nil); got != 15 {
		t.Fatalf("RankBand(nil) = %v, want 15", got)
	}
	want := map[int]float64{
		5_000: 30, 5_001: 25, 20_000: 25, 50_000: 20,
		100_000: 15, 500_000: 10, 500_001: 5,
	}
	for r, w := range want {
		if got := RankBand(intp(r)); got != w {
			t.Errorf("RankBand(%d) = %v, want %v", r, got, w)
		}
	}
}
