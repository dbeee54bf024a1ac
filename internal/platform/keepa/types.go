package keepa

import (
	"bytes"
	"encoding/json"
	"strings"
)

type productResponse struct {
	Products []rawProduct `json:"products"`
}

type rawProduct struct {
	ASIN         string `json:"asin"`
	Title        string `json:"title"`
	ImagesCSV    string `json:"imagesCSV"`
	CategoryTree []struct {
		Name string `json:"name"`
	} `json:"categoryTree"`
	// SalesRanks maps category id to [time, rank, time, rank, ...]. Kept
	// raw so the first category can be read in document order.
	SalesRanks json.RawMessage `json:"salesRanks"`
	Stats      struct {
		Current          []int `json:"current"`
		Avg              []int `json:"avg"`
		OfferCounts      []int `json:"offerCounts"`
		SalesRankDrops30 int   `json:"salesRankDrops30"`
		SalesRankDrops90 int   `json:"salesRankDrops90"`
	} `json:"stats"`
}

// Indexes into Keepa's price arrays.
const (
	idxAmazon = 0
	idxNew    = 1
	idxUsed   = 2
)

const imageBase = "https://images-na.ssl-images-amazon.com/images/I/"

func parseProduct(r rawProduct) Product {
	p := Product{
		ASIN:           r.ASIN,
		Title:          r.Title,
		AmazonPrice:    cents(r.Stats.Current, idxAmazon),
		NewThirdParty:  cents(r.Stats.Current, idxNew),
		UsedPrice:      cents(r.Stats.Current, idxUsed),
		AvgPrice30d:    cents(r.Stats.Avg, 0),
		AvgPrice90d:    cents(r.Stats.Avg, 1),
		SalesRank:      firstSalesRank(r.SalesRanks),
		NewOfferCount:  at(r.Stats.OfferCounts, 0),
		UsedOfferCount: at(r.Stats.OfferCounts, 1),
		RankDrops30:    r.Stats.SalesRankDrops30,
		RankDrops90:    r.Stats.SalesRankDrops90,
	}
	p.Price = p.AmazonPrice
	if p.Price == nil {
		p.Price = p.NewThirdParty
	}
	if len(r.CategoryTree) > 0 {
		p.Category = r.CategoryTree[0].Name
	}
	if r.ImagesCSV != "" {
		p.ImageURL = imageBase + strings.Split(r.ImagesCSV, ",")[0]
	}
	if r.ASIN != "" {
		p.URL = "https://www.amazon.com/dp/" + r.ASIN
	}
	return p
}

// cents converts the i-th Keepa price to dollars. Keepa uses -1 for "no
// offer"; zero is treated the same.
func cents(vals []int, i int) *float64 {
	if i >= len(vals) || vals[i] <= 0 {
		return nil
	}
	v := float64(vals[i]) / 100
	return &v
}

func at(vals []int, i int) int {
	if i >= len(vals) {
		return 0
	}
	return vals[i]
}

// firstSalesRank returns the current rank of the first category listed in
// salesRanks, or nil.
func firstSalesRank(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	if !dec.More() {
		return nil
	}
	if _, err := dec.Token(); err != nil { // category id
		return nil
	}
	var history []int
	if err := dec.Decode(&history); err != nil || len(history) == 0 {
		return nil
	}
	rank := history[len(history)-1]
	if rank <= 0 {
		return nil
	}
	return &rank
}
