package ebay

import (
	"math"
	"strconv"
)

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type searchResponse struct {
	Total         int           `json:"total"`
	ItemSummaries []itemSummary `json:"itemSummaries"`
}

type itemSummary struct {
	ItemID          string `json:"itemId"`
	Title           string `json:"title"`
	Price           amount `json:"price"`
	Condition       string `json:"condition"`
	ItemWebURL      string `json:"itemWebUrl"`
	ShippingOptions []struct {
		ShippingCost *amount `json:"shippingCost"`
	} `json:"shippingOptions"`
	Image struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	Seller struct {
		Username string `json:"username"`
	} `json:"seller"`
	BuyingOptions []string `json:"buyingOptions"`
	ItemGroupType string   `json:"itemGroupType"`
	Categories    []struct {
		CategoryName string `json:"categoryName"`
	} `json:"categories"`
}

// parseAmount parses a money value, rejecting NaN and infinities.
func parseAmount(v string) (float64, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseItems converts summaries, dropping any without a usable price.
func parseItems(r searchResponse) []Item {
	items := make([]Item, 0, len(r.ItemSummaries))
	for _, s := range r.ItemSummaries {
		price, ok := parseAmount(s.Price.Value)
		if !ok || price <= 0 {
			continue
		}

		it := Item{
			ItemID:    s.ItemID,
			Title:     s.Title,
			Price:     price,
			Currency:  s.Price.Currency,
			Condition: s.Condition,
			URL:       s.ItemWebURL,
			ImageURL:  s.Image.ImageURL,
			Seller:    s.Seller.Username,
		}
		if it.Currency == "" {
			it.Currency = "USD"
		}
		if len(s.ShippingOptions) > 0 && s.ShippingOptions[0].ShippingCost != nil {
			if v, ok := parseAmount(s.ShippingOptions[0].ShippingCost.Value); ok {
				it.ShippingCost = &v
			}
		}

		extra := map[string]any{}
		if len(s.BuyingOptions) > 0 {
			extra["buying_options"] = s.BuyingOptions
		}
		if s.ItemGroupType != "" {
			extra["item_group_type"] = s.ItemGroupType
		}
		if len(s.Categories) > 0 {
			names := make([]string, 0, len(s.Categories))
			for _, c := range s.Categories {
				names = append(names, c.CategoryName)
			}
			extra["categories"] = names
		}
		if len(extra) > 0 {
			it.Extra = extra
		}
		items = append(items, it)
	}
	return items
}
