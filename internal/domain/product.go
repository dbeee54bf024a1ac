package domain

import "time"

// Product is a physical item identified across the auction source and the
// resale marketplaces. Products are created on first sighting and never
// deleted; ASIN and Category are back-filled by the price lookup.
type Product struct {
	ID         string
	UPC        *string
	ASIN       *string
	Title      string
	Category   *string
	ImageURL   *string
	LookedUpAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CategoryName returns the category or "" when unknown.
func (p Product) CategoryName() string {
	if p.Category == nil {
		return ""
	}
	return *p.Category
}
