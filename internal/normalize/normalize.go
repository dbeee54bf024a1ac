// Package normalize turns schema-free auction records into canonical
// listings. Field names vary between the source's page render state and its
// API, so every logical field is resolved through an ordered alias list.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// Normalizer converts raw records and whole payloads into listings.
type Normalizer struct {
	baseURL    string
	strategies []Strategy
}

// New returns a Normalizer that builds listing URLs under baseURL. With no
// strategies given it uses DefaultStrategies.
func New(baseURL string, strategies ...Strategy) *Normalizer {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	return &Normalizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		strategies: strategies,
	}
}

// Normalize converts one record. It reports false when no id alias resolves.
func (n *Normalizer) Normalize(raw map[string]any) (domain.NormalizedListing, bool) {
	id := text(first(raw, idKeys))
	if id == "" {
		return domain.NormalizedListing{}, false
	}

	var bid float64
	if p := ParseMoney(first(raw, bidKeys)); p != nil {
		bid = *p
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return domain.NormalizedListing{}, false
	}

	return domain.NormalizedListing{
		ExternalID:        id,
		Title:             text(first(raw, titleKeys)),
		CurrentBid:        bid,
		RetailPrice:       ParseMoney(first(raw, retailKeys)),
		Condition:         ParseCondition(first(raw, conditionKeys)),
		UPC:               optText(first(raw, codeKeys)),
		ImageURL:          image(first(raw, imageKeys)),
		ClosesAt:          ParseTime(first(raw, closeKeys)),
		WarehouseLocation: optText(first(raw, locationKeys)),
		URL:               n.baseURL + "/auction/" + id,
		RawPayload:        payload,
	}, true
}

// Extract runs every strategy over every payload and returns the union of
// the normalized records, deduplicated by id. The first occurrence wins.
// Records that cannot be normalized are skipped.
func (n *Normalizer) Extract(payloads ...any) []domain.NormalizedListing {
	seen := make(map[string]bool)
	var out []domain.NormalizedListing
	for _, payload := range payloads {
		for _, s := range n.strategies {
			for _, raw := range s.Extract(payload) {
				l, ok := n.Normalize(raw)
				if !ok || seen[l.ExternalID] {
					continue
				}
				seen[l.ExternalID] = true
				out = append(out, l)
			}
		}
	}
	return out
}
