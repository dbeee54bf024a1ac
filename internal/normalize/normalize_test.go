package normalize

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

const base = "https://www.mac.bid"

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestNormalizeAliasedRecord(t *testing.T) {
	raw := decode(t, `{"lotId":"5","currentBid":"$1,200.00","condition":"Like New"}`).(map[string]any)

	got, ok := New(base).Normalize(raw)
	if !ok {
		t.Fatal("record rejected")
	}
	if got.ExternalID != "5" {
		t.Errorf("id = %q, want 5", got.ExternalID)
	}
	if got.CurrentBid != 1200.00 {
		t.Errorf("bid = %v, want 1200", got.CurrentBid)
	}
	if got.Condition != domain.ConditionLikeNew {
		t.Errorf("condition = %q, want like_new", got.Condition)
	}
	if got.URL != base+"/auction/5" {
		t.Errorf("url = %q", got.URL)
	}
}

func TestNormalizeRejectsRecordWithoutID(t *testing.T) {
	raw := map[string]any{"title": "Blender", "currentBid": 12.5, "id": ""}
	if _, ok := New(base).Normalize(raw); ok {
		t.Fatal("record without id accepted")
	}
}

func TestNormalizeFullRecord(t *testing.T) {
	raw := decode(t, `{
		"id": 98123,
		"name": "Sony WH-1000XM5",
		"highBid": {"amount": 41.5},
		"msrp": 399.99,
		"itemCondition": "open box",
		"barcode": 27242923782,
		"image": ["https://img/1.jpg", "https://img/2.jpg"],
		"endTime": "2026-03-01T18:30:00Z",
		"warehouseLocation": "Lancaster, PA"
	}`).(map[string]any)

	got, ok := New(base + "/").Normalize(raw)
	if !ok {
		t.Fatal("record rejected")
	}
	if got.ExternalID != "98123" || got.Title != "Sony WH-1000XM5" {
		t.Errorf("id/title = %q/%q", got.ExternalID, got.Title)
	}
	if got.CurrentBid != 41.5 {
		t.Errorf("bid = %v", got.CurrentBid)
	}
	if got.RetailPrice == nil || *got.RetailPrice != 399.99 {
		t.Errorf("retail = %v", got.RetailPrice)
	}
	if got.Condition != domain.ConditionOpenBox {
		t.Errorf("condition = %q", got.Condition)
	}
	if got.UPC == nil || *got.UPC != "27242923782" {
		t.Errorf("upc = %v", got.UPC)
	}
	if got.ImageURL == nil || *got.ImageURL != "https://img/1.jpg" {
		t.Errorf("image = %v", got.ImageURL)
	}
	want := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	if got.ClosesAt == nil || !got.ClosesAt.Equal(want) {
		t.Errorf("closes at = %v", got.ClosesAt)
	}
	if got.WarehouseLocation == nil || *got.WarehouseLocation != "Lancaster, PA" {
		t.Errorf("location = %v", got.WarehouseLocation)
	}
	if got.URL != base+"/auction/98123" {
		t.Errorf("url = %q", got.URL)
	}

	var back map[string]any
	if err := json.Unmarshal(got.RawPayload, &back); err != nil {
		t.Fatalf("raw payload: %v", err)
	}
	if back["warehouseLocation"] != "Lancaster, PA" {
		t.Errorf("raw payload lost fields: %v", back)
	}
}

func TestNormalizeUnparseableValuesBecomeNil(t *testing.T) {
	raw := map[string]any{
		"id":          "7",
		"retailPrice": "call for price",
		"currentBid":  []any{"x"},
		"closesAt":    "next tuesday",
		"condition":   "refurbished",
	}
	got, ok := New(base).Normalize(raw)
	if !ok {
		t.Fatal("record rejected")
	}
	if got.RetailPrice != nil {
		t.Errorf("retail = %v, want nil", *got.RetailPrice)
	}
	if got.CurrentBid != 0 {
		t.Errorf("bid = %v, want 0", got.CurrentBid)
	}
	if got.ClosesAt != nil {
		t.Errorf("closes at = %v, want nil", got.ClosesAt)
	}
	if got.Condition != domain.ConditionUnknown {
		t.Errorf("condition = %q, want unknown", got.Condition)
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   any
		want *float64
	}{
		{12.5, ptr(12.5)},
		{json.Number("7"), ptr(7)},
		{"$1,200.00", ptr(1200)},
		{" 45 ", ptr(45)},
		{map[string]any{"amount": "19.99"}, ptr(19.99)},
		{map[string]any{"currency": "USD"}, nil},
		{"n/a", nil},
		{"NaN", nil},
		{"Inf", nil},
		{"-Infinity", nil},
		{json.Number("NaN"), nil},
		{true, nil},
		{nil, nil},
	}
	for _, tt := range tests {
		got := ParseMoney(tt.in)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("ParseMoney(%v) = %v, want nil", tt.in, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("ParseMoney(%v) = %v, want %v", tt.in, got, *tt.want)
		}
	}
}

func TestNormalizeRejectsNonFiniteBid(t *testing.T) {
	l, ok := New(base).Normalize(map[string]any{"id": "9", "title": "Drill", "currentBid": "NaN", "retailPrice": "Infinity"})
	if !ok {
		t.Fatal("record rejected")
	}
	if l.CurrentBid != 0 {
		t.Errorf("bid = %v, want 0", l.CurrentBid)
	}
	if l.RetailPrice != nil {
		t.Errorf("retail = %v, want nil", *l.RetailPrice)
	}
}

func TestNormalizeIntegralIDIsTheSameForEveryDecoding(t *testing.T) {
	n := New(base)
	for _, id := range []any{5.0, json.Number("5"), json.Number("5.0"), "5"} {
		l, ok := n.Normalize(map[string]any{"id": id, "title": "Lamp"})
		if !ok {
			t.Fatalf("id %#v: not normalized", id)
		}
		if l.ExternalID != "5" {
			t.Errorf("id %#v: external id = %q, want \"5\"", id, l.ExternalID)
		}
	}
	l, _ := n.Normalize(map[string]any{"id": json.Number("5.25"), "title": "Lamp"})
	if l.ExternalID != "5.25" {
		t.Errorf("fractional id = %q, want 5.25", l.ExternalID)
	}
}

func TestParseCondition(t *testing.T) {
	tests := map[any]domain.Condition{
		"NEW":       domain.ConditionNew,
		"like_new":  domain.ConditionLikeNew,
		"Open Box":  domain.ConditionOpenBox,
		"Salvage":   domain.ConditionDamaged,
		"damaged":   domain.ConditionDamaged,
		"used-good": domain.ConditionUnknown,
		nil:         domain.ConditionUnknown,
		3.0:         domain.ConditionUnknown,
	}
	for in, want := range tests {
		if got := ParseCondition(in); got != want {
			t.Errorf("ParseCondition(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	for _, s := range []string{
		"2026-01-02T15:04:05Z",
		"2026-01-02T10:04:05-05:00",
		"2026-01-02T15:04:05",
		"2026-01-02T15:04:05.000",
		"2026-01-02 15:04:05+00:00",
	} {
		got := ParseTime(s)
		if got == nil || !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v, want %v", s, got, want)
		}
	}
	if got := ParseTime("soon"); got != nil {
		t.Errorf("ParseTime(soon) = %v, want nil", got)
	}
	if got := ParseTime(1767366245); got != nil {
		t.Errorf("ParseTime(number) = %v, want nil", got)
	}
}

func TestExtractUnionsStrategiesFirstOccurrenceWins(t *testing.T) {
	nextData := decode(t, `{
		"props": {"pageProps": {
			"auctions": [{"id": "1", "title": "from auctions"}, {"title": "no id"}],
			"lots": [{"lotId": "2", "title": "from lots"}],
			"dehydratedState": {"queries": [
				{"state": {"data": [{"id": "1", "title": "duplicate from query"}, {"id": "3", "title": "from query list"}]}},
				{"state": {"data": {"results": [{"auctionId": "4", "title": "from query results"}]}}},
				{"state": {"data": "not records"}}
			]}
		}}
	}`)
	apiPage := decode(t, `{"items": [{"id": "4", "title": "duplicate from api"}, {"id": "5", "title": "from api"}], "lots": [{"id": "6"}]}`)
	bareList := decode(t, `[{"lot_id": 7, "title": "from list"}, "junk"]`)

	got := New(base).Extract(nextData, apiPage, bareList)

	want := []struct{ id, title string }{
		{"1", "from auctions"},
		{"2", "from lots"},
		{"3", "from query list"},
		{"4", "from query results"},
		{"5", "from api"},
		{"7", "from list"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d listings, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].ExternalID != w.id || got[i].Title != w.title {
			t.Errorf("listing %d = %s/%q, want %s/%q", i, got[i].ExternalID, got[i].Title, w.id, w.title)
		}
	}
}

func TestExtractAPIPayloadFallsBackToLots(t *testing.T) {
	payload := decode(t, `{"lots": [{"id": "9"}], "total": 1}`)
	got := New(base).Extract(payload)
	if len(got) != 1 || got[0].ExternalID != "9" {
		t.Fatalf("got %+v", got)
	}
}

func TestExtractUnknownShape(t *testing.T) {
	if got := New(base).Extract("html", 42, nil, map[string]any{"data": []any{}}); len(got) != 0 {
		t.Fatalf("got %+v, want nothing", got)
	}
}

func ptr(f float64) *float64 { return &f }

func TestAPIPageEmptyItemsFallsBackToLots(t *testing.T) {
	got := APIPage(decode(t, `{"items": [], "lots": [{"id": "3"}]}`))
	if len(got) != 1 || got[0]["id"] != "3" {
		t.Fatalf("got %+v", got)
	}
	if got := APIPage(decode(t, `{"auctions": [{"id": "1"}]}`)); len(got) != 0 {
		t.Errorf("auctions key read off an api page: %+v", got)
	}
}
