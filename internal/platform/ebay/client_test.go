package ebay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/retry"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Get(_ context.Context, source, query string, dst any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[source+"|"+query]
	if !ok {
		return domain.ErrNotFound
	}
	return json.Unmarshal(b, dst)
}

func (m *mapCache) Set(_ context.Context, source, query string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[source+"|"+query] = b
	m.ttls[source+"|"+query] = ttl
	return nil
}

const searchBody = `{
  "total": 3,
  "itemSummaries": [
    {"itemId": "v1|1", "title": "Drill", "price": {"value": "89.99", "currency": "USD"},
     "condition": "New", "itemWebUrl": "https://ebay.com/itm/1",
     "shippingOptions": [{"shippingCost": {"value": "7.50", "currency": "USD"}}],
     "seller": {"username": "tools4u"}, "buyingOptions": ["FIXED_PRICE"],
     "categories": [{"categoryName": "Power Tools"}]},
    {"itemId": "v1|2", "title": "Drill used", "price": {"value": "40.00"}, "condition": "Used"},
    {"itemId": "v1|3", "title": "No price", "price": {"value": ""}}
  ]
}`

type fakeEbay struct {
	tokenCalls  atomic.Int32
	searchCalls atomic.Int32
	lastQuery   atomic.Value
	searchCode  int
}

func (f *fakeEbay) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/identity/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
			return
		}
		if r.PostForm.Get("grant_type") != "client_credentials" || r.PostForm.Get("scope") != oauthScope {
			t.Errorf("token form = %v", r.PostForm)
		}
		fmt.Fprint(w, `{"access_token":"tok","expires_in":7200}`)
	})
	mux.HandleFunc("/buy/browse/v1/item_summary/search", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		f.lastQuery.Store(r.URL.RawQuery)
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-EBAY-C-MARKETPLACE-ID") != marketplaceID {
			t.Errorf("marketplace header missing")
		}
		if f.searchCode != 0 {
			w.WriteHeader(f.searchCode)
			return
		}
		fmt.Fprint(w, searchBody)
	})
	return httptest.NewServer(mux)
}

func newTestClient(base string, cache domain.LookupCache) *Client {
	return NewClient(Config{
		ClientID:          "id",
		ClientSecret:      "secret",
		APIBase:           base,
		RequestsPerSecond: 1000,
		Retry:             retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: time.Second},
	}, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSearchByUPCParsesItems(t *testing.T) {
	f := &fakeEbay{}
	srv := f.server(t)
	defer srv.Close()

	items, err := newTestClient(srv.URL, nil).SearchByUPC(context.Background(), "012345678905")
	if err != nil {
		t.Fatalf("SearchByUPC: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 (unpriced item dropped)", len(items))
	}
	first := items[0]
	if first.Price != 89.99 || first.ShippingCost == nil || *first.ShippingCost != 7.5 {
		t.Errorf("first = %+v", first)
	}
	if first.Seller != "tools4u" || first.URL != "https://ebay.com/itm/1" || first.Condition != "New" {
		t.Errorf("first = %+v", first)
	}
	if items[1].ShippingCost != nil {
		t.Errorf("second item shipping = %v, want nil", *items[1].ShippingCost)
	}
	if items[1].Currency != "USD" {
		t.Errorf("currency default = %q", items[1].Currency)
	}
	if q := f.lastQuery.Load().(string); q != "gtin=012345678905&limit=20" {
		t.Errorf("query = %q", q)
	}
}

func TestTokenIsReused(t *testing.T) {
	f := &fakeEbay{}
	srv := f.server(t)
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	for range 3 {
		if _, err := c.SearchByKeyword(context.Background(), "drill", ""); err != nil {
			t.Fatal(err)
		}
	}
	if f.tokenCalls.Load() != 1 {
		t.Errorf("token calls = %d, want 1", f.tokenCalls.Load())
	}
	if f.searchCalls.Load() != 3 {
		t.Errorf("search calls = %d, want 3", f.searchCalls.Load())
	}
}

func TestTokenRefreshedNearExpiry(t *testing.T) {
	f := &fakeEbay{}
	srv := f.server(t)
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	now := time.Now()
	c.now = func() time.Time { return now }
	if _, err := c.SearchByKeyword(context.Background(), "a", ""); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2*time.Hour - 30*time.Second)
	if _, err := c.SearchByKeyword(context.Background(), "b", ""); err != nil {
		t.Fatal(err)
	}
	if f.tokenCalls.Load() != 2 {
		t.Errorf("token calls = %d, want 2", f.tokenCalls.Load())
	}
}

func TestSearchUsesCache(t *testing.T) {
	f := &fakeEbay{}
	srv := f.server(t)
	defer srv.Close()

	cache := newMapCache()
	c := newTestClient(srv.URL, cache)
	for range 2 {
		items, err := c.SearchByUPC(context.Background(), "111")
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 2 {
			t.Fatalf("items = %d", len(items))
		}
	}
	if f.searchCalls.Load() != 1 {
		t.Errorf("search calls = %d, want 1", f.searchCalls.Load())
	}
	if ttl := cache.ttls["ebay|upc:111"]; ttl != 2*time.Hour {
		t.Errorf("ttl = %s, want 2h", ttl)
	}
}

func TestSearchNotFoundIsEmpty(t *testing.T) {
	f := &fakeEbay{searchCode: http.StatusNotFound}
	srv := f.server(t)
	defer srv.Close()

	items, err := newTestClient(srv.URL, nil).SearchByUPC(context.Background(), "1")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d", len(items))
	}
}

func TestSearchServerErrorExhaustsRetries(t *testing.T) {
	f := &fakeEbay{searchCode: http.StatusServiceUnavailable}
	srv := f.server(t)
	defer srv.Close()

	_, err := newTestClient(srv.URL, nil).SearchByUPC(context.Background(), "1")
	if err == nil {
		t.Fatal("expected error")
	}
	if f.searchCalls.Load() != 2 {
		t.Errorf("search calls = %d, want 2", f.searchCalls.Load())
	}
}

func TestParseItemsDropsNonFinitePrices(t *testing.T) {
	var r searchResponse
	body := `{"itemSummaries": [
		{"itemId": "a", "price": {"value": "NaN"}},
		{"itemId": "b", "price": {"value": "+Inf"}},
		{"itemId": "c", "price": {"value": "12.00"}, "shippingOptions": [{"shippingCost": {"value": "Infinity"}}]}
	]}`
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatal(err)
	}
	items := parseItems(r)
	if len(items) != 1 || items[0].ItemID != "c" {
		t.Fatalf("items = %+v, want only c", items)
	}
	if items[0].ShippingCost != nil {
		t.Errorf("shipping = %v, want nil", *items[0].ShippingCost)
	}
}
