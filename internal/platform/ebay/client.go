// Package ebay is a client for the eBay Browse API item search, authenticated
// with the OAuth client credentials grant.
package ebay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/retry"
)

const (
	service        = "ebay"
	oauthScope     = "https://api.ebay.com/oauth/api_scope"
	marketplaceID  = "EBAY_US"
	defaultTimeout = 15 * time.Second
	defaultTTL     = 2 * time.Hour
	// tokenSlack renews the token this long before eBay says it expires.
	tokenSlack = time.Minute
)

// Config configures the Browse API client.
type Config struct {
	ClientID          string
	ClientSecret      string
	APIBase           string
	ResultLimit       int
	RequestsPerSecond float64
	CacheTTL          time.Duration
	Retry             retry.Policy
}

// Item is one item summary from a search.
type Item struct {
	ItemID       string         `json:"item_id"`
	Title        string         `json:"title"`
	Price        float64        `json:"price"`
	Currency     string         `json:"currency"`
	ShippingCost *float64       `json:"shipping_cost,omitempty"`
	Condition    string         `json:"condition"`
	URL          string         `json:"url"`
	ImageURL     string         `json:"image_url,omitempty"`
	Seller       string         `json:"seller,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Client searches eBay listings. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      domain.LookupCache
	logger     *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

// NewClient creates an eBay client. cache may be nil.
func NewClient(cfg Config, cache domain.LookupCache, logger *slog.Logger) *Client {
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultTTL
	}
	if cfg.Retry.Timeout <= 0 {
		cfg.Retry.Timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		cache:      cache,
		logger:     logger.With(slog.String("component", "ebay")),
		now:        time.Now,
	}
}

// SearchByUPC searches by GTIN.
func (c *Client) SearchByUPC(ctx context.Context, upc string) ([]Item, error) {
	return c.search(ctx, "upc:"+upc, url.Values{"gtin": {upc}})
}

// SearchByKeyword runs a free-text search, optionally within one category.
func (c *Client) SearchByKeyword(ctx context.Context, query, categoryID string) ([]Item, error) {
	params := url.Values{"q": {query}}
	if categoryID != "" {
		params.Set("category_ids", categoryID)
	}
	return c.search(ctx, "kw:"+query+":"+categoryID, params)
}

func (c *Client) search(ctx context.Context, cacheKey string, params url.Values) ([]Item, error) {
	var items []Item
	if c.cache != nil {
		err := c.cache.Get(ctx, service, cacheKey, &items)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.DebugContext(ctx, "cache read failed", slog.String("error", err.Error()))
		}
	}

	params.Set("limit", strconv.Itoa(c.cfg.ResultLimit))
	endpoint := strings.TrimRight(c.cfg.APIBase, "/") + "/buy/browse/v1/item_summary/search?" + params.Encode()

	err := retry.Do(ctx, c.cfg.Retry, c.logger, "ebay search", func(ctx context.Context) error {
		var err error
		items, err = c.browse(ctx, endpoint)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ebay: search: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, service, cacheKey, items, c.cfg.CacheTTL); err != nil {
			c.logger.DebugContext(ctx, "cache write failed", slog.String("error", err.Error()))
		}
	}
	return items, nil
}

func (c *Client) browse(ctx context.Context, endpoint string) ([]Item, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", marketplaceID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return []Item{}, nil
	case http.StatusUnauthorized:
		c.invalidateToken()
	}
	if err := retry.CheckResponse(service, resp); err != nil {
		return nil, err
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parseItems(body), nil
}

// accessToken returns a cached application token, fetching a new one when
// it is missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-tokenSlack)) {
		return c.token, nil
	}

	c.logger.InfoContext(ctx, "refreshing oauth token")
	form := url.Values{"grant_type": {"client_credentials"}, "scope": {oauthScope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.APIBase, "/")+"/identity/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse(service, resp); err != nil {
		return "", err
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("ebay: empty access token")
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 7200
	}
	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
