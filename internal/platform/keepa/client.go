// Package keepa looks up Amazon product data through the Keepa API.
package keepa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/auctionarb/internal/domain"
	"github.com/alanyoungcy/auctionarb/internal/retry"
)

const (
	service        = "keepa"
	defaultTimeout = 20 * time.Second
	defaultTTL     = 4 * time.Hour
	statsDays      = "180"
	offerCount     = "20"
)

// Config configures the Keepa client.
type Config struct {
	APIKey  string
	BaseURL string

	// Domain is the Amazon locale; 1 is amazon.com.
	Domain            int
	RequestsPerSecond float64
	CacheTTL          time.Duration
	Retry             retry.Policy
}

// Product is the parsed subset of a Keepa product. Prices are dollars.
type Product struct {
	ASIN           string   `json:"asin"`
	Title          string   `json:"title"`
	Category       string   `json:"category,omitempty"`
	Price          *float64 `json:"price,omitempty"`
	AmazonPrice    *float64 `json:"amazon_price,omitempty"`
	NewThirdParty  *float64 `json:"new_3p_price,omitempty"`
	UsedPrice      *float64 `json:"used_price,omitempty"`
	AvgPrice30d    *float64 `json:"avg_price_30d,omitempty"`
	AvgPrice90d    *float64 `json:"avg_price_90d,omitempty"`
	SalesRank      *int     `json:"bsr,omitempty"`
	NewOfferCount  int      `json:"new_offer_count"`
	UsedOfferCount int      `json:"used_offer_count"`
	RankDrops30    int      `json:"sales_rank_drops_30"`
	RankDrops90    int      `json:"sales_rank_drops_90"`
	ImageURL       string   `json:"image_url,omitempty"`
	URL            string   `json:"url"`
}

// Client queries Keepa. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      domain.LookupCache
	logger     *slog.Logger
}

// NewClient creates a Keepa client. cache may be nil.
func NewClient(cfg Config, cache domain.LookupCache, logger *slog.Logger) *Client {
	if cfg.Domain <= 0 {
		cfg.Domain = 1
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultTTL
	}
	if cfg.Retry.Timeout <= 0 {
		cfg.Retry.Timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		cache:      cache,
		logger:     logger.With(slog.String("component", "keepa")),
	}
}

// LookupByUPC returns the first product matching upc. found is false when
// Keepa knows no product for the code.
func (c *Client) LookupByUPC(ctx context.Context, upc string) (p Product, found bool, err error) {
	return c.lookup(ctx, "upc:"+upc, "code", upc)
}

// LookupByASIN returns the product with the given ASIN.
func (c *Client) LookupByASIN(ctx context.Context, asin string) (p Product, found bool, err error) {
	return c.lookup(ctx, "asin:"+asin, "asin", asin)
}

func (c *Client) lookup(ctx context.Context, cacheKey, param, value string) (Product, bool, error) {
	// A cached empty ASIN records a confirmed miss.
	var cached Product
	if c.cache != nil {
		err := c.cache.Get(ctx, service, cacheKey, &cached)
		if err == nil {
			return cached, cached.ASIN != "", nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.DebugContext(ctx, "cache read failed", slog.String("error", err.Error()))
		}
	}

	params := url.Values{
		"key":    {c.cfg.APIKey},
		"domain": {strconv.Itoa(c.cfg.Domain)},
		param:    {value},
		"stats":  {statsDays},
		"offers": {offerCount},
	}
	// The key rides in the query string; errors only ever show path.
	path := strings.TrimRight(c.cfg.BaseURL, "/") + "/product"
	endpoint := path + "?" + params.Encode()

	var resp productResponse
	err := retry.Do(ctx, c.cfg.Retry, c.logger, "keepa product", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		r, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RedactURL(err, path)
		}
		defer r.Body.Close()
		if err := retry.CheckResponse(service, r); err != nil {
			return err
		}
		resp = productResponse{}
		return json.NewDecoder(r.Body).Decode(&resp)
	})
	if err != nil {
		return Product{}, false, fmt.Errorf("keepa: lookup %s: %w", param, err)
	}

	var p Product
	if len(resp.Products) > 0 {
		p = parseProduct(resp.Products[0])
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, service, cacheKey, p, c.cfg.CacheTTL); err != nil {
			c.logger.DebugContext(ctx, "cache write failed", slog.String("error", err.Error()))
		}
	}
	return p, p.ASIN != "", nil
}
