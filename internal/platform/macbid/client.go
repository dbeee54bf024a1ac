// Package macbid fetches raw auction payloads from the MacBid site and its
// paginated auction API. Normalization happens elsewhere.
package macbid

import (
	"bytes"
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
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/auctionarb/internal/normalize"
	"github.com/alanyoungcy/auctionarb/internal/retry"
)

const (
	service        = "macbid"
	defaultTimeout = 30 * time.Second
)

// ErrNoRenderState is returned when the auctions page carries no
// __NEXT_DATA__ script.
var ErrNoRenderState = errors.New("macbid: no __NEXT_DATA__ script on page")

// Config configures the scrape client.
type Config struct {
	BaseURL   string
	APIURL    string
	UserAgent string
	// MaxPages caps API pagination. Zero skips the API.
	MaxPages          int
	RequestsPerSecond float64
	Retry             retry.Policy
}

// Payload is one fetched document: the decoded JSON for the normalizer and
// the exact bytes for archiving.
type Payload struct {
	Source string
	Data   any
	Raw    json.RawMessage
}

// Client is the HTTP client for the auction source.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a MacBid client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	if cfg.Retry.Timeout <= 0 {
		cfg.Retry.Timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.With(slog.String("component", "macbid")),
	}
}

// Scrape fetches the rendered auctions page and then API pages until an
// empty page or MaxPages. A failing source is logged and skipped; an error
// is returned only when nothing at all could be fetched.
func (c *Client) Scrape(ctx context.Context) ([]Payload, error) {
	var (
		out  []Payload
		errs []error
	)

	page, err := c.FetchRenderState(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "render state fetch failed", slog.String("error", err.Error()))
		errs = append(errs, err)
	} else {
		out = append(out, page)
	}

	for n := 1; n <= c.cfg.MaxPages; n++ {
		p, err := c.FetchAPIPage(ctx, n)
		if err != nil {
			c.logger.WarnContext(ctx, "api page fetch failed",
				slog.Int("page", n),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			break
		}
		if pageLen(p.Data) == 0 {
			break
		}
		out = append(out, p)
	}

	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// FetchRenderState downloads the auctions page and returns the JSON embedded
// in its __NEXT_DATA__ script.
func (c *Client) FetchRenderState(ctx context.Context) (Payload, error) {
	body, err := c.get(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/auctions", "text/html")
	if err != nil {
		return Payload{}, fmt.Errorf("macbid: fetch auctions page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Payload{}, fmt.Errorf("macbid: parse auctions page: %w", err)
	}
	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return Payload{}, ErrNoRenderState
	}
	raw := []byte(strings.TrimSpace(script.Text()))

	data, err := decode(raw)
	if err != nil {
		return Payload{}, fmt.Errorf("macbid: decode __NEXT_DATA__: %w", err)
	}
	return Payload{Source: "page", Data: data, Raw: raw}, nil
}

// FetchAPIPage fetches one page of the auction API.
func (c *Client) FetchAPIPage(ctx context.Context, page int) (Payload, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.APIURL, "/") + "/auctions")
	if err != nil {
		return Payload{}, fmt.Errorf("macbid: api url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String(), "application/json")
	if err != nil {
		return Payload{}, fmt.Errorf("macbid: fetch api page %d: %w", page, err)
	}
	data, err := decode(body)
	if err != nil {
		return Payload{}, fmt.Errorf("macbid: decode api page %d: %w", page, err)
	}
	return Payload{Source: "api:" + strconv.Itoa(page), Data: data, Raw: body}, nil
}

func (c *Client) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, c.cfg.Retry, c.logger, "macbid get", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", accept)
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := retry.CheckResponse(service, resp); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}

// decode keeps numbers as json.Number so large lot ids survive intact.
func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// pageLen counts the records of an API page the same way the normalizer
// extracts them.
func pageLen(v any) int {
	return len(normalize.APIPage(v))
}
