// Package exchange fetches BRL exchange rates with a one-hour cache and a
// static offline fallback. Results always carry data; the source field
// tells callers whether it is fresh, cached or canned.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/devfinance/internal/storage"
)

const (
	defaultBaseURL = "https://api.exchangerate-api.com"
	requestTimeout = 10 * time.Second
	cacheTTL       = time.Hour

	// btcPriceUSD pins the Bitcoin quote; the rates API has no crypto.
	btcPriceUSD = 65000.0
)

// Result sources.
const (
	SourceAPI      = "api"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// Rate is one currency quoted in BRL per unit.
type Rate struct {
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Symbol string  `json:"symbol"`
	Rate   float64 `json:"rate"`
}

// Result is a full quote set with its provenance.
type Result struct {
	Rates     []Rate    `json:"rates"`
	UpdatedAt time.Time `json:"updatedAt"`
	Source    string    `json:"source"`
}

// currencyInfo is the display metadata for the supported set, in render
// order.
var currencyInfo = []struct {
	code, name, symbol string
}{
	{"USD", "US Dollar", "$"},
	{"EUR", "Euro", "€"},
	{"GBP", "British Pound", "£"},
	{"JPY", "Japanese Yen", "¥"},
	{"CNY", "Chinese Yuan", "¥"},
	{"CAD", "Canadian Dollar", "C$"},
	{"AUD", "Australian Dollar", "A$"},
	{"CHF", "Swiss Franc", "Fr"},
	{"ARS", "Argentine Peso", "$"},
}

// fallbackRates are units of foreign currency per 1 BRL, same shape as the
// API response, frozen from a known-good quote.
var fallbackRates = map[string]float64{
	"USD": 0.179,
	"EUR": 0.152,
	"GBP": 0.133,
	"JPY": 27.92,
	"CNY": 1.26,
	"CAD": 0.245,
	"AUD": 0.267,
	"CHF": 0.141,
	"ARS": 259.89,
}

// cachedRates is the persisted cache shape.
type cachedRates struct {
	Rates     []Rate    `json:"rates"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Client fetches and caches exchange rates.
type Client struct {
	http    *http.Client
	baseURL string
	storage *storage.Store
	log     zerolog.Logger
	now     func() time.Time
}

// NewClient builds a client against the public rates API.
func NewClient(st *storage.Store, log zerolog.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: defaultBaseURL,
		storage: st,
		log:     log,
		now:     time.Now,
	}
}

// WithBaseURL points the client at a different API host.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// Rates returns the quote set. Cached data younger than an hour is served
// as-is; otherwise the API is queried and, when that fails, the static
// fallback table is used. The error is always nil by contract; failures
// degrade the source instead.
func (c *Client) Rates(ctx context.Context) (Result, error) {
	var cached cachedRates
	found, err := c.storage.Get(storage.KeyExchangeRates, &cached)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to read rate cache")
	}
	if found && c.now().Sub(cached.UpdatedAt) < cacheTTL {
		return Result{Rates: cached.Rates, UpdatedAt: cached.UpdatedAt, Source: SourceCache}, nil
	}

	raw, err := c.fetch(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Rate fetch failed, using fallback table")
		return Result{
			Rates:     convert(fallbackRates),
			UpdatedAt: c.now(),
			Source:    SourceFallback,
		}, nil
	}

	rates := convert(raw)
	updated := c.now()
	if err := c.storage.Put(storage.KeyExchangeRates, cachedRates{Rates: rates, UpdatedAt: updated}); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist rate cache")
	}
	return Result{Rates: rates, UpdatedAt: updated, Source: SourceAPI}, nil
}

// apiResponse is the shape of /v4/latest/BRL.
type apiResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func (c *Client) fetch(ctx context.Context) (map[string]float64, error) {
	url := c.baseURL + "/v4/latest/BRL"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates API returned %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("rates API returned empty set")
	}
	return body.Rates, nil
}

// convert turns foreign-per-BRL quotes into BRL-per-unit, inverted in
// decimal space and rounded to 4 places so display values are stable.
// Bitcoin is derived from the USD quote at the pinned price.
func convert(perBRL map[string]float64) []Rate {
	out := make([]Rate, 0, len(currencyInfo)+1)
	for _, info := range currencyInfo {
		quote, ok := perBRL[info.code]
		if !ok || quote <= 0 {
			continue
		}
		out = append(out, Rate{
			Code:   info.code,
			Name:   info.name,
			Symbol: info.symbol,
			Rate:   invert(quote),
		})
	}

	if usd, ok := perBRL["USD"]; ok && usd > 0 {
		brlPerUSD := decimal.NewFromFloat(1).Div(decimal.NewFromFloat(usd))
		btc := brlPerUSD.Mul(decimal.NewFromFloat(btcPriceUSD)).Round(4)
		out = append(out, Rate{
			Code:   "BTC",
			Name:   "Bitcoin",
			Symbol: "₿",
			Rate:   btc.InexactFloat64(),
		})
	}
	return out
}

func invert(quote float64) float64 {
	return decimal.NewFromFloat(1).
		Div(decimal.NewFromFloat(quote)).
		Round(4).
		InexactFloat64()
}
