package exchange

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dvloznov/devfinance/internal/logger"
	"github.com/dvloznov/devfinance/internal/storage"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	log := logger.NewWithWriter(os.Stderr)
	st, err := storage.Open(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(st, log).WithBaseURL(srv.URL), srv, &hits
}

func serveRates(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v4/latest/BRL" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"base":"BRL","rates":{"USD":0.2,"EUR":0.16,"GBP":0.125,"JPY":25.0,"CNY":1.25,"CAD":0.25,"AUD":0.25,"CHF":0.16,"ARS":250.0}}`))
}

func rateFor(rates []Rate, code string) (Rate, bool) {
	for _, r := range rates {
		if r.Code == code {
			return r, true
		}
	}
	return Rate{}, false
}

func TestRatesFromAPI(t *testing.T) {
	c, _, _ := newTestClient(t, serveRates)

	res, err := c.Rates(context.Background())
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if res.Source != SourceAPI {
		t.Errorf("source = %q, want api", res.Source)
	}

	// 0.2 USD per BRL inverts to exactly 5 BRL per USD.
	usd, ok := rateFor(res.Rates, "USD")
	if !ok || usd.Rate != 5 {
		t.Errorf("USD = %+v, want rate 5", usd)
	}
	// 25 JPY per BRL inverts to 0.04.
	jpy, ok := rateFor(res.Rates, "JPY")
	if !ok || jpy.Rate != 0.04 {
		t.Errorf("JPY = %+v, want rate 0.04", jpy)
	}
	// BTC derives from USD: 5 BRL/USD * 65000.
	btc, ok := rateFor(res.Rates, "BTC")
	if !ok || btc.Rate != 325000 {
		t.Errorf("BTC = %+v, want rate 325000", btc)
	}
}

func TestInversionRounding(t *testing.T) {
	// 0.179 USD per BRL is 5.58659... BRL per USD, rounded to 4 places.
	if got := invert(0.179); math.Abs(got-5.5866) > 1e-9 {
		t.Errorf("invert(0.179) = %v, want 5.5866", got)
	}
	if got := invert(3.0); math.Abs(got-0.3333) > 1e-9 {
		t.Errorf("invert(3) = %v, want 0.3333", got)
	}
}

func TestCacheSuppressesRefetch(t *testing.T) {
	c, _, hits := newTestClient(t, serveRates)

	if _, err := c.Rates(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := c.Rates(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if *hits != 1 {
		t.Errorf("API hits = %d, want 1", *hits)
	}
	if res.Source != SourceCache {
		t.Errorf("source = %q, want cache", res.Source)
	}
}

func TestCacheExpiresAfterAnHour(t *testing.T) {
	c, _, hits := newTestClient(t, serveRates)

	now := time.Now()
	c.now = func() time.Time { return now }
	if _, err := c.Rates(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.now = func() time.Time { return now.Add(61 * time.Minute) }
	res, err := c.Rates(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if *hits != 2 {
		t.Errorf("API hits = %d, want 2 after cache expiry", *hits)
	}
	if res.Source != SourceAPI {
		t.Errorf("source = %q, want api", res.Source)
	}
}

func TestFallbackOnServerError(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	res, err := c.Rates(context.Background())
	if err != nil {
		t.Fatalf("Rates must degrade, not fail: %v", err)
	}
	if res.Source != SourceFallback {
		t.Errorf("source = %q, want fallback", res.Source)
	}

	usd, ok := rateFor(res.Rates, "USD")
	if !ok || math.Abs(usd.Rate-5.5866) > 1e-9 {
		t.Errorf("fallback USD = %+v, want 5.5866", usd)
	}
	if _, ok := rateFor(res.Rates, "BTC"); !ok {
		t.Error("fallback must still include BTC")
	}
}

func TestFallbackOnUnreachableHost(t *testing.T) {
	log := logger.NewWithWriter(os.Stderr)
	st, err := storage.Open(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(st, log).WithBaseURL("http://127.0.0.1:1")

	res, err := c.Rates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceFallback {
		t.Errorf("source = %q, want fallback", res.Source)
	}
	if len(res.Rates) == 0 {
		t.Error("fallback returned no rates")
	}
}
