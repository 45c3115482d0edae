package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"arbscan/internal/apperror"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestFetchOrderBook_ParsesDepth(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/api/v3/depth" {
			t.Errorf("path = %q, want /api/v3/depth", got)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %q, want BTCUSDT", got)
		}
		w.Write([]byte(`{
			"lastUpdateId": 1,
			"bids": [["100.50", "2.0"], ["100.00", "5.0"]],
			"asks": [["101.00", "1.5"]]
		}`))
	})

	book, err := p.FetchOrderBook(context.Background(), "BTC/USDT", 50)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("got %d bids %d asks, want 2 and 1", len(book.Bids), len(book.Asks))
	}
	if got := book.Bids[0].Price.String(); got != "100.5" {
		t.Errorf("top bid price = %s, want 100.5", got)
	}
	if got := book.Asks[0].Qty.String(); got != "1.5" {
		t.Errorf("ask qty = %s, want 1.5", got)
	}
}

func TestFetchOrderBook_RateLimitedWithRetryAfter(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code": -1003, "msg": "Too many requests."}`))
	})

	_, err := p.FetchOrderBook(context.Background(), "BTC/USDT", 50)
	if !apperror.IsThrottled(err) {
		t.Fatalf("error = %v, want throttled", err)
	}
	if hint := apperror.RetryAfterHint(err); hint.Seconds() != 7 {
		t.Errorf("retry-after hint = %s, want 7s", hint)
	}
}

func TestFetchOrderBook_BanStatusIsThrottled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(418)
		w.Write([]byte(`{"code": -1003, "msg": "banned"}`))
	})

	_, err := p.FetchOrderBook(context.Background(), "BTC/USDT", 50)
	if !apperror.IsThrottled(err) {
		t.Fatalf("error = %v, want throttled", err)
	}
}

func TestFetchOrderBook_UnknownSymbol(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -1121, "msg": "Invalid symbol."}`))
	})

	_, err := p.FetchOrderBook(context.Background(), "NOPE/USDT", 50)
	if apperror.GetCode(err) != apperror.CodeUnsupportedSymbol {
		t.Fatalf("error = %v, want unsupported symbol", err)
	}
}

func TestFetchOrderBook_ServerErrorIsTransient(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.FetchOrderBook(context.Background(), "BTC/USDT", 50)
	if apperror.GetCode(err) != apperror.CodeProviderTransient {
		t.Fatalf("error = %v, want transient", err)
	}
}

func TestFetchTicker_ParsesLastPrice(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/api/v3/ticker/24hr" {
			t.Errorf("path = %q, want /api/v3/ticker/24hr", got)
		}
		w.Write([]byte(`{"lastPrice": "64000.12", "volume": "1000", "quoteVolume": "64000000"}`))
	})

	ticker, err := p.FetchTicker(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := ticker.Last.String(); got != "64000.12" {
		t.Errorf("last = %s, want 64000.12", got)
	}
}

func TestFetchCurrencies_EmptyWithoutAuth(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	currencies, err := p.FetchCurrencies(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(currencies) != 0 {
		t.Fatalf("got %d currencies, want 0", len(currencies))
	}
}

func TestToPair(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"BTC/USDT", "BTCUSDT"},
		{"eth/usdt", "ETHUSDT"},
		{"SOLUSDT", "SOLUSDT"},
	}
	for _, tc := range cases {
		if got := toPair(tc.in); got != tc.want {
			t.Errorf("toPair(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
