// Package binance implements the marketdata provider port against the
// Binance spot REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"arbscan/business/marketdata/domain"
	"arbscan/internal/apperror"
	"arbscan/internal/httpclient"
)

const (
	// SourceID is the stable id this provider registers under.
	SourceID = "binance"

	defaultBaseURL = "https://api.binance.com"

	depthPath  = "/api/v3/depth"
	tickerPath = "/api/v3/ticker/24hr"

	// API error code for an unknown trading pair.
	codeInvalidSymbol = -1121
)

// Provider fetches order books and tickers from Binance.
type Provider struct {
	client httpclient.Client
}

// New creates a Provider. An empty baseURL uses the production endpoint.
func New(baseURL string) (*Provider, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(SourceID),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("building binance client: %w", err)
	}
	return &Provider{client: client}, nil
}

// NewWithClient creates a Provider over an existing client. Used in tests.
func NewWithClient(client httpclient.Client) *Provider {
	return &Provider{client: client}
}

// Source returns the provider id.
func (p *Provider) Source() string { return SourceID }

type depthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// FetchOrderBook retrieves the order book for a symbol. Depth is clamped
// to the API's supported limits.
func (p *Provider) FetchOrderBook(ctx context.Context, symbol string, depth int) (*domain.RawBook, error) {
	var result depthResponse

	req := p.client.NewRequest(httpclient.WithResponseErrorHandler(mapAPIError)).
		SetQueryParam("symbol", toPair(symbol)).
		SetQueryParam("limit", strconv.Itoa(clampDepth(depth))).
		SetResult(&result)

	if _, err := req.Get(ctx, depthPath); err != nil {
		return nil, wrapTransport(err)
	}

	bids, err := parseLevels(result.Bids)
	if err != nil {
		return nil, apperror.New(apperror.CodeMalformedBook,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("binance %s bids", symbol)))
	}
	asks, err := parseLevels(result.Asks)
	if err != nil {
		return nil, apperror.New(apperror.CodeMalformedBook,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("binance %s asks", symbol)))
	}

	return &domain.RawBook{Bids: bids, Asks: asks}, nil
}

type tickerResponse struct {
	LastPrice   string `json:"lastPrice"`
	Volume      string `json:"volume"`
	QuoteVolume string `json:"quoteVolume"`
}

// FetchTicker retrieves the 24h ticker for a symbol.
func (p *Provider) FetchTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	var result tickerResponse

	req := p.client.NewRequest(httpclient.WithResponseErrorHandler(mapAPIError)).
		SetQueryParam("symbol", toPair(symbol)).
		SetResult(&result)

	if _, err := req.Get(ctx, tickerPath); err != nil {
		return nil, wrapTransport(err)
	}

	last, err := decimal.NewFromString(result.LastPrice)
	if err != nil {
		return nil, apperror.New(apperror.CodeMalformedBook,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("binance %s ticker price", symbol)))
	}
	quoteVolume, _ := decimal.NewFromString(result.QuoteVolume)

	return &domain.Ticker{
		Source:      SourceID,
		Symbol:      symbol,
		Last:        last,
		QuoteVolume: quoteVolume,
		FetchedAt:   time.Now(),
	}, nil
}

// FetchCurrencies returns an empty map: Binance gates currency status
// behind the authenticated SAPI surface.
func (p *Provider) FetchCurrencies(_ context.Context) (map[string]domain.CurrencyStatus, error) {
	return map[string]domain.CurrencyStatus{}, nil
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// mapAPIError translates Binance HTTP/body errors into the closed
// provider error codes.
func mapAPIError(resp *http.Response, body []byte) error {
	if resp.StatusCode < 400 {
		return nil
	}

	// 429 is rate limiting, 418 is the auto-ban escalation. Both carry a
	// Retry-After header in seconds.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 {
		opts := []apperror.Option{
			apperror.WithContext(fmt.Sprintf("binance status %d", resp.StatusCode)),
		}
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			opts = append(opts, apperror.WithRetryAfter(time.Duration(seconds)*time.Second))
		}
		return apperror.New(apperror.CodeProviderThrottled, opts...)
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code == codeInvalidSymbol {
		return apperror.New(apperror.CodeUnsupportedSymbol,
			apperror.WithContext(apiErr.Message))
	}

	return apperror.New(apperror.CodeProviderTransient,
		apperror.WithContext(fmt.Sprintf("binance status %d: %s", resp.StatusCode, truncate(body))))
}

// wrapTransport classifies non-API failures (network, timeouts) as
// transient unless already coded.
func wrapTransport(err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.New(apperror.CodeProviderTransient, apperror.WithCause(err))
}

// truncate keeps error payloads readable in logs.
func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// toPair converts "BTC/USDT" into the venue's "BTCUSDT" form.
func toPair(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func clampDepth(depth int) int {
	switch {
	case depth <= 0:
		return 100
	case depth > 5000:
		return 5000
	default:
		return depth
	}
}

func parseLevels(raw [][]string) ([]domain.RawLevel, error) {
	levels := make([]domain.RawLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("level has %d fields, want 2", len(entry))
		}
		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			return nil, fmt.Errorf("parsing price %q: %w", entry[0], err)
		}
		qty, err := decimal.NewFromString(entry[1])
		if err != nil {
			return nil, fmt.Errorf("parsing quantity %q: %w", entry[1], err)
		}
		levels = append(levels, domain.RawLevel{Price: price, Qty: qty})
	}
	return levels, nil
}
