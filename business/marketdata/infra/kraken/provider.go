// Package kraken implements the marketdata provider port against the
// Kraken public REST API.
package kraken

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
	SourceID = "kraken"

	defaultBaseURL = "https://api.kraken.com"

	depthPath  = "/0/public/Depth"
	tickerPath = "/0/public/Ticker"
	assetsPath = "/0/public/Assets"
)

// Kraken uses legacy codes for a handful of currencies.
var currencyAliases = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// Provider fetches order books, tickers and asset status from Kraken.
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
		return nil, fmt.Errorf("building kraken client: %w", err)
	}
	return &Provider{client: client}, nil
}

// NewWithClient creates a Provider over an existing client. Used in tests.
func NewWithClient(client httpclient.Client) *Provider {
	return &Provider{client: client}
}

// Source returns the provider id.
func (p *Provider) Source() string { return SourceID }

// envelope is Kraken's uniform response wrapper. Errors arrive in-band
// with a 200 status.
type envelope[T any] struct {
	Error  []string     `json:"error"`
	Result map[string]T `json:"result"`
}

func (e *envelope[T]) err() error {
	if len(e.Error) == 0 {
		return nil
	}
	msg := strings.Join(e.Error, "; ")
	switch {
	case strings.Contains(msg, "Unknown asset pair"), strings.Contains(msg, "Unknown asset"):
		return apperror.New(apperror.CodeUnsupportedSymbol, apperror.WithContext(msg))
	case strings.Contains(msg, "Too many requests"), strings.Contains(msg, "Rate limit exceeded"):
		return apperror.New(apperror.CodeProviderThrottled, apperror.WithContext(msg))
	default:
		return apperror.New(apperror.CodeProviderTransient, apperror.WithContext(msg))
	}
}

// first returns the single entry of a keyed result. Kraken echoes the
// pair back under its own canonical name, so the key cannot be assumed.
func first[T any](result map[string]T) (T, bool) {
	for _, v := range result {
		return v, true
	}
	var zero T
	return zero, false
}

type depthSide struct {
	levels []domain.RawLevel
}

// UnmarshalJSON parses Kraken's [price, volume, timestamp] triples.
func (d *depthSide) UnmarshalJSON(data []byte) error {
	var raw [][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.levels = make([]domain.RawLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			return fmt.Errorf("level has %d fields, want at least 2", len(entry))
		}
		price, err := toDecimal(entry[0])
		if err != nil {
			return fmt.Errorf("parsing price: %w", err)
		}
		qty, err := toDecimal(entry[1])
		if err != nil {
			return fmt.Errorf("parsing volume: %w", err)
		}
		d.levels = append(d.levels, domain.RawLevel{Price: price, Qty: qty})
	}
	return nil
}

type depthResult struct {
	Asks depthSide `json:"asks"`
	Bids depthSide `json:"bids"`
}

// FetchOrderBook retrieves the order book for a symbol.
func (p *Provider) FetchOrderBook(ctx context.Context, symbol string, depth int) (*domain.RawBook, error) {
	var result envelope[depthResult]

	req := p.client.NewRequest(httpclient.WithResponseErrorHandler(mapHTTPError)).
		SetQueryParam("pair", toPair(symbol)).
		SetQueryParam("count", strconv.Itoa(clampDepth(depth))).
		SetResult(&result)

	if _, err := req.Get(ctx, depthPath); err != nil {
		return nil, wrapTransport(err)
	}
	if err := result.err(); err != nil {
		return nil, err
	}

	book, ok := first(result.Result)
	if !ok {
		return nil, apperror.New(apperror.CodeMalformedBook,
			apperror.WithContext(fmt.Sprintf("kraken %s: empty depth result", symbol)))
	}
	return &domain.RawBook{Bids: book.Bids.levels, Asks: book.Asks.levels}, nil
}

type tickerResult struct {
	Close  []string `json:"c"` // last trade [price, lot volume]
	Volume []string `json:"v"` // [today, last 24h]
}

// FetchTicker retrieves the ticker for a symbol.
func (p *Provider) FetchTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	var result envelope[tickerResult]

	req := p.client.NewRequest(httpclient.WithResponseErrorHandler(mapHTTPError)).
		SetQueryParam("pair", toPair(symbol)).
		SetResult(&result)

	if _, err := req.Get(ctx, tickerPath); err != nil {
		return nil, wrapTransport(err)
	}
	if err := result.err(); err != nil {
		return nil, err
	}

	ticker, ok := first(result.Result)
	if !ok || len(ticker.Close) == 0 {
		return nil, apperror.New(apperror.CodeMalformedBook,
			apperror.WithContext(fmt.Sprintf("kraken %s: empty ticker result", symbol)))
	}
	last, err := decimal.NewFromString(ticker.Close[0])
	if err != nil {
		return nil, apperror.New(apperror.CodeMalformedBook,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("kraken %s ticker price", symbol)))
	}

	return &domain.Ticker{
		Source:    SourceID,
		Symbol:    symbol,
		Last:      last,
		FetchedAt: time.Now(),
	}, nil
}

type assetResult struct {
	Altname string `json:"altname"`
	Status  string `json:"status"`
}

// FetchCurrencies retrieves deposit/withdraw capability for every asset.
func (p *Provider) FetchCurrencies(ctx context.Context) (map[string]domain.CurrencyStatus, error) {
	var result envelope[assetResult]

	req := p.client.NewRequest(httpclient.WithResponseErrorHandler(mapHTTPError)).
		SetResult(&result)

	if _, err := req.Get(ctx, assetsPath); err != nil {
		return nil, wrapTransport(err)
	}
	if err := result.err(); err != nil {
		return nil, err
	}

	out := make(map[string]domain.CurrencyStatus, len(result.Result))
	for _, asset := range result.Result {
		name := fromAlias(asset.Altname)
		deposit := asset.Status == "enabled" || asset.Status == "deposit_only"
		withdraw := asset.Status == "enabled" || asset.Status == "withdrawal_only"
		out[name] = domain.CurrencyStatus{Deposit: &deposit, Withdraw: &withdraw}
	}
	return out, nil
}

// mapHTTPError handles transport-level rejection. Kraken reports most
// API errors in-band with status 200, handled by envelope.err.
func mapHTTPError(resp *http.Response, body []byte) error {
	if resp.StatusCode < 400 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		opts := []apperror.Option{apperror.WithContext("kraken status 429")}
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			opts = append(opts, apperror.WithRetryAfter(time.Duration(seconds)*time.Second))
		}
		return apperror.New(apperror.CodeProviderThrottled, opts...)
	}
	return apperror.New(apperror.CodeProviderTransient,
		apperror.WithContext(fmt.Sprintf("kraken status %d: %s", resp.StatusCode, truncate(body))))
}

func wrapTransport(err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.New(apperror.CodeProviderTransient, apperror.WithCause(err))
}

// toPair converts "BTC/USDT" to Kraken's "XBTUSDT" form.
func toPair(symbol string) string {
	base, quote, found := strings.Cut(strings.ToUpper(symbol), "/")
	if !found {
		return strings.ToUpper(symbol)
	}
	if alias, ok := currencyAliases[base]; ok {
		base = alias
	}
	if alias, ok := currencyAliases[quote]; ok {
		quote = alias
	}
	return base + quote
}

// fromAlias maps a Kraken altname back to the common currency code.
func fromAlias(altname string) string {
	for common, alias := range currencyAliases {
		if alias == altname {
			return common
		}
	}
	return altname
}

func clampDepth(depth int) int {
	switch {
	case depth <= 0:
		return 100
	case depth > 500:
		return 500
	default:
		return depth
	}
}

// truncate keeps error payloads readable in logs.
func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected type %T", v)
	}
}
