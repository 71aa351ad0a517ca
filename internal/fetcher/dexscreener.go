package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultDexScreenerURL = "https://api.dexscreener.com/latest/dex/tokens"

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// DexScreenerOptions parameterise the DexScreener fetcher.
type DexScreenerOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// DexScreener fetches token pair prices from the DexScreener public API.
type DexScreener struct {
	opts    DexScreenerOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDexScreener constructs a DexScreener fetcher.
func NewDexScreener(opts DexScreenerOptions, logger zerolog.Logger) *DexScreener {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultDexScreenerURL
	}

	return &DexScreener{
		opts:    opts,
		logger:  logger.With().Str("component", "dexscreener_fetcher").Logger(),
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: baseURL,
	}
}

// FetchQuote requests the pairs for asset and returns the first one.
func (d *DexScreener) FetchQuote(ctx context.Context, asset string) (Quote, error) {
	if asset == "" {
		return Quote{}, fmt.Errorf("%w: empty asset identifier", ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	endpoint := d.baseURL + "/" + url.PathEscape(asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("create quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(d.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("send quote request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Quote{}, fmt.Errorf("read quote response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Quote{}, parseHTTPError(resp.StatusCode, payload)
	}

	var body pairsResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return Quote{}, fmt.Errorf("decode quote response: %w", err)
	}

	quote, err := body.first(asset)
	if err != nil {
		return Quote{}, err
	}

	d.logger.Debug().Str("asset", asset).
		Str("symbol", quote.Symbol).
		Str("venue", quote.Venue).
		Str("price", quote.Price.String()).
		Msg("quote fetched")
	return quote, nil
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	DexID      string          `json:"dexId"`
	PriceUSD   json.RawMessage `json:"priceUsd"`
	BaseToken  token           `json:"baseToken"`
	QuoteToken token           `json:"quoteToken"`
}

type token struct {
	Symbol string `json:"symbol"`
}

func (r pairsResponse) first(asset string) (Quote, error) {
	if len(r.Pairs) == 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrNotFound, asset)
	}

	p := r.Pairs[0]
	price, err := parsePrice(p.PriceUSD)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrMalformedQuote, asset, err)
	}

	return Quote{
		Asset:  asset,
		Price:  price,
		Venue:  p.DexID,
		Symbol: p.BaseToken.Symbol + "/" + p.QuoteToken.Symbol,
	}, nil
}

// parsePrice accepts priceUsd as either a JSON string or a JSON number.
func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Decimal{}, errors.New("priceUsd missing")
	}
	text = strings.Trim(text, `"`)
	price, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse priceUsd %q: %w", text, err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("priceUsd %s is not positive", price.String())
	}
	return price, nil
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("dexscreener api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("dexscreener api error (%d): %s", status, apiErr.Error)
		}
	}
	if text := strings.TrimSpace(string(payload)); text != "" {
		if len(text) > 256 {
			text = text[:256]
		}
		return fmt.Errorf("dexscreener api error (%d): %s", status, text)
	}
	return fmt.Errorf("dexscreener api error (%d)", status)
}

var _ QuoteFetcher = (*DexScreener)(nil)
