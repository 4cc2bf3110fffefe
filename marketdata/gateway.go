package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"tokendesk/balance"
	"tokendesk/cache"
	"tokendesk/observability"
)

// GatewayConfig holds the per-category freshness windows and the clock used
// by every cache. Zero durations fall back to the UI-tuned defaults.
type GatewayConfig struct {
	PriceTTL    time.Duration
	MetadataTTL time.Duration
	HistoryTTL  time.Duration
	TrendingTTL time.Duration
	Now         func() time.Time
}

// Gateway fronts the provider with independent TTL caches per data category
// and applies the normalization rules the UI depends on: price failures mask
// to zero, metadata failures pass the upstream status through, history is
// always a full series.
type Gateway struct {
	provider Provider
	history  HistorySource

	prices   *cache.TTL[float64]
	metadata *cache.TTL[TokenQuote]
	candles  *cache.TTL[[]Candle]
	trending *cache.Slot[[]TrendingToken]

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewGateway constructs the gateway. history may be nil, in which case the
// synthetic placeholder series seeded from the live price is wired in.
func NewGateway(provider Provider, history HistorySource, cfg GatewayConfig, logger *slog.Logger, metrics *observability.Metrics) (*Gateway, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = 2 * time.Minute
	}
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = 5 * time.Minute
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = 5 * time.Minute
	}
	if cfg.TrendingTTL <= 0 {
		cfg.TrendingTTL = time.Minute
	}

	g := &Gateway{
		provider: provider,
		history:  history,
		prices:   cache.NewTTL[float64](cfg.PriceTTL, cfg.Now),
		metadata: cache.NewTTL[TokenQuote](cfg.MetadataTTL, cfg.Now),
		candles:  cache.NewTTL[[]Candle](cfg.HistoryTTL, cfg.Now),
		trending: cache.NewSlot[[]TrendingToken](cfg.TrendingTTL, cfg.Now),
		logger:   logger,
		metrics:  metrics,
	}
	if g.history == nil {
		g.history = NewSynthetic(g.Price, cfg.Now, nil)
	}
	return g, nil
}

// Price returns the live USD price for a token. Price absence is a normal,
// displayable state: every upstream failure masks to zero and is never
// surfaced as an error. Failed lookups are not cached, so the next read
// retries upstream.
func (g *Gateway) Price(ctx context.Context, address string) float64 {
	if cached, ok := g.prices.Get(address); ok {
		g.observeCache("price", true)
		return cached
	}
	g.observeCache("price", false)

	price, err := g.provider.TokenPrice(ctx, address)
	if err != nil {
		g.logger.Warn("price lookup failed, serving zero", "token", address, "err", err)
		return 0
	}
	g.prices.Put(address, price)
	return price
}

// PriceWithFallback re-derives a price from the latest candle close when the
// live lookup yields zero, so trade setup only accepts "price unknown" after
// both sources came up empty.
func (g *Gateway) PriceWithFallback(ctx context.Context, address string) float64 {
	if price := g.Price(ctx, address); price > 0 {
		return price
	}
	series, err := g.PriceHistory(ctx, address)
	if err != nil || len(series) == 0 {
		return 0
	}
	lastClose, err := strconv.ParseFloat(series[len(series)-1].Close, 64)
	if err != nil {
		return 0
	}
	return lastClose
}

// Metadata returns the normalized token metadata. Upstream failures keep
// their status; an empty provider result maps to ErrNotFound. Missing fields
// get defaults, and a token without a logo gets a deterministic identicon
// keyed by its address so the placeholder is stable across calls and
// restarts.
func (g *Gateway) Metadata(ctx context.Context, address string) (TokenQuote, error) {
	if cached, ok := g.metadata.Get(address); ok {
		g.observeCache("metadata", true)
		return cached, nil
	}
	g.observeCache("metadata", false)

	raw, err := g.provider.TokenMetadata(ctx, address)
	if err != nil {
		return TokenQuote{}, err
	}
	if raw == nil {
		return TokenQuote{}, ErrNotFound
	}

	quote := TokenQuote{
		Address:  raw.Address,
		Name:     raw.Name,
		Symbol:   raw.Symbol,
		Decimals: 18,
		LogoURL:  raw.Logo,
	}
	if quote.Address == "" {
		quote.Address = address
	}
	if quote.Name == "" {
		quote.Name = "Unknown Token"
	}
	if quote.Symbol == "" {
		quote.Symbol = "???"
	}
	if raw.Decimals != "" {
		if d, perr := strconv.Atoi(raw.Decimals); perr == nil {
			quote.Decimals = d
		}
	}
	if quote.LogoURL == "" {
		quote.LogoURL = raw.Thumbnail
	}
	if quote.LogoURL == "" {
		quote.LogoURL = PlaceholderLogoURL(address)
	}

	g.metadata.Put(address, quote)
	return quote, nil
}

// PlaceholderLogoURL synthesizes a deterministic identicon reference for a
// token address; the same address always yields the same image.
func PlaceholderLogoURL(address string) string {
	return "https://api.dicebear.com/7.x/identicon/svg?seed=" + url.QueryEscape(address)
}

// Trending returns the provider's trending list. The feed is not
// parameterized per token, so it lives in a single global slot; a fresh slot
// is served regardless of the requested limit, mirroring how the UI polls it.
func (g *Gateway) Trending(ctx context.Context, limit int) ([]TrendingToken, error) {
	if cached, ok := g.trending.Get(); ok {
		g.observeCache("trending", true)
		return cached, nil
	}
	g.observeCache("trending", false)

	tokens, err := g.provider.Trending(ctx, limit)
	if err != nil {
		return nil, err
	}
	g.trending.Put(tokens)
	return tokens, nil
}

// PriceHistory returns the candle series for a token: always exactly
// HistoryPoints records, oldest first, whatever the upstream OHLCV coverage
// looks like (see Synthetic).
func (g *Gateway) PriceHistory(ctx context.Context, address string) ([]Candle, error) {
	if cached, ok := g.candles.Get(address); ok {
		g.observeCache("history", true)
		return cached, nil
	}
	g.observeCache("history", false)

	series, err := g.history.Candles(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("build price history: %w", err)
	}
	g.candles.Put(address, series)
	return series, nil
}

// Balances returns the formatted holdings of owner, narrowed to one token
// when token is non-empty. Balances are served fresh on every call; the UI
// polls them for settlement, so caching would defeat reconciliation.
func (g *Gateway) Balances(ctx context.Context, owner, token string) ([]balance.Formatted, error) {
	rows, err := g.provider.WalletBalances(ctx, owner, token)
	if err != nil {
		return nil, err
	}
	out := make([]balance.Formatted, 0, len(rows))
	for _, row := range rows {
		decimals, err := strconv.Atoi(row.Decimals)
		if err != nil {
			return nil, fmt.Errorf("balance row for %s: bad decimals %q", row.TokenAddress, row.Decimals)
		}
		amount, err := balance.FormatUnits(row.Balance, decimals)
		if err != nil {
			return nil, fmt.Errorf("balance row for %s: %w", row.TokenAddress, err)
		}
		out = append(out, balance.Formatted{
			TokenAddress: row.TokenAddress,
			Name:         row.Name,
			Symbol:       row.Symbol,
			Logo:         row.BestLogo(),
			Decimals:     decimals,
			Amount:       amount,
			AmountRaw:    row.Balance,
		})
	}
	return out, nil
}

// FetchBalance adapts the gateway to the reconciler's Source contract: a
// single-token lookup where an empty result means no holding.
func (g *Gateway) FetchBalance(ctx context.Context, owner, token string) (*balance.Formatted, error) {
	rows, err := g.Balances(ctx, owner, token)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (g *Gateway) observeCache(name string, hit bool) {
	if g.metrics != nil {
		g.metrics.ObserveCache(name, hit)
	}
}
