package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tokendesk/observability"
)

// Provider is the upstream data-provider surface the gateway depends on.
// Implementations return *StatusError for non-2xx upstream responses so
// callers can decide between passthrough and masking.
type Provider interface {
	TokenPrice(ctx context.Context, address string) (float64, error)
	TokenMetadata(ctx context.Context, address string) (*RawMetadata, error)
	Trending(ctx context.Context, limit int) ([]TrendingToken, error)
	WalletBalances(ctx context.Context, owner, token string) ([]RawBalance, error)
}

// RawMetadata is the provider's metadata row before normalization. Decimals
// arrives as a string on the wire.
type RawMetadata struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Decimals  string `json:"decimals"`
	Logo      string `json:"logo"`
	Thumbnail string `json:"thumbnail"`
}

// RawBalance is the provider's ERC-20 holding row.
type RawBalance struct {
	TokenAddress string `json:"token_address"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Logo         string `json:"logo"`
	Thumbnail    string `json:"thumbnail"`
	Decimals     string `json:"decimals"`
	Balance      string `json:"balance"`
	PossibleSpam bool   `json:"possible_spam"`
}

// BestLogo picks the first available image reference.
func (b RawBalance) BestLogo() string {
	if b.Logo != "" {
		return b.Logo
	}
	return b.Thumbnail
}

// ClientConfig parameterizes the provider client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// ChainHex is the chain selector for token endpoints (e.g. "0x8f");
	// ChainSlug the name the trending endpoint expects (e.g. "monad").
	ChainHex  string
	ChainSlug string
	Timeout   time.Duration
}

// Client talks to the deep-index market-data API.
type Client struct {
	http      *resty.Client
	chainHex  string
	chainSlug string
	metrics   *observability.Metrics
}

// NewClient constructs a provider client. The API key is attached to every
// request; verifying it is present is the caller's concern (endpoints fail
// closed without one).
func NewClient(cfg ClientConfig, metrics *observability.Metrics) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("provider base url required")
	}
	if cfg.ChainHex == "" {
		cfg.ChainHex = "0x8f"
	}
	if cfg.ChainSlug == "" {
		cfg.ChainSlug = "monad"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	http := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("accept", "application/json").
		SetHeader("X-API-Key", cfg.APIKey)
	return &Client{
		http:      http,
		chainHex:  cfg.ChainHex,
		chainSlug: cfg.ChainSlug,
		metrics:   metrics,
	}, nil
}

type priceResponse struct {
	USDPrice          float64 `json:"usdPrice"`
	USDPriceFormatted string  `json:"usdPriceFormatted"`
}

// TokenPrice fetches the live USD price for a token. Upstream failures are
// returned as errors; the gateway decides whether to mask them.
func (c *Client) TokenPrice(ctx context.Context, address string) (float64, error) {
	var out priceResponse
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("address", address).
		SetQueryParam("chain", c.chainHex).
		SetResult(&out).
		Get("/erc20/{address}/price")
	c.observe("price", err, resp, start)
	if err != nil {
		return 0, fmt.Errorf("fetch price: %w", err)
	}
	if resp.IsError() {
		return 0, &StatusError{Code: resp.StatusCode(), Message: strings.TrimSpace(resp.Status())}
	}
	if out.USDPrice != 0 {
		return out.USDPrice, nil
	}
	if out.USDPriceFormatted != "" {
		if parsed, perr := strconv.ParseFloat(out.USDPriceFormatted, 64); perr == nil {
			return parsed, nil
		}
	}
	return 0, nil
}

// TokenMetadata fetches a token's metadata row. A nil row with nil error
// means the provider has no record of the token.
func (c *Client) TokenMetadata(ctx context.Context, address string) (*RawMetadata, error) {
	var out []RawMetadata
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("chain", c.chainHex).
		SetQueryParam("addresses", address).
		SetResult(&out).
		Get("/erc20/metadata")
	c.observe("metadata", err, resp, start)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Message: strings.TrimSpace(resp.Status())}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// Trending fetches the provider's trending list for the configured chain.
func (c *Client) Trending(ctx context.Context, limit int) ([]TrendingToken, error) {
	if limit <= 0 {
		limit = 25
	}
	var out []TrendingToken
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("chain", c.chainSlug).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get("/tokens/trending")
	c.observe("trending", err, resp, start)
	if err != nil {
		return nil, fmt.Errorf("fetch trending: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Message: strings.TrimSpace(resp.Status())}
	}
	return out, nil
}

// WalletBalances fetches the ERC-20 holdings of owner, narrowed to a single
// token when token is non-empty.
func (c *Client) WalletBalances(ctx context.Context, owner, token string) ([]RawBalance, error) {
	var out []RawBalance
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("owner", owner).
		SetQueryParam("chain", c.chainHex).
		SetResult(&out)
	if token != "" {
		req.SetQueryParam("token_addresses", token)
	}
	start := time.Now()
	resp, err := req.Get("/{owner}/erc20")
	c.observe("balances", err, resp, start)
	if err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Message: strings.TrimSpace(resp.Status())}
	}
	return out, nil
}

func (c *Client) observe(operation string, err error, resp *resty.Response, start time.Time) {
	if c.metrics == nil {
		return
	}
	if err == nil && resp != nil && resp.IsError() {
		err = fmt.Errorf("status %d", resp.StatusCode())
	}
	c.metrics.ObserveUpstream(operation, err, time.Since(start))
}
