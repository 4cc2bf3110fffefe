// Package config loads runtime configuration for tokendeskd from the
// environment. A .env file in the working directory is honored when present
// so local development mirrors deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the tokendesk service.
type Config struct {
	ListenAddress string
	Environment   string

	// Upstream market data provider.
	ProviderBaseURL string
	ProviderAPIKey  string
	ChainHex        string

	// External account SDK identifiers. The SDK itself is an injected
	// collaborator; these are forwarded to whichever binding is wired in.
	// The trade routes stay dark when no bridge URL is configured.
	SDKBridgeURL string
	SDKProjectID string
	SDKClientKey string
	SDKAppID     string
	SDKChainID   int64

	// Cache freshness windows.
	PriceTTL    time.Duration
	MetadataTTL time.Duration
	HistoryTTL  time.Duration
	TrendingTTL time.Duration

	// Balance reconciliation.
	PollDelay      time.Duration
	RefreshRetries int
	SettleRetries  int

	// Per-client rate limit on the public endpoints.
	RateLimitPerMinute float64
	RateLimitBurst     int

	// Telemetry. Traces are disabled when the endpoint is empty.
	OTLPEndpoint string

	// Template for linking a submitted transaction; the transaction id is
	// appended verbatim.
	ExplorerTxURL string
}

// Defaults that track the freshness windows the UI was tuned against.
const (
	DefaultPriceTTL    = 2 * time.Minute
	DefaultMetadataTTL = 5 * time.Minute
	DefaultHistoryTTL  = 5 * time.Minute
	DefaultTrendingTTL = time.Minute

	DefaultPollDelay      = time.Second
	DefaultRefreshRetries = 3
	DefaultSettleRetries  = 12

	DefaultSDKChainID = 143
)

// FromEnv builds a configuration from TOKENDESK_* environment variables,
// loading a .env file first if one exists.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddress:      getenvDefault("TOKENDESK_LISTEN", ":8080"),
		Environment:        strings.TrimSpace(os.Getenv("TOKENDESK_ENV")),
		ProviderBaseURL:    getenvDefault("TOKENDESK_PROVIDER_URL", "https://deep-index.moralis.io/api/v2.2"),
		ProviderAPIKey:     strings.TrimSpace(os.Getenv("TOKENDESK_PROVIDER_API_KEY")),
		ChainHex:           getenvDefault("TOKENDESK_CHAIN_HEX", "0x8f"),
		SDKBridgeURL:       strings.TrimSpace(os.Getenv("TOKENDESK_SDK_BRIDGE_URL")),
		SDKProjectID:       strings.TrimSpace(os.Getenv("TOKENDESK_SDK_PROJECT_ID")),
		SDKClientKey:       strings.TrimSpace(os.Getenv("TOKENDESK_SDK_CLIENT_KEY")),
		SDKAppID:           strings.TrimSpace(os.Getenv("TOKENDESK_SDK_APP_ID")),
		SDKChainID:         DefaultSDKChainID,
		PriceTTL:           DefaultPriceTTL,
		MetadataTTL:        DefaultMetadataTTL,
		HistoryTTL:         DefaultHistoryTTL,
		TrendingTTL:        DefaultTrendingTTL,
		PollDelay:          DefaultPollDelay,
		RefreshRetries:     DefaultRefreshRetries,
		SettleRetries:      DefaultSettleRetries,
		RateLimitPerMinute: 300,
		RateLimitBurst:     30,
		OTLPEndpoint:       strings.TrimSpace(os.Getenv("TOKENDESK_OTLP_ENDPOINT")),
		ExplorerTxURL:      getenvDefault("TOKENDESK_EXPLORER_TX_URL", "https://universalx.app/activity/details?id="),
	}

	if raw := strings.TrimSpace(os.Getenv("TOKENDESK_SDK_CHAIN_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse TOKENDESK_SDK_CHAIN_ID: %w", err)
		}
		if id <= 0 {
			return Config{}, errors.New("TOKENDESK_SDK_CHAIN_ID must be positive")
		}
		cfg.SDKChainID = id
	}

	for _, ttl := range []struct {
		env string
		dst *time.Duration
	}{
		{"TOKENDESK_PRICE_TTL", &cfg.PriceTTL},
		{"TOKENDESK_METADATA_TTL", &cfg.MetadataTTL},
		{"TOKENDESK_HISTORY_TTL", &cfg.HistoryTTL},
		{"TOKENDESK_TRENDING_TTL", &cfg.TrendingTTL},
		{"TOKENDESK_POLL_DELAY", &cfg.PollDelay},
	} {
		raw := strings.TrimSpace(os.Getenv(ttl.env))
		if raw == "" {
			continue
		}
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", ttl.env, err)
		}
		if dur <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", ttl.env)
		}
		*ttl.dst = dur
	}

	for _, n := range []struct {
		env string
		dst *int
	}{
		{"TOKENDESK_REFRESH_RETRIES", &cfg.RefreshRetries},
		{"TOKENDESK_SETTLE_RETRIES", &cfg.SettleRetries},
		{"TOKENDESK_RATE_BURST", &cfg.RateLimitBurst},
	} {
		raw := strings.TrimSpace(os.Getenv(n.env))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", n.env, err)
		}
		if v <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", n.env)
		}
		*n.dst = v
	}

	if raw := strings.TrimSpace(os.Getenv("TOKENDESK_RATE_PER_MINUTE")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse TOKENDESK_RATE_PER_MINUTE: %w", err)
		}
		if v <= 0 {
			return Config{}, errors.New("TOKENDESK_RATE_PER_MINUTE must be positive")
		}
		cfg.RateLimitPerMinute = v
	}

	return cfg, nil
}

// ProviderConfigured reports whether the data-provider key is present. Data
// endpoints fail closed when it is not.
func (c Config) ProviderConfigured() bool {
	return c.ProviderAPIKey != ""
}

func getenvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
