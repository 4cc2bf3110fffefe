// Package marketdata wraps the upstream market-data provider behind TTL
// caches and normalizes its responses for the trading terminal UI.
package marketdata

import (
	"errors"
	"fmt"
	"net/http"
)

// TokenQuote is the normalized metadata + price view of a token. Fields the
// provider omits are defaulted rather than left empty (see Gateway.Metadata).
type TokenQuote struct {
	Address  string  `json:"address"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	Decimals int     `json:"decimals"`
	LogoURL  string  `json:"logo"`
	USDPrice float64 `json:"usdPrice,omitempty"`
}

// Candle is one OHLCV record. Prices are fixed-precision decimal strings with
// eight fractional digits, volume with two; the series contract is
// oldest-first, fixed length.
type Candle struct {
	Timestamp string `json:"timestamp"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

// TrendingToken mirrors the provider's trending entry. Price-change, volume
// and market-cap figures pass through untouched so the UI keeps its columns
// if the provider adds windows.
type TrendingToken struct {
	ChainID            string             `json:"chainId"`
	TokenAddress       string             `json:"tokenAddress"`
	Name               string             `json:"name"`
	Symbol             string             `json:"symbol"`
	Decimals           int                `json:"decimals"`
	Logo               string             `json:"logo"`
	USDPrice           float64            `json:"usdPrice"`
	MarketCap          float64            `json:"marketCap"`
	LiquidityUSD       float64            `json:"liquidityUsd"`
	PricePercentChange map[string]float64 `json:"pricePercentChange"`
	TotalVolume        map[string]float64 `json:"totalVolume"`
}

// StatusError carries an upstream HTTP status so handlers can pass it
// through where the data is load-bearing.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Message)
}

// ErrNotFound reports a token the provider has no record of.
var ErrNotFound = &StatusError{Code: http.StatusNotFound, Message: "token not found"}

// StatusOf extracts the HTTP status from err, defaulting to 502 for
// transport-level failures.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return http.StatusBadGateway
}
