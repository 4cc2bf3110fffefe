// Package balance formats on-chain token amounts and reconciles a wallet's
// balance after trades with a bounded poll loop.
package balance

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Formatted is one wallet holding as served to consumers: the raw integer
// amount is preserved exactly alongside the human-readable decimal so no
// precision is lost downstream.
type Formatted struct {
	TokenAddress string `json:"tokenAddress,omitempty"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Logo         string `json:"logo"`
	Decimals     int    `json:"decimals"`
	Amount       string `json:"amount"`
	AmountRaw    string `json:"amountRaw"`
}

// FormatUnits converts a raw integer amount and a decimals count into an
// exact decimal string: raw "1500000000000000000" with 18 decimals yields
// "1.5". The division is integer arithmetic on the raw value; no float is
// involved, so amounts beyond float53 precision remain exact.
func FormatUnits(raw string, decimals int) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty raw amount")
	}
	if decimals < 0 {
		return "", fmt.Errorf("negative decimals %d", decimals)
	}
	// ERC-20 amounts are uint256 by construction; reject anything that is
	// not a canonical unsigned integer before the big.Int path.
	if _, err := uint256.FromDecimal(raw); err != nil {
		return "", fmt.Errorf("invalid raw amount %q: %w", raw, err)
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "", fmt.Errorf("invalid raw amount %q", raw)
	}
	if decimals == 0 {
		return value.String(), nil
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(value, divisor, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String(), nil
	}
	fracStr := fmt.Sprintf("%0*s", decimals, frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr, nil
}

// ParseRaw validates and parses a raw amount string.
func ParseRaw(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if _, err := uint256.FromDecimal(raw); err != nil {
		return nil, fmt.Errorf("invalid raw amount %q: %w", raw, err)
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid raw amount %q", raw)
	}
	return value, nil
}
