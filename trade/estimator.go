// Package trade orchestrates the quote and execution lifecycle on top of the
// account capability seams.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"tokendesk/account"
)

// Fee amounts arrive as integer strings in 18-decimal fixed point and are
// rendered to four decimal places for display.
const (
	feeScale     = 18
	renderPlaces = 4
)

// ErrSuperseded reports that a newer estimate request was started before this
// one finished; its result was discarded.
var ErrSuperseded = errors.New("trade: estimate superseded by a newer request")

// FeeEstimate is the rendered USD fee decomposition for one intent.
type FeeEstimate struct {
	GasFee     string `json:"gasFee"`
	ServiceFee string `json:"serviceFee"`
	LPFee      string `json:"lpFee"`
	TotalFee   string `json:"totalFee"`
}

func renderFee(fixed string) (string, error) {
	d, err := decimal.NewFromString(fixed)
	if err != nil {
		return "", fmt.Errorf("trade: malformed fee amount %q: %w", fixed, err)
	}
	return d.Shift(-feeScale).StringFixed(renderPlaces), nil
}

// DecomposeFees renders one fee quote's totals. The total is taken from the
// quote, not recomputed, so any provider-side rounding is preserved.
func DecomposeFees(q account.FeeQuote) (*FeeEstimate, error) {
	gas, err := renderFee(q.Totals.GasFeeTokenAmountInUSD)
	if err != nil {
		return nil, err
	}
	service, err := renderFee(q.Totals.TransactionServiceFeeTokenAmountInUSD)
	if err != nil {
		return nil, err
	}
	lp, err := renderFee(q.Totals.TransactionLPFeeTokenAmountInUSD)
	if err != nil {
		return nil, err
	}
	total, err := renderFee(q.Totals.FeeTokenAmountInUSD)
	if err != nil {
		return nil, err
	}
	return &FeeEstimate{GasFee: gas, ServiceFee: service, LPFee: lp, TotalFee: total}, nil
}

// Estimator prices intents against the quote provider. Requests may complete
// out of order; a generation counter ensures only the most recently started
// request publishes its result, so the caller never sees a stale estimate
// overwrite a fresher one.
type Estimator struct {
	quotes account.QuoteProvider
	log    *slog.Logger

	mu     sync.Mutex
	gen    uint64
	latest *FeeEstimate
}

// NewEstimator returns an estimator backed by the given quote provider.
func NewEstimator(quotes account.QuoteProvider, log *slog.Logger) *Estimator {
	if log == nil {
		log = slog.Default()
	}
	return &Estimator{quotes: quotes, log: log}
}

// Estimate fetches and renders a fee estimate for the intent. If another
// Estimate call started after this one, the result is dropped and
// ErrSuperseded is returned.
func (e *Estimator) Estimate(ctx context.Context, intent account.Intent) (*FeeEstimate, error) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	quotes, err := e.quotes.Quote(ctx, intent)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, fmt.Errorf("trade: quote intent: %w", err)
	}
	if len(quotes) == 0 {
		return nil, errors.New("trade: provider returned no fee quotes")
	}
	est, err := DecomposeFees(quotes[0])
	if err != nil {
		return nil, err
	}
	e.latest = est
	return est, nil
}

// Latest returns the most recently published estimate, or nil when none has
// completed yet.
func (e *Estimator) Latest() *FeeEstimate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}
