package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"tokendesk/observability"
)

// State is the terminal state of one reconciliation run.
type State string

const (
	StateSettled State = "settled"
	StateGaveUp  State = "gave_up"
)

// Source fetches the current holding of token for owner. A nil Formatted with
// nil error means the provider reported no row, which reads as a zero
// balance.
type Source interface {
	FetchBalance(ctx context.Context, owner, token string) (*Formatted, error)
}

// Options tune a single reconciliation run.
type Options struct {
	// ExpectZero keeps polling until the observed amount reaches zero or the
	// retry budget is spent. When false a single fetch suffices.
	ExpectZero bool
	// MaxRetries bounds the number of balance fetches. Zero means the
	// reconciler default for the mode.
	MaxRetries int
}

// Outcome reports how a run terminated. Balance is the last observed holding;
// it is nil when every fetch failed or the provider reported no row.
type Outcome struct {
	State   State
	Balance *Formatted
}

// Zero reports whether the observed amount is absent or zero.
func (o Outcome) Zero() bool {
	if o.Balance == nil {
		return true
	}
	raw, err := ParseRaw(o.Balance.AmountRaw)
	if err != nil {
		return false
	}
	return raw.Sign() == 0
}

// Reconciler drives the post-trade balance poll loop. At most one run is in
// flight per (owner, token) pair; concurrent requests for the same pair
// coalesce onto the running poll instead of interleaving fetches.
type Reconciler struct {
	source         Source
	delay          time.Duration
	refreshRetries int
	settleRetries  int
	logger         *slog.Logger
	metrics        *observability.Metrics
	group          singleflight.Group
}

// NewReconciler constructs a reconciler. delay is the fixed inter-poll spacing;
// refreshRetries bounds a normal refresh and settleRetries the extended
// post-liquidation budget.
func NewReconciler(source Source, delay time.Duration, refreshRetries, settleRetries int, logger *slog.Logger, metrics *observability.Metrics) (*Reconciler, error) {
	if source == nil {
		return nil, fmt.Errorf("balance source required")
	}
	if delay <= 0 {
		delay = time.Second
	}
	if refreshRetries <= 0 {
		refreshRetries = 3
	}
	if settleRetries <= 0 {
		settleRetries = 12
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		source:         source,
		delay:          delay,
		refreshRetries: refreshRetries,
		settleRetries:  settleRetries,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

var errStillNonZero = errors.New("balance still nonzero")

// Reconcile runs one poll loop for (owner, token). The returned error is
// reserved for invalid input and context cancellation; provider failures are
// consumed as "no data yet" and show up as an absent balance instead.
func (r *Reconciler) Reconcile(ctx context.Context, owner, token string, opts Options) (Outcome, error) {
	owner = strings.TrimSpace(owner)
	token = strings.TrimSpace(token)
	if owner == "" || token == "" {
		return Outcome{}, fmt.Errorf("owner and token are required")
	}

	retries := opts.MaxRetries
	if retries <= 0 {
		if opts.ExpectZero {
			retries = r.settleRetries
		} else {
			retries = r.refreshRetries
		}
	}
	if !opts.ExpectZero {
		// A plain refresh is a single fetch; there is nothing to wait for.
		retries = 1
	}

	key := owner + "|" + token
	result, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.poll(ctx, owner, token, opts.ExpectZero, retries)
	})
	if err != nil {
		return Outcome{}, err
	}
	return result.(Outcome), nil
}

func (r *Reconciler) poll(ctx context.Context, owner, token string, expectZero bool, retries int) (Outcome, error) {
	var last *Formatted

	operation := func() (*Formatted, error) {
		observed, err := r.source.FetchBalance(ctx, owner, token)
		if err != nil {
			// Treated as "no data yet": consumed silently, retried on the
			// remaining budget.
			r.logger.Debug("balance fetch failed, retrying",
				"owner", owner, "token", token, "err", err)
			return nil, err
		}
		last = observed
		if expectZero && !isZero(observed) {
			return nil, errStillNonZero
		}
		return observed, nil
	}

	observed, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.delay)),
		backoff.WithMaxTries(uint(retries)),
	)
	switch {
	case err == nil:
		r.observe(StateSettled)
		return Outcome{State: StateSettled, Balance: observed}, nil
	case ctx.Err() != nil:
		// A torn-down caller must not receive a stale update.
		return Outcome{}, ctx.Err()
	default:
		// Budget exhausted. A stuck nonzero balance is reported truthfully;
		// failures-only runs surface an absent balance.
		r.observe(StateGaveUp)
		r.logger.Info("balance reconciliation gave up",
			"owner", owner, "token", token, "retries", retries, "observed", last != nil)
		return Outcome{State: StateGaveUp, Balance: last}, nil
	}
}

func (r *Reconciler) observe(state State) {
	if r.metrics != nil {
		r.metrics.ObserveReconciliation(string(state))
	}
}

func isZero(f *Formatted) bool {
	if f == nil {
		return true
	}
	raw, err := ParseRaw(f.AmountRaw)
	if err != nil {
		return false
	}
	return raw.Sign() == 0
}
