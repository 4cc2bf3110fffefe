package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tokendesk/account"
	"tokendesk/balance"
	"tokendesk/observability"
)

// Phase is the executor's position in a trade attempt. Transitions run
// strictly Idle -> Building -> AwaitingSignature -> Submitting and terminate
// in Submitted or Failed; the executor always returns to Idle afterwards,
// whatever the outcome.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseBuilding          Phase = "building"
	PhaseAwaitingSignature Phase = "awaiting_signature"
	PhaseSubmitting        Phase = "submitting"
	PhaseSubmitted         Phase = "submitted"
	PhaseFailed            Phase = "failed"
)

var (
	// ErrBusy reports that a trade attempt is already in flight.
	ErrBusy = errors.New("trade: an attempt is already in progress")
	// ErrBadAddress reports a malformed owner or token address, caught
	// before any collaborator is called.
	ErrBadAddress = errors.New("trade: address is not a valid 0x hex address")
)

// Result is the terminal record of one trade attempt.
type Result struct {
	ID            string `json:"id"`
	Phase         Phase  `json:"phase"`
	RootHash      string `json:"rootHash,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Status        string `json:"status,omitempty"`
	ExplorerURL   string `json:"explorerUrl,omitempty"`
	Error         string `json:"error,omitempty"`
}

// BuyParams sizes a buy by USD notional.
type BuyParams struct {
	Owner     string
	Token     string
	AmountUSD string
}

// SellParams sizes a sell as a percentage of the owner's current balance.
type SellParams struct {
	Owner   string
	Token   string
	Percent float64
}

// Executor drives one trade attempt at a time through build, sign, and
// submit, then hands the aftermath to the balance reconciler.
type Executor struct {
	sdk        account.SDK
	signer     account.Signer
	balances   balance.Source
	reconciler *balance.Reconciler
	chainID    int64
	explorerTx string
	log        *slog.Logger
	metrics    *observability.Metrics

	mu    sync.Mutex
	phase Phase
}

// ExecutorConfig collects the executor's collaborators. SDK, Signer, and
// Balances are required; Reconciler may be nil in which case no
// post-trade reconciliation is triggered.
type ExecutorConfig struct {
	SDK           account.SDK
	Signer        account.Signer
	Balances      balance.Source
	Reconciler    *balance.Reconciler
	ChainID       int64
	ExplorerTxURL string
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// NewExecutor validates the collaborators and returns an idle executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.SDK == nil {
		return nil, fmt.Errorf("trade: sdk is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("trade: signer is required")
	}
	if cfg.Balances == nil {
		return nil, fmt.Errorf("trade: balance source is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		sdk:        cfg.SDK,
		signer:     cfg.Signer,
		balances:   cfg.Balances,
		reconciler: cfg.Reconciler,
		chainID:    cfg.ChainID,
		explorerTx: cfg.ExplorerTxURL,
		log:        log,
		metrics:    cfg.Metrics,
		phase:      PhaseIdle,
	}, nil
}

// Phase reports the current position in the lifecycle.
func (x *Executor) Phase() Phase {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.phase
}

// Buy executes a buy sized in USD.
func (x *Executor) Buy(ctx context.Context, p BuyParams) (*Result, error) {
	if !common.IsHexAddress(p.Owner) || !common.IsHexAddress(p.Token) {
		return nil, ErrBadAddress
	}
	amount, err := decimal.NewFromString(p.AmountUSD)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("trade: buy amount must be a positive decimal, got %q", p.AmountUSD)
	}
	intent := account.Intent{
		Side:      account.SideBuy,
		Token:     account.TokenRef{ChainID: x.chainID, Address: p.Token},
		AmountUSD: amount.String(),
	}
	return x.run(ctx, intent, p.Owner, false)
}

// Sell executes a sell sized as a percentage of the owner's current balance.
// The token amount is the balance scaled by the percentage and rounded to the
// token's own decimals. Selling 100% switches the follow-up reconciliation to
// expect a zero balance.
func (x *Executor) Sell(ctx context.Context, p SellParams) (*Result, error) {
	if !common.IsHexAddress(p.Owner) || !common.IsHexAddress(p.Token) {
		return nil, ErrBadAddress
	}
	if p.Percent <= 0 || p.Percent > 100 {
		return nil, fmt.Errorf("trade: sell percentage must be in (0, 100], got %v", p.Percent)
	}

	held, err := x.balances.FetchBalance(ctx, p.Owner, p.Token)
	if err != nil {
		return nil, fmt.Errorf("trade: fetch balance for sell sizing: %w", err)
	}
	if held == nil {
		return nil, fmt.Errorf("trade: no balance of %s to sell", p.Token)
	}
	amount, err := sellAmount(held, p.Percent)
	if err != nil {
		return nil, err
	}

	intent := account.Intent{
		Side:   account.SideSell,
		Token:  account.TokenRef{ChainID: x.chainID, Address: p.Token},
		Amount: amount,
	}
	return x.run(ctx, intent, p.Owner, p.Percent == 100)
}

// sellAmount scales the held balance by the percentage, rounded to the
// token's decimals.
func sellAmount(held *balance.Formatted, percent float64) (string, error) {
	bal, err := decimal.NewFromString(held.Amount)
	if err != nil {
		return "", fmt.Errorf("trade: malformed balance amount %q: %w", held.Amount, err)
	}
	pct := decimal.NewFromFloat(percent).Div(decimal.NewFromInt(100))
	amount := bal.Mul(pct).Round(int32(held.Decimals))
	if !amount.IsPositive() {
		return "", fmt.Errorf("trade: computed sell amount %s is not positive", amount)
	}
	return amount.StringFixed(int32(held.Decimals)), nil
}

// run drives one attempt through the lifecycle. The phase is reset to Idle
// on every exit path.
func (x *Executor) run(ctx context.Context, intent account.Intent, owner string, expectZero bool) (*Result, error) {
	x.mu.Lock()
	if x.phase != PhaseIdle {
		x.mu.Unlock()
		return nil, ErrBusy
	}
	x.phase = PhaseBuilding
	x.mu.Unlock()
	defer x.setPhase(PhaseIdle)

	res := &Result{ID: uuid.NewString()}
	log := x.log.With("attempt", res.ID, "side", string(intent.Side), "token", intent.Token.Address)

	tx, err := x.sdk.Build(ctx, intent)
	if err != nil {
		return x.fail(res, log, intent.Side, "build transaction", err)
	}
	res.RootHash = tx.RootHash.Hex()

	x.setPhase(PhaseAwaitingSignature)
	sig, err := x.signer.SignMessage(ctx, tx.RootHash)
	if err != nil {
		return x.fail(res, log, intent.Side, "sign root hash", err)
	}

	x.setPhase(PhaseSubmitting)
	submitted, err := x.sdk.Submit(ctx, tx, sig)
	if err != nil {
		return x.fail(res, log, intent.Side, "submit transaction", err)
	}

	res.Phase = PhaseSubmitted
	res.TransactionID = submitted.TransactionID
	res.Status = submitted.Status
	if x.explorerTx != "" && submitted.TransactionID != "" {
		res.ExplorerURL = x.explorerTx + submitted.TransactionID
	}
	if x.metrics != nil {
		x.metrics.ObserveTrade(string(intent.Side), "submitted")
	}
	log.Info("trade submitted", "tx_id", submitted.TransactionID, "status", submitted.Status)

	x.kickReconciliation(ctx, owner, intent.Token.Address, expectZero)
	return res, nil
}

func (x *Executor) fail(res *Result, log *slog.Logger, side account.Side, step string, err error) (*Result, error) {
	// Partial state from earlier steps is not resumable; drop it.
	res.RootHash = ""
	res.Phase = PhaseFailed
	res.Error = fmt.Sprintf("%s: %v", step, err)
	if x.metrics != nil {
		x.metrics.ObserveTrade(string(side), "failed")
	}
	log.Warn("trade attempt failed", "step", step, "err", err)
	return res, nil
}

// kickReconciliation refreshes the owner's balance in the background. The
// trade has already been accepted, so cancellation of the request context
// must not abort the refresh.
func (x *Executor) kickReconciliation(ctx context.Context, owner, token string, expectZero bool) {
	if x.reconciler == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		out, err := x.reconciler.Reconcile(bg, owner, token, balance.Options{ExpectZero: expectZero})
		if err != nil {
			x.log.Warn("post-trade reconciliation aborted", "owner", owner, "token", token, "err", err)
			return
		}
		x.log.Info("post-trade reconciliation finished", "owner", owner, "token", token, "state", string(out.State))
	}()
}

func (x *Executor) setPhase(p Phase) {
	x.mu.Lock()
	x.phase = p
	x.mu.Unlock()
}
