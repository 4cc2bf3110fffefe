package trade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"tokendesk/account"
	"tokendesk/balance"
)

const (
	testOwner = "0x1111111111111111111111111111111111111111"
	testToken = "0x2222222222222222222222222222222222222222"
)

type fakeSDK struct {
	buildErr  error
	submitErr error

	mu        sync.Mutex
	built     []account.Intent
	submitSig string
}

func (f *fakeSDK) Quote(ctx context.Context, intent account.Intent) ([]account.FeeQuote, error) {
	return nil, errors.New("not used")
}

func (f *fakeSDK) Build(ctx context.Context, intent account.Intent) (*account.UnsignedTransaction, error) {
	f.mu.Lock()
	f.built = append(f.built, intent)
	f.mu.Unlock()
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &account.UnsignedTransaction{RootHash: common.HexToHash("0xabc")}, nil
}

func (f *fakeSDK) Submit(ctx context.Context, tx *account.UnsignedTransaction, sig string) (*account.SubmitResult, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.mu.Lock()
	f.submitSig = sig
	f.mu.Unlock()
	return &account.SubmitResult{TransactionID: "tx-1", Status: "PENDING"}, nil
}

func (f *fakeSDK) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

func (f *fakeSDK) lastIntent() account.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built[len(f.built)-1]
}

type signerFunc func(ctx context.Context, root common.Hash) (string, error)

func (f signerFunc) SignMessage(ctx context.Context, root common.Hash) (string, error) {
	return f(ctx, root)
}

func okSigner() signerFunc {
	return func(ctx context.Context, root common.Hash) (string, error) { return "0xsigned", nil }
}

type balanceFunc func(ctx context.Context, owner, token string) (*balance.Formatted, error)

func (f balanceFunc) FetchBalance(ctx context.Context, owner, token string) (*balance.Formatted, error) {
	return f(ctx, owner, token)
}

func heldBalance(amount, raw string, decimals int) balanceFunc {
	return func(ctx context.Context, owner, token string) (*balance.Formatted, error) {
		return &balance.Formatted{
			TokenAddress: token,
			Decimals:     decimals,
			Amount:       amount,
			AmountRaw:    raw,
		}, nil
	}
}

func newTestExecutor(t *testing.T, sdk *fakeSDK, signer account.Signer, bal balance.Source) *Executor {
	t.Helper()
	x, err := NewExecutor(ExecutorConfig{
		SDK:           sdk,
		Signer:        signer,
		Balances:      bal,
		ChainID:       143,
		ExplorerTxURL: "https://example.test/tx/",
	})
	require.NoError(t, err)
	return x
}

func TestBuySubmitsAndBuildsExplorerURL(t *testing.T) {
	sdk := &fakeSDK{}
	x := newTestExecutor(t, sdk, okSigner(), heldBalance("0", "0", 18))

	res, err := x.Buy(context.Background(), BuyParams{Owner: testOwner, Token: testToken, AmountUSD: "50"})
	require.NoError(t, err)
	require.Equal(t, PhaseSubmitted, res.Phase)
	require.Equal(t, "tx-1", res.TransactionID)
	require.Equal(t, "https://example.test/tx/tx-1", res.ExplorerURL)
	require.NotEmpty(t, res.ID)
	require.Equal(t, PhaseIdle, x.Phase())

	intent := sdk.lastIntent()
	require.Equal(t, account.SideBuy, intent.Side)
	require.Equal(t, int64(143), intent.Token.ChainID)
	require.Equal(t, "50", intent.AmountUSD)
	require.Equal(t, "0xsigned", sdk.submitSig)
}

func TestBadAddressRejectedBeforeAnyCall(t *testing.T) {
	sdk := &fakeSDK{}
	x := newTestExecutor(t, sdk, okSigner(), heldBalance("0", "0", 18))

	_, err := x.Buy(context.Background(), BuyParams{Owner: "bob", Token: testToken, AmountUSD: "10"})
	require.ErrorIs(t, err, ErrBadAddress)

	_, err = x.Sell(context.Background(), SellParams{Owner: testOwner, Token: "not-hex", Percent: 50})
	require.ErrorIs(t, err, ErrBadAddress)

	require.Zero(t, sdk.buildCount())
	require.Equal(t, PhaseIdle, x.Phase())
}

func TestSellSizesAmountFromHeldBalance(t *testing.T) {
	sdk := &fakeSDK{}
	x := newTestExecutor(t, sdk, okSigner(), heldBalance("100.00", "10000", 2))

	res, err := x.Sell(context.Background(), SellParams{Owner: testOwner, Token: testToken, Percent: 25})
	require.NoError(t, err)
	require.Equal(t, PhaseSubmitted, res.Phase)

	intent := sdk.lastIntent()
	require.Equal(t, account.SideSell, intent.Side)
	require.Equal(t, "25.00", intent.Amount)
}

func TestSellPercentBounds(t *testing.T) {
	sdk := &fakeSDK{}
	x := newTestExecutor(t, sdk, okSigner(), heldBalance("100.00", "10000", 2))

	for _, pct := range []float64{0, -5, 100.5} {
		_, err := x.Sell(context.Background(), SellParams{Owner: testOwner, Token: testToken, Percent: pct})
		require.Error(t, err, "percent %v", pct)
	}
	require.Zero(t, sdk.buildCount())
}

func TestBuildFailureYieldsFailedResultAndResets(t *testing.T) {
	sdk := &fakeSDK{buildErr: errors.New("sdk offline")}
	x := newTestExecutor(t, sdk, okSigner(), heldBalance("0", "0", 18))

	res, err := x.Buy(context.Background(), BuyParams{Owner: testOwner, Token: testToken, AmountUSD: "10"})
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, res.Phase)
	require.Contains(t, res.Error, "build transaction")
	require.Empty(t, res.TransactionID)
	require.Equal(t, PhaseIdle, x.Phase())
}

func TestSignRejectionYieldsFailedResultAndResets(t *testing.T) {
	sdk := &fakeSDK{}
	rejecting := signerFunc(func(ctx context.Context, root common.Hash) (string, error) {
		return "", errors.New("user rejected")
	})
	x := newTestExecutor(t, sdk, rejecting, heldBalance("0", "0", 18))

	res, err := x.Buy(context.Background(), BuyParams{Owner: testOwner, Token: testToken, AmountUSD: "10"})
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, res.Phase)
	require.Contains(t, res.Error, "sign root hash")
	require.Equal(t, PhaseIdle, x.Phase())
}

func TestSecondAttemptWhileBusyIsRefused(t *testing.T) {
	sdk := &fakeSDK{}
	signing := make(chan struct{})
	release := make(chan struct{})
	slow := signerFunc(func(ctx context.Context, root common.Hash) (string, error) {
		close(signing)
		<-release
		return "0xsigned", nil
	})
	x := newTestExecutor(t, sdk, slow, heldBalance("0", "0", 18))

	done := make(chan *Result, 1)
	go func() {
		res, err := x.Buy(context.Background(), BuyParams{Owner: testOwner, Token: testToken, AmountUSD: "10"})
		require.NoError(t, err)
		done <- res
	}()
	<-signing
	require.Equal(t, PhaseAwaitingSignature, x.Phase())

	_, err := x.Buy(context.Background(), BuyParams{Owner: testOwner, Token: testToken, AmountUSD: "10"})
	require.ErrorIs(t, err, ErrBusy)

	close(release)
	res := <-done
	require.Equal(t, PhaseSubmitted, res.Phase)
	require.Equal(t, PhaseIdle, x.Phase())
}

// Selling the whole position switches the follow-up reconciliation to the
// expect-zero budget, which keeps polling past an initially stale balance.
func TestFullSellReconciliationWaitsForZero(t *testing.T) {
	sdk := &fakeSDK{}

	var mu sync.Mutex
	fetches := 0
	source := balanceFunc(func(ctx context.Context, owner, token string) (*balance.Formatted, error) {
		mu.Lock()
		defer mu.Unlock()
		fetches++
		if fetches < 3 {
			return &balance.Formatted{Amount: "5", AmountRaw: "5", Decimals: 0}, nil
		}
		return &balance.Formatted{Amount: "0", AmountRaw: "0", Decimals: 0}, nil
	})
	rec, err := balance.NewReconciler(source, time.Millisecond, 3, 12, nil, nil)
	require.NoError(t, err)

	x, err := NewExecutor(ExecutorConfig{
		SDK:        sdk,
		Signer:     okSigner(),
		Balances:   heldBalance("100", "100", 0),
		Reconciler: rec,
		ChainID:    143,
	})
	require.NoError(t, err)

	res, err := x.Sell(context.Background(), SellParams{Owner: testOwner, Token: testToken, Percent: 100})
	require.NoError(t, err)
	require.Equal(t, PhaseSubmitted, res.Phase)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fetches == 3
	}, 2*time.Second, 5*time.Millisecond, "reconciler should poll until the balance reads zero")
}
