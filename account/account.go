// Package account models the external account-abstraction SDK and the
// connected signer as capability interfaces. The service only orchestrates
// calls against these seams; building, signing, and broadcasting are the
// collaborators' business, which keeps the trade path testable against
// scripted fakes.
package account

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// Side distinguishes buy and sell intents.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TokenRef addresses a token on a specific chain.
type TokenRef struct {
	ChainID int64  `json:"chainId"`
	Address string `json:"address"`
}

// Intent is one prospective trade. AmountUSD carries the notional for buys;
// Amount carries the decimal token amount for sells. An intent exists only
// for the duration of a single quote or execution attempt.
type Intent struct {
	Side      Side     `json:"side"`
	Token     TokenRef `json:"token"`
	AmountUSD string   `json:"amountInUSD,omitempty"`
	Amount    string   `json:"amount,omitempty"`
}

// FeeTotals is the SDK's USD fee decomposition. Every field is an integer
// string in 18-decimal fixed point, the minor-unit convention of this
// ecosystem.
type FeeTotals struct {
	FeeTokenAmountInUSD                   string `json:"feeTokenAmountInUSD"`
	GasFeeTokenAmountInUSD                string `json:"gasFeeTokenAmountInUSD"`
	TransactionServiceFeeTokenAmountInUSD string `json:"transactionServiceFeeTokenAmountInUSD"`
	TransactionLPFeeTokenAmountInUSD      string `json:"transactionLPFeeTokenAmountInUSD"`
}

// FeeToken is one token the fee may be paid in.
type FeeToken struct {
	Symbol      string `json:"symbol"`
	Amount      string `json:"amount"`
	AmountInUSD string `json:"amountInUSD"`
}

// FeeQuote is one fee option returned with an unsigned transaction.
type FeeQuote struct {
	Totals         FeeTotals  `json:"totals"`
	FeeTokens      []FeeToken `json:"feeTokens"`
	FreeGasFee     bool       `json:"freeGasFee"`
	FreeServiceFee bool       `json:"freeServiceFee"`
}

// UnsignedTransaction is the SDK's built-but-unsigned trade. RootHash is the
// commitment the signer signs; Payload is the SDK's opaque blob, carried
// through to submission untouched.
type UnsignedTransaction struct {
	RootHash  common.Hash     `json:"rootHash"`
	FeeQuotes []FeeQuote      `json:"feeQuotes"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SubmitResult reports a broadcast acceptance.
type SubmitResult struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

// QuoteProvider prices a prospective trade without committing to it.
type QuoteProvider interface {
	Quote(ctx context.Context, intent Intent) ([]FeeQuote, error)
}

// TransactionBuilder constructs an unsigned transaction for an intent.
type TransactionBuilder interface {
	Build(ctx context.Context, intent Intent) (*UnsignedTransaction, error)
}

// Signer produces a signature over a root commitment hash. The concrete
// signer lives outside this system (a connected wallet); no key material is
// handled here.
type Signer interface {
	SignMessage(ctx context.Context, root common.Hash) (string, error)
}

// Broadcaster submits a built transaction with its signature.
type Broadcaster interface {
	Submit(ctx context.Context, tx *UnsignedTransaction, signature string) (*SubmitResult, error)
}

// SDK is the full account-abstraction surface a binding provides.
type SDK interface {
	QuoteProvider
	TransactionBuilder
	Broadcaster
}
