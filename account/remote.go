package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

// RemoteConfig points at an account-abstraction bridge: the deployment-side
// service that holds the wallet session and fronts the SDK. Project
// identifiers are forwarded on every call.
type RemoteConfig struct {
	BaseURL   string
	ProjectID string
	ClientKey string
	AppID     string
	Timeout   time.Duration
}

// Remote implements SDK and Signer against a bridge over HTTP.
type Remote struct {
	http *resty.Client
}

// NewRemote validates the config and returns a bridge-backed binding.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("account: bridge base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("X-Project-Id", cfg.ProjectID).
		SetHeader("X-Client-Key", cfg.ClientKey).
		SetHeader("X-App-Id", cfg.AppID)
	return &Remote{http: client}, nil
}

func bridgeError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("account: %s: %w", op, err)
	}
	return fmt.Errorf("account: %s: bridge status %d: %s", op, resp.StatusCode(), strings.TrimSpace(resp.String()))
}

// Quote prices an intent without building it.
func (r *Remote) Quote(ctx context.Context, intent Intent) ([]FeeQuote, error) {
	var out struct {
		FeeQuotes []FeeQuote `json:"feeQuotes"`
	}
	resp, err := r.http.R().
		SetContext(ctx).
		SetBody(intent).
		SetResult(&out).
		Post("/quotes")
	if err != nil || resp.IsError() {
		return nil, bridgeError("quote", resp, err)
	}
	return out.FeeQuotes, nil
}

// Build constructs an unsigned transaction for the intent.
func (r *Remote) Build(ctx context.Context, intent Intent) (*UnsignedTransaction, error) {
	var out UnsignedTransaction
	resp, err := r.http.R().
		SetContext(ctx).
		SetBody(intent).
		SetResult(&out).
		Post("/transactions")
	if err != nil || resp.IsError() {
		return nil, bridgeError("build", resp, err)
	}
	return &out, nil
}

// SignMessage asks the bridge's connected signer for a signature over the
// root commitment. The signer may refuse; that is a normal terminal outcome
// for the attempt, not a bridge fault.
func (r *Remote) SignMessage(ctx context.Context, root common.Hash) (string, error) {
	var out struct {
		Signature string `json:"signature"`
	}
	resp, err := r.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"rootHash": root.Hex()}).
		SetResult(&out).
		Post("/signatures")
	if err != nil || resp.IsError() {
		return "", bridgeError("sign", resp, err)
	}
	if out.Signature == "" {
		return "", errors.New("account: sign: bridge returned an empty signature")
	}
	return out.Signature, nil
}

// Submit broadcasts a built transaction with its signature.
func (r *Remote) Submit(ctx context.Context, tx *UnsignedTransaction, signature string) (*SubmitResult, error) {
	var out SubmitResult
	resp, err := r.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"rootHash":  tx.RootHash.Hex(),
			"payload":   tx.Payload,
			"signature": signature,
		}).
		SetResult(&out).
		Post("/submissions")
	if err != nil || resp.IsError() {
		return nil, bridgeError("submit", resp, err)
	}
	if out.TransactionID == "" {
		return nil, errors.New("account: submit: bridge returned no transaction id")
	}
	return &out, nil
}
