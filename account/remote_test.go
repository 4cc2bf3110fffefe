package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func newBridge(t *testing.T, handler http.HandlerFunc) *Remote {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	remote, err := NewRemote(RemoteConfig{
		BaseURL:   srv.URL,
		ProjectID: "proj-1",
		ClientKey: "key-1",
		AppID:     "app-1",
	})
	require.NoError(t, err)
	return remote
}

func TestRemoteQuoteForwardsProjectHeaders(t *testing.T) {
	remote := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quotes", r.URL.Path)
		require.Equal(t, "proj-1", r.Header.Get("X-Project-Id"))
		require.Equal(t, "key-1", r.Header.Get("X-Client-Key"))
		require.Equal(t, "app-1", r.Header.Get("X-App-Id"))

		var intent Intent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&intent))
		require.Equal(t, SideBuy, intent.Side)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"feeQuotes":[{"totals":{"feeTokenAmountInUSD":"1000000000000000000"}}]}`))
	})

	quotes, err := remote.Quote(context.Background(), Intent{Side: SideBuy, AmountUSD: "50"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	require.Equal(t, "1000000000000000000", quotes[0].Totals.FeeTokenAmountInUSD)
}

func TestRemoteSignMessageRoundTrip(t *testing.T) {
	root := common.HexToHash("0xdeadbeef")
	remote := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/signatures", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, root.Hex(), body["rootHash"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signature":"0xsigned"}`))
	})

	sig, err := remote.SignMessage(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, "0xsigned", sig)
}

func TestRemoteSubmitSurfacesBridgeStatus(t *testing.T) {
	remote := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds", http.StatusUnprocessableEntity)
	})

	_, err := remote.Submit(context.Background(), &UnsignedTransaction{}, "0xsigned")
	require.Error(t, err)
	require.Contains(t, err.Error(), "422")
}
