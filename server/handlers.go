package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tokendesk/account"
	"tokendesk/balance"
	"tokendesk/marketdata"
	"tokendesk/trade"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requireAddress enforces the address parameter before anything touches the
// upstream provider.
func (s *Server) requireAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return "", false
	}
	return address, true
}

// requireProvider fails closed when no API key is configured; proxying
// unauthenticated calls upstream would just surface confusing 401s.
func (s *Server) requireProvider(w http.ResponseWriter) bool {
	if !s.cfg.ProviderConfigured {
		writeError(w, http.StatusInternalServerError, "API key not configured")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireAddress(w, r)
	if !ok {
		return
	}
	if !s.requireProvider(w) {
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		rows, err := s.markets.Balances(r.Context(), owner, "")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch balances")
			return
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}

	row, err := s.markets.FetchBalance(r.Context(), owner, token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch balance")
		return
	}
	if row == nil {
		// No holding is a zero balance, not an error.
		row = &balance.Formatted{TokenAddress: token, Decimals: 18, Amount: "0", AmountRaw: "0"}
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	address, ok := s.requireAddress(w, r)
	if !ok {
		return
	}
	if !s.requireProvider(w) {
		return
	}

	quote, err := s.markets.Metadata(r.Context(), address)
	if err != nil {
		var se *marketdata.StatusError
		if errors.As(err, &se) {
			writeError(w, se.Code, se.Message)
			return
		}
		writeError(w, marketdata.StatusOf(err), "failed to fetch token metadata")
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// handlePrice never reports upstream failure; price absence renders as zero.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	address, ok := s.requireAddress(w, r)
	if !ok {
		return
	}
	if !s.requireProvider(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"usdPrice": s.markets.Price(r.Context(), address)})
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	address, ok := s.requireAddress(w, r)
	if !ok {
		return
	}
	if !s.requireProvider(w) {
		return
	}

	series, err := s.markets.PriceHistory(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build price history")
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	if !s.requireProvider(w) {
		return
	}

	limit := s.cfg.TrendingLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	tokens, err := s.markets.Trending(r.Context(), limit)
	if err != nil {
		var se *marketdata.StatusError
		if errors.As(err, &se) {
			writeError(w, se.Code, se.Message)
			return
		}
		writeError(w, marketdata.StatusOf(err), "failed to fetch trending tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

type estimateRequest struct {
	Side         string `json:"side"`
	TokenAddress string `json:"tokenAddress"`
	AmountUSD    string `json:"amountInUSD,omitempty"`
	Amount       string `json:"amount,omitempty"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if s.estimator == nil {
		writeError(w, http.StatusServiceUnavailable, "trading is not configured")
		return
	}

	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side := account.Side(strings.ToLower(req.Side))
	if side != account.SideBuy && side != account.SideSell {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	if req.TokenAddress == "" {
		writeError(w, http.StatusBadRequest, "tokenAddress is required")
		return
	}

	est, err := s.estimator.Estimate(r.Context(), account.Intent{
		Side:      side,
		Token:     account.TokenRef{ChainID: s.cfg.ChainID, Address: req.TokenAddress},
		AmountUSD: req.AmountUSD,
		Amount:    req.Amount,
	})
	switch {
	case errors.Is(err, trade.ErrSuperseded):
		writeError(w, http.StatusConflict, "estimate superseded by a newer request")
	case err != nil:
		// No estimate is a valid steady state, not an error banner.
		writeJSON(w, http.StatusOK, map[string]any{"estimate": nil})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"estimate": est})
	}
}

type executeRequest struct {
	Side         string  `json:"side"`
	Owner        string  `json:"owner"`
	TokenAddress string  `json:"tokenAddress"`
	AmountUSD    string  `json:"amountInUSD,omitempty"`
	Percentage   float64 `json:"percentage,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.executor == nil {
		writeError(w, http.StatusServiceUnavailable, "trading is not configured")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		res *trade.Result
		err error
	)
	switch strings.ToLower(req.Side) {
	case string(account.SideBuy):
		res, err = s.executor.Buy(r.Context(), trade.BuyParams{
			Owner:     req.Owner,
			Token:     req.TokenAddress,
			AmountUSD: req.AmountUSD,
		})
	case string(account.SideSell):
		res, err = s.executor.Sell(r.Context(), trade.SellParams{
			Owner:   req.Owner,
			Token:   req.TokenAddress,
			Percent: req.Percentage,
		})
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	switch {
	case errors.Is(err, trade.ErrBusy):
		writeError(w, http.StatusConflict, "a trade is already in progress")
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}
