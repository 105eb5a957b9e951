package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alecgard/jeton/internal/auth"
	"github.com/alecgard/jeton/internal/cursor"
	"github.com/alecgard/jeton/internal/ledger"
)

// pointsHandler groups balance and transaction history handlers.
type pointsHandler struct {
	ledger *ledger.Ledger
}

func newPointsHandler(l *ledger.Ledger) *pointsHandler {
	return &pointsHandler{ledger: l}
}

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// GetBalance handles GET /api/v1/points.
func (h *pointsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acct := auth.AccountFromContext(r.Context())
	bal, err := h.ledger.Balance(r.Context(), acct.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{UserID: acct.ID, Balance: bal})
}

type transactionsResponse struct {
	Transactions []*ledger.Transaction `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

// ListTransactions handles GET /api/v1/transactions.
func (h *pointsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	acct := auth.AccountFromContext(r.Context())
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid query parameters: "+err.Error())
		return
	}

	q := ledger.TransactionQuery{
		UserID: acct.ID,
		Type:   ledger.TxType(r.URL.Query().Get("type")),
		From:   page.from,
		To:     page.to,
		Cursor: page.cursor,
		Limit:  page.limit,
	}
	txns, next, err := h.ledger.History(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if txns == nil {
		txns = []*ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, transactionsResponse{Transactions: txns, NextCursor: next})
}

type totalsResponse struct {
	Totals map[ledger.TxType]int64 `json:"totals"`
}

// GetTotals handles GET /api/v1/transactions/totals.
func (h *pointsHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	acct := auth.AccountFromContext(r.Context())
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid query parameters: "+err.Error())
		return
	}

	totals, err := h.ledger.Totals(r.Context(), acct.ID, page.from, page.to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totalsResponse{Totals: totals})
}

// pageParams holds the shared range and pagination query parameters.
type pageParams struct {
	from, to time.Time
	cursor   string
	limit    int
}

func parsePage(r *http.Request) (pageParams, error) {
	var p pageParams
	var err error
	query := r.URL.Query()

	if p.from, err = parseTimeParam(query.Get("from"), false); err != nil {
		return p, errors.New("from must be YYYY-MM-DD or RFC3339")
	}
	if p.to, err = parseTimeParam(query.Get("to"), true); err != nil {
		return p, errors.New("to must be YYYY-MM-DD or RFC3339")
	}
	if !p.from.IsZero() && !p.to.IsZero() && p.to.Before(p.from) {
		return p, errors.New("to is before from")
	}

	if c := query.Get("cursor"); c != "" {
		if _, _, err := cursor.Decode(c); err != nil {
			return p, errors.New("malformed cursor")
		}
		p.cursor = c
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			return p, errors.New("limit must be a positive integer")
		}
		p.limit = l
	}
	return p, nil
}

// parseTimeParam parses a date query param in YYYY-MM-DD or RFC3339 format.
// Range bounds are inclusive, so with endOfDay a bare date means the last
// instant of that day rather than its midnight.
func parseTimeParam(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
