package api

import (
	"net/http"
	"time"

	"github.com/alecgard/jeton/internal/audit"
	"github.com/alecgard/jeton/internal/auth"
)

// usageHandler serves a user's audit trail.
type usageHandler struct {
	reader audit.Reader
}

func newUsageHandler(reader audit.Reader) *usageHandler {
	return &usageHandler{reader: reader}
}

type usageResponse struct {
	Records    []*audit.UsageRecord `json:"records"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// ListUsage handles GET /api/v1/usage.
func (h *usageHandler) ListUsage(w http.ResponseWriter, r *http.Request) {
	acct := auth.AccountFromContext(r.Context())
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid query parameters: "+err.Error())
		return
	}

	status := audit.Status(r.URL.Query().Get("status"))
	switch status {
	case "", audit.StatusSuccess, audit.StatusFailed, audit.StatusProcessing:
	default:
		writeError(w, http.StatusBadRequest, "invalid_params", "status must be SUCCESS, FAILED or PROCESSING")
		return
	}

	recs, next, err := h.reader.ListUsage(r.Context(), audit.UsageQuery{
		UserID:   acct.ID,
		Function: r.URL.Query().Get("function"),
		Status:   status,
		From:     page.from,
		To:       page.to,
		Cursor:   page.cursor,
		Limit:    page.limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*audit.UsageRecord{}
	}
	writeJSON(w, http.StatusOK, usageResponse{Records: recs, NextCursor: next})
}

type usageStatsResponse struct {
	Functions      []audit.FunctionStats `json:"functions"`
	PointsConsumed int64                 `json:"points_consumed"`
	From           *time.Time            `json:"from,omitempty"`
	To             *time.Time            `json:"to,omitempty"`
}

// GetStats handles GET /api/v1/usage/stats. The per-function breakdown
// covers all time; points_consumed honors from and to.
func (h *usageHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	acct := auth.AccountFromContext(r.Context())
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid query parameters: "+err.Error())
		return
	}

	stats, err := h.reader.Stats(r.Context(), acct.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	consumed, err := h.reader.PointsConsumed(r.Context(), acct.ID, page.from, page.to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := usageStatsResponse{Functions: stats, PointsConsumed: consumed}
	if resp.Functions == nil {
		resp.Functions = []audit.FunctionStats{}
	}
	if !page.from.IsZero() {
		resp.From = &page.from
	}
	if !page.to.IsZero() {
		resp.To = &page.to
	}
	writeJSON(w, http.StatusOK, resp)
}
