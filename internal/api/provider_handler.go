package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/alecgard/jeton/internal/provider"
)

// providerHandler reads and switches the active AI provider.
type providerHandler struct {
	switcher *provider.Switcher
}

func newProviderHandler(s *provider.Switcher) *providerHandler {
	return &providerHandler{switcher: s}
}

type providerResponse struct {
	Current   string   `json:"current"`
	Available []string `json:"available"`
}

// GetProvider handles GET /api/v1/provider.
func (h *providerHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providerResponse{
		Current:   h.switcher.CurrentProvider(),
		Available: h.switcher.Names(),
	})
}

type switchProviderRequest struct {
	Provider string `json:"provider"`
}

// SwitchProvider handles POST /api/v1/admin/provider.
func (h *providerHandler) SwitchProvider(w http.ResponseWriter, r *http.Request) {
	var req switchProviderRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Provider) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "provider is required")
		return
	}

	previous := h.switcher.CurrentProvider()
	if err := h.switcher.SwitchProvider(req.Provider); err != nil {
		if errors.Is(err, provider.ErrUnknownProvider) {
			writeError(w, http.StatusBadRequest, "unknown_provider", err.Error())
			return
		}
		writeServiceError(w, r, err)
		return
	}

	adminLog(r, "provider.switch", "provider", h.switcher.CurrentProvider(), "previous", previous)
	writeJSON(w, http.StatusOK, providerResponse{
		Current:   h.switcher.CurrentProvider(),
		Available: h.switcher.Names(),
	})
}
