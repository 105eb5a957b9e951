package api

import (
	"net/http"

	"github.com/alecgard/jeton/internal/catalog"
)

// Availability reports whether a function can currently be invoked.
type Availability interface {
	IsAvailable(name string) bool
}

// functionsHandler serves the public function catalogue.
type functionsHandler struct {
	catalog   *catalog.Catalog
	available Availability
}

func newFunctionsHandler(cat *catalog.Catalog, available Availability) *functionsHandler {
	return &functionsHandler{catalog: cat, available: available}
}

type functionView struct {
	catalog.FunctionConfig
	Available bool `json:"available"`
}

// ListFunctions handles GET /api/v1/functions.
func (h *functionsHandler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	all := h.catalog.All()
	out := make([]functionView, 0, len(all))
	for _, name := range h.catalog.Names() {
		out = append(out, functionView{
			FunctionConfig: all[name],
			Available:      h.available.IsAvailable(name),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"functions": out})
}

// GetPoints handles GET /api/v1/functions/points.
func (h *functionsHandler) GetPoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"points": h.catalog.Points()})
}

// GetCategories handles GET /api/v1/functions/categories.
func (h *functionsHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": h.catalog.ByCategory()})
}
