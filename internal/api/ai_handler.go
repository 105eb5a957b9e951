package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/jeton/internal/auth"
	"github.com/alecgard/jeton/internal/catalog"
	"github.com/alecgard/jeton/internal/dispatch"
	"github.com/alecgard/jeton/internal/processor"
)

// legacyInputKeys maps functions to the body key their dedicated endpoints
// used before the generic {"input": ...} form existed.
var legacyInputKeys = map[string]string{
	catalog.Chat:            "message",
	catalog.TextGeneration:  "prompt",
	catalog.CodeGeneration:  "requirements",
	catalog.DocumentSummary: "document",
}

// aiHandler exposes function invocation over HTTP.
type aiHandler struct {
	dispatcher *dispatch.Dispatcher
}

func newAIHandler(d *dispatch.Dispatcher) *aiHandler {
	return &aiHandler{dispatcher: d}
}

// Invoke handles POST /api/v1/ai/{function}.
func (h *aiHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	fn := chi.URLParam(r, "function")

	var body map[string]any
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be a JSON object")
		return
	}

	h.run(w, r, fn, inputFromBody(fn, body))
}

// PlanMovieClip handles POST /api/v1/ai/movie-clip/plan.
func (h *aiHandler) PlanMovieClip(w http.ResponseWriter, r *http.Request) {
	var req processor.MovieClipRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	input, err := req.Encode()
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("%w: %v", processor.ErrInvalidInput, err))
		return
	}

	h.run(w, r, catalog.MovieClip, input)
}

func (h *aiHandler) run(w http.ResponseWriter, r *http.Request, fn, input string) {
	acct := auth.AccountFromContext(r.Context())
	if acct == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	res, err := h.dispatcher.Invoke(r.Context(), acct.ID, fn, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// inputFromBody returns the "input" field, falling back to the function's
// legacy key. Non-string values count as missing.
func inputFromBody(fn string, body map[string]any) string {
	if s, ok := body["input"].(string); ok {
		return s
	}
	if key, ok := legacyInputKeys[fn]; ok {
		if s, ok := body[key].(string); ok {
			return s
		}
	}
	return ""
}
