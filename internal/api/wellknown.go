package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/jeton.json.
const wellKnownManifest = `{
  "name": "Jeton",
  "description": "Points-metered gateway for AI functions",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization"
  },
  "endpoints": {
    "functions": "/api/v1/functions",
    "invoke": "/api/v1/ai/{function}",
    "points": "/api/v1/points",
    "transactions": "/api/v1/transactions",
    "usage": "/api/v1/usage"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static Jeton well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
