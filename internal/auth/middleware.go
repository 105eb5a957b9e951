package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey int

const accountContextKey contextKey = iota

// ContextWithAccount returns a new context carrying the given account.
func ContextWithAccount(ctx context.Context, acct *Account) context.Context {
	return context.WithValue(ctx, accountContextKey, acct)
}

// AccountFromContext extracts the account from the context, or nil if not present.
func AccountFromContext(ctx context.Context) *Account {
	acct, _ := ctx.Value(accountContextKey).(*Account)
	return acct
}

// UserAuthMiddleware returns middleware that authenticates requests using an
// API key in the Authorization header. On success the account is injected
// into the request context.
func UserAuthMiddleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				svc.observe("user", false)
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			acct, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAccount(r.Context(), acct)))
		})
	}
}

// AdminAuthMiddleware returns middleware that requires a bearer token
// matching the bcrypt adminKeyHash. An empty hash disables admin access.
func AdminAuthMiddleware(svc *Service, adminKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKeyHash == "" {
				writeForbidden(w, "admin access is not configured")
				return
			}
			token := extractBearerToken(r)
			if token == "" {
				svc.observe("admin", false)
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}
			if !CheckAdminKey(adminKeyHash, token) {
				svc.observe("admin", false)
				writeUnauthorized(w, "invalid admin key")
				return
			}
			svc.observe("admin", true)
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusForbidden, "forbidden", message)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{Code: code, Message: message},
	})
}
