package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/jeton/internal/auth"
	"github.com/alecgard/jeton/internal/ledger"
	"github.com/alecgard/jeton/internal/user"
)

// usersHandler groups user registration and admin crediting.
type usersHandler struct {
	users  *user.Service
	ledger *ledger.Ledger
}

func newUsersHandler(users *user.Service, l *ledger.Ledger) *usersHandler {
	return &usersHandler{users: users, ledger: l}
}

// CreateUser handles POST /api/v1/admin/users. The plaintext API key is
// returned once and never stored.
func (h *usersHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in user.CreateUserInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	reg, err := h.users.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	adminLog(r, "user.create", "user", reg.User.ID, "email", reg.User.Email)
	writeJSON(w, http.StatusCreated, reg)
}

// ListUsers handles GET /api/v1/admin/users.
func (h *usersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []*user.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type userView struct {
	*user.User
	Balance int64 `json:"balance"`
}

// GetUser handles GET /api/v1/admin/users/{id}.
func (h *usersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	bal, err := h.ledger.Balance(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView{User: u, Balance: bal})
}

// GetSelf handles GET /api/v1/me.
func (h *usersHandler) GetSelf(w http.ResponseWriter, r *http.Request) {
	acct := auth.AccountFromContext(r.Context())
	u, err := h.users.Get(r.Context(), acct.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	bal, err := h.ledger.Balance(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView{User: u, Balance: bal})
}

type creditRequest struct {
	Amount int64         `json:"amount"`
	Type   ledger.TxType `json:"type"`
	Reason string        `json:"reason"`
}

type creditResponse struct {
	UserID  string        `json:"user_id"`
	Type    ledger.TxType `json:"type"`
	Amount  int64         `json:"amount"`
	Balance int64         `json:"balance"`
}

// Credit handles POST /api/v1/admin/users/{id}/credit. Type defaults to
// RECHARGE; BONUS and REFUND are also accepted.
func (h *usersHandler) Credit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req creditRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Type == "" {
		req.Type = ledger.Recharge
	}
	if req.Reason == "" {
		req.Reason = "admin " + string(req.Type)
	}

	bal, err := h.ledger.Credit(r.Context(), id, req.Amount, req.Reason, req.Type)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	adminLog(r, "points.credit", "user", id, "type", req.Type, "amount", req.Amount)
	writeJSON(w, http.StatusOK, creditResponse{UserID: id, Type: req.Type, Amount: req.Amount, Balance: bal})
}
