package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"sentra.org/internal/auth"
	"sentra.org/internal/ledger"
)

type depositRequest struct {
	ToUser string `json:"to_user"`
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

type transferRequest struct {
	ToUser string `json:"to_user"`
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

type transactionsResponse struct {
	Items []ledger.Transaction `json:"items"`
	AsOf  time.Time            `json:"as_of"`
}

func (a *API) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.requirePermission(r.Context(), auth.PermLedgerDeposit); err != nil {
		handleAuthError(w, r, err)
		return
	}
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := a.ledger.Deposit(r.Context(), strings.TrimSpace(req.ToUser), req.Amount, req.Note)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// handleTransfer always debits the authenticated user. The source account
// is taken from the verified claims, never from the request body.
func (a *API) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.requirePermission(r.Context(), auth.PermLedgerTransfer); err != nil {
		handleAuthError(w, r, err)
		return
	}
	claims, _ := auth.ClaimsFromContext(r.Context())

	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := a.ledger.Transfer(r.Context(), claims.Username, strings.TrimSpace(req.ToUser), req.Amount, req.Note)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/ledger/balance/"), "/")
	if user == "" || strings.Contains(user, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	// Reading someone else's balance needs the wider permission.
	perm := auth.PermReadSelf
	if user != claims.Username {
		perm = auth.PermReadAny
	}
	if err := a.requirePermission(r.Context(), perm); err != nil {
		handleAuthError(w, r, err)
		return
	}

	bal, err := a.ledger.Balance(r.Context(), user)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"balance": bal,
	})
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.requirePermission(r.Context(), auth.PermReadAny); err != nil {
		handleAuthError(w, r, err)
		return
	}
	items, err := a.ledger.Transactions(r.Context())
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func handleLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidUser), errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrSameUser):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
