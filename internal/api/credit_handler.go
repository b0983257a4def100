package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/storyforge/storyforge-api/internal/service"
)

// CreditHandler handles credit balance and ledger queries.
type CreditHandler struct {
	tasks     *service.TaskService
	validator *validator.Validate
}

// NewCreditHandler creates a new CreditHandler with the given dependencies.
func NewCreditHandler(tasks *service.TaskService) *CreditHandler {
	return &CreditHandler{
		tasks:     tasks,
		validator: validator.New(),
	}
}

// Balance handles GET /credits/balance.
func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := getAccountIDFromContext(r)
	if !ok {
		RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	balance, err := h.tasks.Balance(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, BalanceResponse{Balance: balance})
}

// Transactions handles GET /credits/transactions.
func (h *CreditHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := getAccountIDFromContext(r)
	if !ok {
		RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := queryInt(r, "limit", 50)

	txns, err := h.tasks.LedgerHistory(r.Context(), accountID, limit)
	if err != nil {
		slog.Error("failed to list transactions", "error", err, "account_id", accountID)
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	RespondWithJSON(w, r, http.StatusOK, NewTransactionListResponse(txns))
}

// Purchase handles POST /credits/purchase. Payment capture is upstream;
// this endpoint records the purchased credits.
func (h *CreditHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	accountID, ok := getAccountIDFromContext(r)
	if !ok {
		RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req PurchaseRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	description := req.Description
	if description == "" {
		description = "credit purchase"
	}

	if _, err := h.tasks.PurchaseCredits(r.Context(), accountID, req.Amount, description); err != nil {
		respondServiceError(w, r, err)
		return
	}

	balance, err := h.tasks.Balance(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, BalanceResponse{Balance: balance})
}
