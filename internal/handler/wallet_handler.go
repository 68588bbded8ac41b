package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trust-service/internal/service"
)

// WalletHandler handles HTTP requests for the ledger and the withdrawal
// workflow.
type WalletHandler struct {
	wallets *service.WalletService
}

func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// RegisterRoutes registers all wallet routes
func (h *WalletHandler) RegisterRoutes(router chi.Router) {
	router.Route("/wallet", func(r chi.Router) {
		r.Get("/{userID}/balance", h.Balance)
		r.Get("/{userID}/transactions", h.ListTransactions)
		r.Get("/{userID}/withdrawals", h.ListWithdrawals)

		r.Post("/withdraw", h.CreateWithdrawal)
		r.Post("/withdraw/{requestID}/decide", h.DecideWithdrawal)
		r.Post("/{walletID}/transactions/{txID}/decide", h.DecideTransaction)
	})
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	wallet, err := h.wallets.Balance(r.Context(), userID)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to get balance")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(wallet, "Balance retrieved"))
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	txs, err := h.wallets.ListTransactions(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to list transactions")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(txs, "Transactions retrieved"))
}

func (h *WalletHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	reqs, err := h.wallets.ListWithdrawals(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to list withdrawals")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(reqs, "Withdrawals retrieved"))
}

type withdrawBody struct {
	UserID uuid.UUID `json:"user_id"`
	Amount int64     `json:"amount"`
}

// CreateWithdrawal opens a pending withdrawal request
// @Summary Request a withdrawal
// @Tags wallet
// @Accept json
// @Produce json
// @Success 201 {object} Response
// @Router /wallet/withdraw [post]
func (h *WalletHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	request, err := h.wallets.CreateWithdrawal(r.Context(), req.UserID, req.Amount)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to create withdrawal")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(request, "Withdrawal request created"))
}

func (h *WalletHandler) DecideWithdrawal(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request ID format")
		return
	}

	var req reviewBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	request, err := h.wallets.DecideWithdrawal(r.Context(), requestID, req.Decision, req.Reason, req.AdminID)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to decide withdrawal")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(request, "Withdrawal decision recorded"))
}

func (h *WalletHandler) DecideTransaction(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuid.Parse(chi.URLParam(r, "walletID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid wallet ID format")
		return
	}
	txID, err := uuid.Parse(chi.URLParam(r, "txID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid transaction ID format")
		return
	}

	var req reviewBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.wallets.DecideTransaction(r.Context(), walletID, txID, req.Decision, req.AdminID); err != nil {
		respondWithError(w, statusCode(err), err, "Failed to decide transaction")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"status": req.Decision,
	}, "Transaction decision recorded"))
}
