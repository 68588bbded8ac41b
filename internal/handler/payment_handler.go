package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trust-service/internal/service"
)

var errInvalidAmount = errors.New("amount must be positive")

// PaymentHandler handles HTTP requests for gateway payments.
type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// RegisterRoutes registers all payment routes
func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Route("/payment", func(r chi.Router) {
		r.Post("/request", h.RequestPayment)
		r.Post("/callback", h.Callback)
		r.Get("/{paymentID}", h.GetPayment)
	})
}

type paymentRequestBody struct {
	UserID      uuid.UUID `json:"user_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
}

// RequestPayment opens a gateway checkout session
// @Summary Request a payment session
// @Tags payment
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Router /payment/request [post]
func (h *PaymentHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Amount <= 0 {
		respondWithError(w, http.StatusBadRequest, errInvalidAmount, "Amount must be positive")
		return
	}

	intent, err := h.payments.RequestPayment(r.Context(), req.UserID, req.Amount, req.Description)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to request payment")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"payment_id":   intent.Payment.ID,
		"redirect_url": intent.RedirectURL,
		"duplicate":    intent.Duplicate,
	}, "Payment session ready"))
}

type callbackBody struct {
	Authority string `json:"authority"`
	Status    string `json:"status"`
}

// Callback reconciles a gateway callback; replays are acknowledged
// without effect.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	payment, err := h.payments.ReconcileCallback(r.Context(), req.Authority, req.Status)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to reconcile payment")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"status": payment.Status,
	}, "Payment reconciled"))
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid payment ID format")
		return
	}

	payment, err := h.payments.GetPayment(r.Context(), paymentID)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to get payment")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(payment, "Payment retrieved"))
}
