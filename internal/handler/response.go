package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"trust-service/internal/gateway"
	"trust-service/internal/service"
	"trust-service/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("failed to encode response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// statusCode maps service errors onto HTTP statuses. Precondition
// failures stay in the 4xx range so callers can render them; integrity
// failures are 500s.
func statusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyVerified),
		errors.Is(err, service.ErrReviewPending),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyFinal):
		return http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrLocked),
		errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusLocked
	case errors.Is(err, service.ErrNoCodeRequested),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrCodeMismatch),
		errors.Is(err, service.ErrRejectionReasonRequired),
		errors.Is(err, util.ErrInvalidPhoneNumber):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrNoVerifiedBankingInfo),
		errors.Is(err, service.ErrBelowMinimum):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrDeliveryFailed),
		errors.Is(err, gateway.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
