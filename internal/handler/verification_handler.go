package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trust-service/internal/service"
)

// VerificationHandler handles HTTP requests for the verification
// lifecycle of phone numbers, identity documents and banking info.
type VerificationHandler struct {
	verifications *service.VerificationService
}

func NewVerificationHandler(verifications *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{verifications: verifications}
}

// RegisterRoutes registers all verification routes
func (h *VerificationHandler) RegisterRoutes(router chi.Router) {
	router.Route("/verification", func(r chi.Router) {
		r.Post("/phone/request", h.RequestPhoneCode)
		r.Post("/phone/submit", h.SubmitPhoneCode)
		r.Get("/phone/{userID}", h.PhoneStatus)
		r.Post("/phone/{userID}/unblock", h.UnblockPhone)

		r.Post("/identity", h.SubmitIdentity)
		r.Post("/identity/{artifactID}/review", h.ReviewIdentity)

		r.Post("/banking", h.SubmitBanking)
		r.Get("/banking/{userID}", h.ListBanking)
		r.Post("/banking/{artifactID}/review", h.ReviewBanking)
	})
}

type phoneRequestBody struct {
	UserID uuid.UUID `json:"user_id"`
	Phone  string    `json:"phone"`
}

// RequestPhoneCode issues a verification code
// @Summary Request a phone verification code
// @Tags verification
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Router /verification/phone/request [post]
func (h *VerificationHandler) RequestPhoneCode(w http.ResponseWriter, r *http.Request) {
	var req phoneRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	expiresAt, err := h.verifications.RequestPhoneCode(r.Context(), req.UserID, req.Phone)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to request verification code")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"expires_at": expiresAt,
	}, "Verification code sent"))
}

type phoneSubmitBody struct {
	UserID uuid.UUID `json:"user_id"`
	Code   string    `json:"code"`
}

// SubmitPhoneCode checks a candidate code
// @Summary Submit a phone verification code
// @Tags verification
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Router /verification/phone/submit [post]
func (h *VerificationHandler) SubmitPhoneCode(w http.ResponseWriter, r *http.Request) {
	var req phoneSubmitBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.verifications.SubmitPhoneCode(r.Context(), req.UserID, req.Code); err != nil {
		respondWithError(w, statusCode(err), err, "Verification failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"verified": true,
	}, "Phone verified"))
}

func (h *VerificationHandler) PhoneStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	status, err := h.verifications.PhoneStatus(r.Context(), userID)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to get phone status")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(status, "Phone status retrieved"))
}

type adminActionBody struct {
	AdminID uuid.UUID `json:"admin_id"`
}

func (h *VerificationHandler) UnblockPhone(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	var req adminActionBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.verifications.UnblockPhone(r.Context(), userID, req.AdminID); err != nil {
		respondWithError(w, statusCode(err), err, "Failed to unblock")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Verification unblocked"))
}

type identitySubmitBody struct {
	UserID         uuid.UUID `json:"user_id"`
	NationalNumber string    `json:"national_number"`
	FrontImageRef  string    `json:"front_image_ref"`
	BackImageRef   string    `json:"back_image_ref"`
}

func (h *VerificationHandler) SubmitIdentity(w http.ResponseWriter, r *http.Request) {
	var req identitySubmitBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	cred, err := h.verifications.SubmitIdentity(r.Context(), req.UserID,
		req.NationalNumber, req.FrontImageRef, req.BackImageRef)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to submit identity")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(cred, "Identity submitted for review"))
}

type reviewBody struct {
	Decision string    `json:"decision"`
	Reason   string    `json:"reason,omitempty"`
	AdminID  uuid.UUID `json:"admin_id"`
}

func (h *VerificationHandler) ReviewIdentity(w http.ResponseWriter, r *http.Request) {
	artifactID, err := uuid.Parse(chi.URLParam(r, "artifactID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid artifact ID format")
		return
	}

	var req reviewBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.verifications.ReviewIdentity(r.Context(), artifactID, req.Decision, req.Reason, req.AdminID); err != nil {
		respondWithError(w, statusCode(err), err, "Failed to review identity")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"status": req.Decision,
	}, "Identity review recorded"))
}

type bankingSubmitBody struct {
	UserID            uuid.UUID `json:"user_id"`
	CardNumber        string    `json:"card_number"`
	ShebaNumber       string    `json:"sheba_number"`
	AccountHolderName string    `json:"account_holder_name"`
	BankName          string    `json:"bank_name"`
}

func (h *VerificationHandler) SubmitBanking(w http.ResponseWriter, r *http.Request) {
	var req bankingSubmitBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	info, err := h.verifications.SubmitBanking(r.Context(), req.UserID,
		req.CardNumber, req.ShebaNumber, req.AccountHolderName, req.BankName)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to submit banking info")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(info, "Banking info submitted for review"))
}

func (h *VerificationHandler) ListBanking(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid user ID format")
		return
	}

	infos, err := h.verifications.ListBanking(r.Context(), userID)
	if err != nil {
		respondWithError(w, statusCode(err), err, "Failed to list banking info")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(infos, "Banking info retrieved"))
}

func (h *VerificationHandler) ReviewBanking(w http.ResponseWriter, r *http.Request) {
	artifactID, err := uuid.Parse(chi.URLParam(r, "artifactID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid artifact ID format")
		return
	}

	var req reviewBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.verifications.ReviewBanking(r.Context(), artifactID, req.Decision, req.Reason, req.AdminID); err != nil {
		respondWithError(w, statusCode(err), err, "Failed to review banking info")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"status": req.Decision,
	}, "Banking review recorded"))
}
