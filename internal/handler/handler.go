package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/credlend/credit-service/internal/models"
	"github.com/credlend/credit-service/internal/service"
	"github.com/gorilla/mux"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

type applyLoanRequest struct {
	Amount           int64 `json:"amount"`
	CollateralAmount int64 `json:"collateral_amount"`
	Duration         int64 `json:"duration"`
}

type paymentRequest struct {
	Amount int64 `json:"amount"`
}

type recomputeRequest struct {
	Account string `json:"account"`
}

// GetProfile handles profile retrieval, creating the caller's profile on
// first contact.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	account, err := service.CallerAccount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	profile, err := h.svc.GetOrCreateProfile(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ApplyForLoan handles loan origination
func (h *Handler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	var req applyLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.ErrInvalidParameter)
		return
	}
	offer, err := h.svc.ApplyForLoan(r.Context(), req.Amount, req.CollateralAmount, req.Duration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

// GetLoan handles loan retrieval by id
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	loan, err := h.svc.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// MakePayment handles loan repayment
func (h *Handler) MakePayment(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.ErrInvalidAmount)
		return
	}
	if err := h.svc.MakePayment(r.Context(), id, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

// LatestPayment returns the caller's most recent payment against a loan.
func (h *Handler) LatestPayment(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	record, err := h.svc.LatestPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// MarkOverdue flags a loan past its due height as defaulted.
func (h *Handler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.MarkOverdue(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

// RecomputeScore rescores an account's profile. The account defaults to the
// caller when the body names none.
func (h *Handler) RecomputeScore(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Account = ""
	}
	if req.Account == "" {
		account, err := service.CallerAccount(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		req.Account = account
	}
	report, err := h.svc.RecomputeScore(r.Context(), req.Account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Stats returns platform-wide lending statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func loanID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, models.ErrLoanNotFound
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var opErr *models.Error
	if errors.As(err, &opErr) {
		writeJSON(w, statusFor(opErr), opErr)
		return
	}
	writeJSON(w, http.StatusInternalServerError, &models.Error{Code: "INTERNAL", Message: "internal error"})
}

func statusFor(e *models.Error) int {
	switch e {
	case models.ErrLoanNotFound:
		return http.StatusNotFound
	case models.ErrNotAuthorized:
		return http.StatusForbidden
	case models.ErrAlreadyPaid:
		return http.StatusConflict
	case models.ErrInsufficientScore:
		return http.StatusUnprocessableEntity
	case models.ErrProfileCreation:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
