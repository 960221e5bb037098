package rest

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridianpay/risk-engine/internal/domain/analysis"
	"github.com/meridianpay/risk-engine/internal/domain/errors"
	"github.com/meridianpay/risk-engine/internal/domain/transaction"
	"github.com/meridianpay/risk-engine/internal/domain/values"
	"github.com/meridianpay/risk-engine/internal/service/fraud"
)

// Handler serves the risk-analysis HTTP API. Reads of stored analyses go
// straight to the store; only scoring and review actions pass through the
// engine.
type Handler struct {
	service  fraud.Service
	store    fraud.AnalysisStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service fraud.Service, store fraud.AnalysisStore, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

// GeolocationRequest is the wire form of a transaction's location
type GeolocationRequest struct {
	Country   string  `json:"country" validate:"required,len=2"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// AnalyzeRequest is the wire form of a transaction to score
type AnalyzeRequest struct {
	TransactionID      string              `json:"transaction_id" validate:"required,max=128"`
	UserID             string              `json:"user_id" validate:"required,uuid"`
	AccountID          string              `json:"account_id" validate:"required,uuid"`
	Amount             string              `json:"amount" validate:"required"`
	Currency           string              `json:"currency" validate:"required,len=3"`
	Type               string              `json:"type" validate:"required,oneof=payment deposit withdrawal transfer"`
	SourceAccount      string              `json:"source_account,omitempty"`
	DestinationAccount string              `json:"destination_account,omitempty"`
	Timestamp          time.Time           `json:"timestamp,omitempty"`
	ClientIP           string              `json:"client_ip,omitempty" validate:"omitempty,ip"`
	UserAgent          string              `json:"user_agent,omitempty"`
	SessionID          string              `json:"session_id,omitempty"`
	DeviceFingerprint  string              `json:"device_fingerprint,omitempty"`
	Geolocation        *GeolocationRequest `json:"geolocation,omitempty"`
	EnhancedChecks     bool                `json:"enhanced_checks,omitempty"`
}

// FalsePositiveRequest marks a prior analysis as overturned
type FalsePositiveRequest struct {
	ReviewerID string `json:"reviewer_id,omitempty" validate:"omitempty,max=128"`
	Reason     string `json:"reason,omitempty" validate:"omitempty,max=1024"`
}

// AnalyzeTransaction handles POST /api/v1/analyses
func (h *Handler) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, errors.NewValidationError("INVALID_REQUEST", err.Error()))
		return
	}

	tx, err := h.toTransactionContext(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := &fraud.AnalysisOptions{EnhancedChecks: req.EnhancedChecks}
	result, err := h.service.AnalyzeTransaction(r.Context(), tx, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetAnalysis handles GET /api/v1/analyses/{id}
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.GetAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// MarkFalsePositive handles POST /api/v1/analyses/{id}/false-positive
func (h *Handler) MarkFalsePositive(w http.ResponseWriter, r *http.Request) {
	transactionID := r.PathValue("id")

	var req FalsePositiveRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
			return
		}
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, errors.NewValidationError("INVALID_REQUEST", err.Error()))
		return
	}

	reviewerID := req.ReviewerID
	if reviewerID == "" {
		reviewerID = actorFromContext(r.Context())
	}

	if err := h.service.MarkFalsePositive(r.Context(), transactionID, reviewerID, req.Reason); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"transaction_id": transactionID,
		"status":         "marked",
	})
}

// GetStatistics handles GET /api/v1/statistics
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	timeRange, err := parseTimeRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.service.GetStatistics(r.Context(), timeRange)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) toTransactionContext(req *AnalyzeRequest) (*transaction.Context, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_USER_ID", "user ID is not a valid UUID")
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_ACCOUNT_ID", "account ID is not a valid UUID")
	}
	amount, err := values.NewMoneyFromString(req.Amount, req.Currency)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_AMOUNT", err.Error())
	}

	tx, err := transaction.NewContext(
		req.TransactionID,
		userID,
		accountID,
		amount,
		transaction.Type(req.Type),
		req.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	tx.SourceAccount = req.SourceAccount
	tx.DestinationAccount = req.DestinationAccount
	tx.ClientIP = req.ClientIP
	tx.UserAgent = req.UserAgent
	tx.SessionID = req.SessionID
	tx.DeviceFingerprint = req.DeviceFingerprint
	if req.Geolocation != nil {
		tx.Geolocation = &transaction.Geolocation{
			Country:   req.Geolocation.Country,
			Region:    req.Geolocation.Region,
			City:      req.Geolocation.City,
			Latitude:  req.Geolocation.Latitude,
			Longitude: req.Geolocation.Longitude,
		}
	}
	return tx, nil
}

func parseTimeRange(r *http.Request) (*analysis.TimeRange, error) {
	startParam := r.URL.Query().Get("start")
	endParam := r.URL.Query().Get("end")
	if startParam == "" && endParam == "" {
		return nil, nil
	}

	var tr analysis.TimeRange
	var err error
	if startParam != "" {
		tr.Start, err = time.Parse(time.RFC3339, startParam)
		if err != nil {
			return nil, errors.NewValidationError("INVALID_START", "start must be RFC 3339")
		}
	}
	if endParam != "" {
		tr.End, err = time.Parse(time.RFC3339, endParam)
		if err != nil {
			return nil, errors.NewValidationError("INVALID_END", "end must be RFC 3339")
		}
	}
	return &tr, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	var body errorBody
	body.Error.Code = "INTERNAL_ERROR"
	body.Error.Message = "An internal error occurred"

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body.Error.Code = appErr.Code
		body.Error.Message = appErr.Message
	}

	writeJSON(w, errors.GetStatusCode(err), body)
}
