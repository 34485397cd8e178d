// Package handler содержит HTTP-обработчики API партнёрского леджера.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/metrics"
	"github.com/mmeshcher/partner-ledger/internal/middleware"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/repository"
	"github.com/mmeshcher/partner-ledger/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	CreatePartner(ctx context.Context, userID int64, partnerType model.PartnerType) (*model.Partner, error)
	GetPartner(ctx context.Context, id int64) (*model.Partner, error)
	SetPartnerStatus(ctx context.Context, id int64, status model.PartnerStatus) error

	AttributeReferral(ctx context.Context, userID int64, code string) (*service.Attribution, error)
	ListReferrals(ctx context.Context, partnerID int64) ([]model.Referral, error)

	AccrueCommission(ctx context.Context, order model.Order) ([]service.AccrualResult, error)
	ConfirmDueSettlements(ctx context.Context) (*service.SettlementReport, error)
	ReverseCommission(ctx context.Context, id int64, reason string) (*model.Commission, error)
	ListCommissions(ctx context.Context, partnerID int64) ([]model.Commission, error)

	RequestWithdrawal(ctx context.Context, partnerID int64, amount decimal.Decimal, method model.PaymentMethod, info string) (*model.Withdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, id int64, status model.WithdrawalStatus, reason string) (*model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, partnerID int64) ([]model.Withdrawal, error)

	GenerateRedemptionCodes(ctx context.Context, partnerID int64, count int) (*service.CodeBatch, error)
}

// Handler реализует HTTP-обработчики API партнёрского леджера.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	apiKey         string
	metrics        *metrics.LedgerMetrics
	gatherer       prometheus.Gatherer
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// gatherer отдаётся на /metrics; nil означает реестр по умолчанию.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, apiKey string, m *metrics.LedgerMetrics, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		apiKey:         apiKey,
		metrics:        m,
		gatherer:       gatherer,
	}
}

type errorResponse struct {
	Error     string   `json:"error"`
	Available *float64 `json:"available,omitempty"`
	Requested *float64 `json:"requested,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит доменную ошибку в HTTP-ответ. Неизвестные ошибки логируются и отдаются как 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	var insufficient *repository.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		available := model.Float(insufficient.Available)
		requested := model.Float(insufficient.Requested)
		writeJSON(w, http.StatusPaymentRequired, errorResponse{
			Error:     repository.ErrInsufficientBalance.Error(),
			Available: &available,
			Requested: &requested,
		})
	case errors.Is(err, service.ErrInvalidCode):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: service.ErrInvalidCode.Error()})
	case errors.Is(err, repository.ErrPartnerNotFound),
		errors.Is(err, repository.ErrCommissionNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrPartnerExists),
		errors.Is(err, service.ErrSettlementInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrGenerationExhausted):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidCount),
		errors.Is(err, service.ErrInvalidPartnerType),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrPaymentInfoRequired),
		errors.Is(err, service.ErrInvalidOrder):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// Health проверяет доступность базы данных.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
