package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/model"
)

type attributeRequest struct {
	UserID      int64  `json:"user_id"`
	PartnerCode string `json:"partner_code"`
}

type attributeResponse struct {
	Created bool               `json:"created"`
	Edges   []referralResponse `json:"edges"`
}

// AttributeReferral закрепляет нового пользователя за партнёром по коду приглашения.
func (h *Handler) AttributeReferral(w http.ResponseWriter, r *http.Request) {
	var req attributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 || req.PartnerCode == "" {
		badRequest(w, "user_id and partner_code are required")
		return
	}

	res, err := h.service.AttributeReferral(r.Context(), req.UserID, req.PartnerCode)
	if err != nil {
		h.writeError(w, err, "attribute referral error", zap.Int64("userID", req.UserID))
		return
	}

	resp := attributeResponse{
		Created: res.Created,
		Edges:   []referralResponse{newReferralResponse(res.Direct)},
	}
	if res.Upstream != nil {
		resp.Edges = append(resp.Edges, newReferralResponse(*res.Upstream))
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

type orderRequest struct {
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	OrderType string          `json:"order_type"`
	Amount    decimal.Decimal `json:"amount"`
	BuyerID   int64           `json:"buyer_id"`
}

// AccrueCommission начисляет комиссии по завершённому заказу и возвращает итог по каждому партнёру.
func (h *Handler) AccrueCommission(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BuyerID <= 0 {
		badRequest(w, "order_id, amount and buyer_id are required")
		return
	}

	amount, err := model.CentsFromDecimal(req.Amount)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	results, err := h.service.AccrueCommission(r.Context(), model.Order{
		ID:        req.OrderID,
		ProductID: req.ProductID,
		Type:      req.OrderType,
		Amount:    amount,
		BuyerID:   req.BuyerID,
	})
	if err != nil {
		h.writeError(w, err, "accrue commission error", zap.String("order", req.OrderID))
		return
	}

	resp := make([]accrualResultResponse, 0, len(results))
	for _, res := range results {
		item := accrualResultResponse{
			PartnerID:    res.PartnerID,
			CommissionID: res.CommissionID,
			Amount:       model.Float(res.Amount),
			Level:        res.Level,
			Duplicate:    res.Duplicate,
			Skipped:      res.Skipped,
			OK:           res.OK(),
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp = append(resp, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{"order_id": req.OrderID, "results": resp})
}

// ConfirmSettlements запускает подтверждение начислений с истёкшим периодом удержания.
func (h *Handler) ConfirmSettlements(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ConfirmDueSettlements(r.Context())
	if err != nil {
		h.writeError(w, err, "confirm settlements error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type createPartnerRequest struct {
	UserID      int64  `json:"user_id"`
	PartnerType string `json:"partner_type"`
}

// CreatePartner регистрирует партнёрский аккаунт пользователя.
func (h *Handler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var req createPartnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		badRequest(w, "user_id and partner_type are required")
		return
	}

	p, err := h.service.CreatePartner(r.Context(), req.UserID, model.PartnerType(req.PartnerType))
	if err != nil {
		h.writeError(w, err, "create partner error", zap.Int64("userID", req.UserID))
		return
	}
	writeJSON(w, http.StatusCreated, newPartnerResponse(p))
}

type partnerStatusRequest struct {
	Status string `json:"status"`
}

// SetPartnerStatus включает или отключает партнёра.
func (h *Handler) SetPartnerStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid partner id")
		return
	}

	var req partnerStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "status is required")
		return
	}

	status := model.PartnerStatus(req.Status)
	if status != model.PartnerStatusActive && status != model.PartnerStatusInactive {
		badRequest(w, "unknown partner status")
		return
	}

	if err := h.service.SetPartnerStatus(r.Context(), id, status); err != nil {
		h.writeError(w, err, "set partner status error", zap.Int64("partnerID", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// IssuePartnerToken выпускает токен доступа к кабинету партнёра.
func (h *Handler) IssuePartnerToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid partner id")
		return
	}

	if _, err := h.service.GetPartner(r.Context(), id); err != nil {
		h.writeError(w, err, "issue token error", zap.Int64("partnerID", id))
		return
	}

	token, expires := h.authMiddleware.IssueToken(id)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expires.Format(time.RFC3339)})
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

// ReverseCommission отменяет неподтверждённое начисление.
func (h *Handler) ReverseCommission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid commission id")
		return
	}

	var req reverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid request body")
		return
	}

	c, err := h.service.ReverseCommission(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, err, "reverse commission error", zap.Int64("commissionID", id))
		return
	}
	writeJSON(w, http.StatusOK, newCommissionResponse(*c))
}

type withdrawalStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// UpdateWithdrawalStatus фиксирует решение оператора по заявке на вывод.
func (h *Handler) UpdateWithdrawalStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid withdrawal id")
		return
	}

	var req withdrawalStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "status is required")
		return
	}

	status, err := model.ParseWithdrawalStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	wd, err := h.service.UpdateWithdrawalStatus(r.Context(), id, status, req.Reason)
	if err != nil {
		h.writeError(w, err, "update withdrawal error", zap.Int64("withdrawalID", id))
		return
	}
	writeJSON(w, http.StatusOK, newWithdrawalResponse(*wd))
}
