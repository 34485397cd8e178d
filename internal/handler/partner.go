package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/middleware"
	"github.com/mmeshcher/partner-ledger/internal/model"
)

// GetPartner возвращает балансы и счётчики текущего партнёра.
func (h *Handler) GetPartner(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := middleware.GetPartnerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	p, err := h.service.GetPartner(r.Context(), partnerID)
	if err != nil {
		h.writeError(w, err, "get partner error", zap.Int64("partnerID", partnerID))
		return
	}
	writeJSON(w, http.StatusOK, newPartnerResponse(p))
}

// GetCommissions возвращает начисления текущего партнёра.
func (h *Handler) GetCommissions(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := middleware.GetPartnerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	commissions, err := h.service.ListCommissions(r.Context(), partnerID)
	if err != nil {
		h.writeError(w, err, "get commissions error", zap.Int64("partnerID", partnerID))
		return
	}

	if len(commissions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]commissionResponse, 0, len(commissions))
	for _, c := range commissions {
		resp = append(resp, newCommissionResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetReferrals возвращает пользователей, приведённых текущим партнёром.
func (h *Handler) GetReferrals(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := middleware.GetPartnerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	referrals, err := h.service.ListReferrals(r.Context(), partnerID)
	if err != nil {
		h.writeError(w, err, "get referrals error", zap.Int64("partnerID", partnerID))
		return
	}

	if len(referrals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]referralResponse, 0, len(referrals))
	for _, ref := range referrals {
		resp = append(resp, newReferralResponse(ref))
	}
	writeJSON(w, http.StatusOK, resp)
}

type withdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	PaymentInfo   string          `json:"payment_info"`
}

// Withdraw создаёт заявку на вывод с доступного баланса текущего партнёра.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := middleware.GetPartnerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), partnerID, req.Amount, model.PaymentMethod(req.PaymentMethod), req.PaymentInfo)
	if err != nil {
		h.writeError(w, err, "withdraw error", zap.Int64("partnerID", partnerID))
		return
	}
	writeJSON(w, http.StatusCreated, newWithdrawalResponse(*wd))
}

// GetWithdrawals возвращает заявки на вывод текущего партнёра.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := middleware.GetPartnerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	withdrawals, err := h.service.ListWithdrawals(r.Context(), partnerID)
	if err != nil {
		h.writeError(w, err, "get withdrawals error", zap.Int64("partnerID", partnerID))
		return
	}

	if len(withdrawals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]withdrawalResponse, 0, len(withdrawals))
	for _, wd := range withdrawals {
		resp = append(resp, newWithdrawalResponse(wd))
	}
	writeJSON(w, http.StatusOK, resp)
}

type codesRequest struct {
	Count int `json:"count"`
}

type codesResponse struct {
	Codes            []string   `json:"codes"`
	Tier             model.Tier `json:"tier"`
	PrepurchaseCount int64      `json:"prepurchase_count"`
	ExpiresAt        string     `json:"expires_at"`
}

// GenerateCodes выпускает пачку кодов погашения для текущего партнёра.
func (h *Handler) GenerateCodes(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := middleware.GetPartnerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req codesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "count is required")
		return
	}

	batch, err := h.service.GenerateRedemptionCodes(r.Context(), partnerID, req.Count)
	if err != nil {
		h.writeError(w, err, "generate codes error", zap.Int64("partnerID", partnerID), zap.Int("count", req.Count))
		return
	}

	writeJSON(w, http.StatusCreated, codesResponse{
		Codes:            batch.Codes,
		Tier:             batch.Tier,
		PrepurchaseCount: batch.PrepurchaseCount,
		ExpiresAt:        batch.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
