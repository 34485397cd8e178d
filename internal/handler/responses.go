package handler

import (
	"time"

	"github.com/mmeshcher/partner-ledger/internal/model"
)

type partnerResponse struct {
	ID               int64         `json:"id"`
	UserID           int64         `json:"user_id"`
	Type             string        `json:"partner_type"`
	Code             string        `json:"partner_code"`
	Tier             model.Tier    `json:"tier"`
	CommissionRateL1 float64       `json:"commission_rate_l1"`
	CommissionRateL2 float64       `json:"commission_rate_l2"`
	PrepurchaseCount int64         `json:"prepurchase_count"`
	TotalReferrals   int64         `json:"total_referrals"`
	TotalL2Referrals int64         `json:"total_l2_referrals"`
	Balance          model.Balance `json:"balance"`
	Status           string        `json:"status"`
	CreatedAt        string        `json:"created_at"`
}

func newPartnerResponse(p *model.Partner) partnerResponse {
	return partnerResponse{
		ID:               p.ID,
		UserID:           p.UserID,
		Type:             string(p.Type),
		Code:             p.Code,
		Tier:             p.Tier,
		CommissionRateL1: p.CommissionRateL1.InexactFloat64(),
		CommissionRateL2: p.CommissionRateL2.InexactFloat64(),
		PrepurchaseCount: p.PrepurchaseCount,
		TotalReferrals:   p.TotalReferrals,
		TotalL2Referrals: p.TotalL2Referrals,
		Balance: model.Balance{
			Pending:   model.Float(p.PendingBalance),
			Available: model.Float(p.AvailableBalance),
			Total:     model.Float(p.TotalEarnings),
		},
		Status:    string(p.Status),
		CreatedAt: formatTime(p.CreatedAt),
	}
}

type referralResponse struct {
	ID             int64  `json:"referral_id"`
	PartnerID      int64  `json:"partner_id"`
	ReferredUserID int64  `json:"referred_user_id"`
	Level          int    `json:"level"`
	CreatedAt      string `json:"created_at,omitempty"`
}

func newReferralResponse(r model.Referral) referralResponse {
	return referralResponse{
		ID:             r.ID,
		PartnerID:      r.PartnerID,
		ReferredUserID: r.ReferredUserID,
		Level:          r.Level,
		CreatedAt:      formatTime(r.CreatedAt),
	}
}

type commissionResponse struct {
	ID          int64   `json:"id"`
	OrderID     string  `json:"order_id"`
	OrderType   string  `json:"order_type,omitempty"`
	OrderAmount float64 `json:"order_amount"`
	Rate        float64 `json:"commission_rate"`
	Amount      float64 `json:"commission_amount"`
	Level       *int    `json:"level,omitempty"`
	Status      string  `json:"status"`
	ConfirmAt   string  `json:"confirm_at"`
	ConfirmedAt string  `json:"confirmed_at,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

func newCommissionResponse(c model.Commission) commissionResponse {
	resp := commissionResponse{
		ID:          c.ID,
		OrderID:     c.OrderID,
		OrderType:   c.OrderType,
		OrderAmount: model.Float(c.OrderAmount),
		Rate:        c.CommissionRate.InexactFloat64(),
		Amount:      model.Float(c.CommissionAmount),
		Level:       c.Level,
		Status:      string(c.Status),
		ConfirmAt:   formatTime(c.ConfirmAt),
		CreatedAt:   formatTime(c.CreatedAt),
	}
	if c.ConfirmedAt != nil {
		resp.ConfirmedAt = formatTime(*c.ConfirmedAt)
	}
	return resp
}

type withdrawalResponse struct {
	ID            int64   `json:"id"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
	Status        string  `json:"status"`
	RejectReason  string  `json:"reject_reason,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

func newWithdrawalResponse(w model.Withdrawal) withdrawalResponse {
	resp := withdrawalResponse{
		ID:            w.ID,
		Amount:        model.Float(w.Amount),
		PaymentMethod: string(w.PaymentMethod),
		Status:        string(w.Status),
		CreatedAt:     formatTime(w.CreatedAt),
		UpdatedAt:     formatTime(w.UpdatedAt),
	}
	if w.RejectReason != nil {
		resp.RejectReason = *w.RejectReason
	}
	return resp
}

type accrualResultResponse struct {
	PartnerID    int64   `json:"partner_id,omitempty"`
	CommissionID int64   `json:"commission_id,omitempty"`
	Amount       float64 `json:"commission_amount"`
	Level        *int    `json:"level,omitempty"`
	Duplicate    bool    `json:"duplicate,omitempty"`
	Skipped      bool    `json:"skipped,omitempty"`
	OK           bool    `json:"ok"`
	Error        string  `json:"error,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
