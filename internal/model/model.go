// Package model содержит доменные сущности партнёрской программы.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartnerType описывает вариант партнёрской программы.
type PartnerType string

const (
	PartnerTypeYoujin PartnerType = "youjin"
	PartnerTypeBloom  PartnerType = "bloom"
)

// Valid сообщает, относится ли тип к известным программам.
func (t PartnerType) Valid() bool {
	switch t {
	case PartnerTypeYoujin, PartnerTypeBloom:
		return true
	}
	return false
}

// PartnerStatus описывает статус партнёрского аккаунта.
type PartnerStatus string

const (
	PartnerStatusActive   PartnerStatus = "active"
	PartnerStatusInactive PartnerStatus = "inactive"
)

// Partner представляет партнёрский аккаунт. Денежные поля хранятся в копейках.
type Partner struct {
	ID               int64
	UserID           int64
	Type             PartnerType
	Code             string
	Tier             Tier
	CommissionRateL1 decimal.Decimal
	CommissionRateL2 decimal.Decimal
	PrepurchaseCount int64
	TotalReferrals   int64
	TotalL2Referrals int64
	PendingBalance   int64
	AvailableBalance int64
	TotalEarnings    int64
	Status           PartnerStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Active сообщает, может ли партнёр участвовать в операциях.
func (p *Partner) Active() bool {
	return p != nil && p.Status == PartnerStatusActive
}

// Referral описывает ребро графа рефералов: партнёр привёл пользователя.
type Referral struct {
	ID               int64     `db:"id"`
	PartnerID        int64     `db:"partner_id"`
	ReferredUserID   int64     `db:"referred_user_id"`
	Level            int       `db:"level"`
	ParentReferralID *int64    `db:"parent_referral_id"`
	CreatedAt        time.Time `db:"created_at"`
}

// Commission описывает начисление партнёру по одному заказу.
type Commission struct {
	ID               int64            `db:"id"`
	PartnerID        int64            `db:"partner_id"`
	OrderID          string           `db:"order_id"`
	OrderType        string           `db:"order_type"`
	OrderAmount      int64            `db:"order_amount"`
	CommissionRate   decimal.Decimal  `db:"commission_rate"`
	CommissionAmount int64            `db:"commission_amount"`
	Level            *int             `db:"level"`
	Status           CommissionStatus `db:"status"`
	ConfirmAt        time.Time        `db:"confirm_at"`
	ConfirmedAt      *time.Time       `db:"confirmed_at"`
	ReversedAt       *time.Time       `db:"reversed_at"`
	ReferredUserID   *int64           `db:"referred_user_id"`
	CreatedAt        time.Time        `db:"created_at"`
}

// PaymentMethod описывает способ вывода средств.
type PaymentMethod string

const (
	PaymentMethodWechat PaymentMethod = "wechat"
	PaymentMethodAlipay PaymentMethod = "alipay"
	PaymentMethodBank   PaymentMethod = "bank"
)

// Valid сообщает, поддерживается ли способ вывода.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodWechat, PaymentMethodAlipay, PaymentMethodBank:
		return true
	}
	return false
}

// Withdrawal описывает заявку партнёра на вывод средств.
type Withdrawal struct {
	ID            int64            `db:"id"`
	PartnerID     int64            `db:"partner_id"`
	Amount        int64            `db:"amount"`
	PaymentMethod PaymentMethod    `db:"payment_method"`
	PaymentInfo   string           `db:"payment_info"`
	Status        WithdrawalStatus `db:"status"`
	RejectReason  *string          `db:"reject_reason"`
	CreatedAt     time.Time        `db:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at"`
}

// RedemptionCode описывает одноразовый код погашения, выпущенный партнёром.
type RedemptionCode struct {
	Code      string
	PartnerID int64
	Status    RedemptionCodeStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CommissionConfig описывает настройку комиссии продукта для одного типа партнёров.
type CommissionConfig struct {
	Type    PartnerType     `json:"type"`
	Enabled bool            `json:"enabled"`
	Rate    decimal.Decimal `json:"rate"`
	Target  TargetMode      `json:"target"`
}

// TargetMode определяет, кому начисляется комиссия по настройке продукта.
type TargetMode string

const (
	// TargetReferrer начисляет только реферерам покупателя (первый и второй уровень).
	TargetReferrer TargetMode = "referrer"
	// TargetAllPartners начисляет всем активным партнёрам типа.
	TargetAllPartners TargetMode = "all_partners"
)

// Order описывает завершённый заказ, участвующий в начислении комиссий.
type Order struct {
	ID        string
	ProductID string
	Type      string
	Amount    int64
	BuyerID   int64
}

// Balance содержит балансы партнёра для отображения.
type Balance struct {
	Pending   float64 `json:"pending"`
	Available float64 `json:"available"`
	Total     float64 `json:"total_earnings"`
}
