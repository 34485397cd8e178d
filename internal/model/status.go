package model

import "fmt"

// CommissionStatus описывает состояние начисления.
type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionConfirmed CommissionStatus = "confirmed"
	CommissionReversed  CommissionStatus = "reversed"
)

var commissionTransitions = map[CommissionStatus][]CommissionStatus{
	CommissionPending: {CommissionConfirmed, CommissionReversed},
}

// CanTransition сообщает, допустим ли переход начисления в статус next.
func (s CommissionStatus) CanTransition(next CommissionStatus) bool {
	return allowed(commissionTransitions[s], next)
}

// Terminal сообщает, что из статуса нет переходов.
func (s CommissionStatus) Terminal() bool {
	return len(commissionTransitions[s]) == 0
}

// WithdrawalStatus описывает состояние заявки на вывод.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
	WithdrawalPaid     WithdrawalStatus = "paid"
)

var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalPending:  {WithdrawalApproved, WithdrawalRejected},
	WithdrawalApproved: {WithdrawalPaid, WithdrawalRejected},
}

// ParseWithdrawalStatus разбирает статус заявки из строки.
func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	switch st := WithdrawalStatus(s); st {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalPaid:
		return st, nil
	}
	return "", fmt.Errorf("unknown withdrawal status %q", s)
}

// CanTransition сообщает, допустим ли переход заявки в статус next.
func (s WithdrawalStatus) CanTransition(next WithdrawalStatus) bool {
	return allowed(withdrawalTransitions[s], next)
}

// RestoresBalance сообщает, что переход в статус возвращает сумму на доступный баланс.
func (s WithdrawalStatus) RestoresBalance() bool {
	return s == WithdrawalRejected
}

// RedemptionCodeStatus описывает состояние кода погашения.
type RedemptionCodeStatus string

const (
	CodeAvailable RedemptionCodeStatus = "available"
	CodeRedeemed  RedemptionCodeStatus = "redeemed"
	CodeExpired   RedemptionCodeStatus = "expired"
)

var codeTransitions = map[RedemptionCodeStatus][]RedemptionCodeStatus{
	CodeAvailable: {CodeRedeemed, CodeExpired},
}

// CanTransition сообщает, допустим ли переход кода в статус next.
func (s RedemptionCodeStatus) CanTransition(next RedemptionCodeStatus) bool {
	return allowed(codeTransitions[s], next)
}

func allowed[T comparable](targets []T, next T) bool {
	for _, t := range targets {
		if t == next {
			return true
		}
	}
	return false
}

// Tier описывает уровень партнёра. Уровни упорядочены: L0 < L1 < L2 < L3.
type Tier int16

const (
	TierL0 Tier = iota
	TierL1
	TierL2
	TierL3
)

func (t Tier) String() string {
	return fmt.Sprintf("L%d", int16(t))
}

// MarshalText кодирует уровень в виде "L1".
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText разбирает уровень вида "L1".
func (t *Tier) UnmarshalText(text []byte) error {
	var n int16
	if _, err := fmt.Sscanf(string(text), "L%d", &n); err != nil || n < int16(TierL0) || n > int16(TierL3) {
		return fmt.Errorf("unknown tier %q", text)
	}
	*t = Tier(n)
	return nil
}
