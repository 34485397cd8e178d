package model

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount возвращается для сумм с точностью больше копейки или неположительных сумм.
var ErrInvalidAmount = errors.New("amount must be positive with at most 2 decimal places")

var (
	hundred = decimal.NewFromInt(100)
	// maxAmount ограничивает суммы, представимые в копейках int64.
	maxAmount = decimal.New(math.MaxInt64, -2)
)

// CentsFromDecimal переводит положительную сумму в копейки без округления.
func CentsFromDecimal(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) || amount.GreaterThan(maxAmount) {
		return 0, ErrInvalidAmount
	}
	return amount.Mul(hundred).IntPart(), nil
}

// DecimalFromCents переводит копейки в денежную сумму.
func DecimalFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Float переводит копейки в число для ответов API.
func Float(cents int64) float64 {
	return float64(cents) / 100
}

// CommissionCents вычисляет комиссию round(amount × rate, 2) в копейках.
// Комиссия, не помещающаяся в int64, отклоняется с ErrInvalidAmount.
func CommissionCents(orderAmount int64, rate decimal.Decimal) (int64, error) {
	commission := DecimalFromCents(orderAmount).Mul(rate).Round(2)
	if commission.Abs().GreaterThan(maxAmount) {
		return 0, ErrInvalidAmount
	}
	return commission.Mul(hundred).IntPart(), nil
}
