// Package tier определяет уровни партнёров по накопленному количеству предзакупок.
package tier

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/partner-ledger/internal/model"
)

// Level описывает порог уровня и ставки комиссий, которые он даёт.
type Level struct {
	Tier      model.Tier
	Threshold int64
	RateL1    decimal.Decimal
	RateL2    decimal.Decimal
}

// Table хранит уровни, упорядоченные по возрастанию порога.
type Table []Level

// DefaultTable возвращает стандартную таблицу уровней: 100/500/1000 → L1/L2/L3.
func DefaultTable() Table {
	return Table{
		{Tier: model.TierL0, Threshold: 0, RateL1: decimal.RequireFromString("0.20"), RateL2: decimal.RequireFromString("0.05")},
		{Tier: model.TierL1, Threshold: 100, RateL1: decimal.RequireFromString("0.25"), RateL2: decimal.RequireFromString("0.08")},
		{Tier: model.TierL2, Threshold: 500, RateL1: decimal.RequireFromString("0.30"), RateL2: decimal.RequireFromString("0.10")},
		{Tier: model.TierL3, Threshold: 1000, RateL1: decimal.RequireFromString("0.35"), RateL2: decimal.RequireFromString("0.12")},
	}
}

// Classify возвращает наивысший уровень, порог которого не превышает count.
func (t Table) Classify(count int64) Level {
	best := t[0]
	for _, l := range t[1:] {
		if count >= l.Threshold {
			best = l
		}
	}
	return best
}

// Of возвращает описание уровня tier.
func (t Table) Of(tier model.Tier) Level {
	for _, l := range t {
		if l.Tier == tier {
			return l
		}
	}
	return t[0]
}

// Promote вычисляет уровень после предзакупки. Уровень никогда не понижается.
func (t Table) Promote(current model.Tier, newCount int64) Level {
	l := t.Classify(newCount)
	if l.Tier < current {
		return t.Of(current)
	}
	return l
}
