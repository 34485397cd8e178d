// Package metrics содержит метрики Prometheus сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LedgerMetrics содержит метрики партнёрского леджера.
type LedgerMetrics struct {
	// Привязка рефералов (result: created/existing/invalid/failed, level: 1/2)
	ReferralAttributions *prometheus.CounterVec

	// Начисления комиссий по партнёрам (result: created/duplicate/failed/skipped)
	CommissionsAccrued *prometheus.CounterVec
	CommissionAmount   prometheus.Counter

	// Подтверждение начислений (result: confirmed/failed/skipped)
	SettlementsTotal   *prometheus.CounterVec
	SettlementDuration prometheus.Histogram

	// Выводы средств (result: created/insufficient/failed)
	WithdrawalsTotal *prometheus.CounterVec

	CodesIssued prometheus.Counter

	HTTPRequestDuration *prometheus.HistogramVec
}

// New регистрирует метрики в registerer.
func New(reg prometheus.Registerer) *LedgerMetrics {
	f := promauto.With(reg)

	return &LedgerMetrics{
		ReferralAttributions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_referral_attributions_total",
				Help: "Referral attribution attempts by level and result",
			},
			[]string{"level", "result"},
		),
		CommissionsAccrued: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_commissions_accrued_total",
				Help: "Per-partner commission accrual results",
			},
			[]string{"result"},
		),
		CommissionAmount: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_commission_amount_total",
				Help: "Total accrued commission amount in currency units",
			},
		),
		SettlementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_settlements_total",
				Help: "Commission settlement confirmations by result",
			},
			[]string{"result"},
		),
		SettlementDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_settlement_run_duration_seconds",
				Help:    "Duration of a settlement confirmation run",
				Buckets: prometheus.DefBuckets,
			},
		),
		WithdrawalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_withdrawals_total",
				Help: "Withdrawal requests by result",
			},
			[]string{"result"},
		),
		CodesIssued: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_redemption_codes_issued_total",
				Help: "Redemption codes issued",
			},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_http_request_duration_seconds",
				Help:    "HTTP request duration by route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
	}
}

// NewNop создаёт метрики в отдельном реестре, не публикуемом наружу. Удобно в тестах.
func NewNop() *LedgerMetrics {
	return New(prometheus.NewRegistry())
}
