package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/partner-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware партнёрского леджера.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger, h.metrics))

	// promhttp сам договаривается о сжатии, поэтому /metrics вне gzip-группы.
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)

		r.Route("/internal", func(r chi.Router) {
			r.Use(custommiddleware.APIKey(h.apiKey))

			r.Post("/referrals", h.AttributeReferral)
			r.Post("/orders", h.AccrueCommission)
			r.Post("/settlements/confirm", h.ConfirmSettlements)

			r.Post("/partners", h.CreatePartner)
			r.Patch("/partners/{id}", h.SetPartnerStatus)
			r.Post("/partners/{id}/token", h.IssuePartnerToken)

			r.Post("/commissions/{id}/reverse", h.ReverseCommission)
			r.Patch("/withdrawals/{id}", h.UpdateWithdrawalStatus)
		})

		r.Route("/api/partner", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/", h.GetPartner)
			r.Get("/commissions", h.GetCommissions)
			r.Get("/referrals", h.GetReferrals)

			r.Post("/withdrawals", h.Withdraw)
			r.Get("/withdrawals", h.GetWithdrawals)

			r.Post("/codes", h.GenerateCodes)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
