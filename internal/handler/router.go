package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/partner-ledger/internal/middleware"
	"github.com/mmeshcher/partner-ledger/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.CompressResponse)

	r.Get("/healthz", h.Health)

	r.Route("/webhooks", func(r chi.Router) {
		r.With(h.secrets[model.GatewayBuckpay].Middleware, custommiddleware.DecompressRequest).
			Post("/buckpay", h.Webhook(model.GatewayBuckpay, "site"))
		r.With(h.secrets[model.GatewayBlackcat].Middleware, custommiddleware.DecompressRequest).
			Post("/blackcat", h.Webhook(model.GatewayBlackcat, "siteSlug"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.DecompressRequest)

		r.Get("/reports/summary", h.Summary)
		r.Get("/orders", h.ListOrders)

		r.Route("/partners/{partnerID}", func(r chi.Router) {
			r.Get("/ledger", h.Ledger)
			r.Post("/payments", h.RecordPayment)
			r.Get("/payments", h.ListPayments)
		})

		r.Post("/ad-spend", h.RecordAdSpend)
		r.Get("/ad-spend", h.ListAdSpend)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
