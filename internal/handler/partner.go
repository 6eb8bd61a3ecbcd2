package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/money"
	"github.com/mmeshcher/partner-ledger/internal/service"
)

type ledgerResponse struct {
	PartnerID           string         `json:"partner_id"`
	Period              periodResponse `json:"period"`
	Scope               string         `json:"scope"`
	Sites               []string       `json:"sites"`
	NetAmount           float64        `json:"net_amount"`
	AdsDeducted         float64        `json:"ads_deducted"`
	NetAfterAds         float64        `json:"net_after_ads"`
	CommissionSigned    float64        `json:"commission_signed"`
	CommissionGenerated float64        `json:"commission_generated"`
	TotalPaid           float64        `json:"total_paid"`
	Balance             float64        `json:"balance"`
}

// Ledger возвращает комиссию, выплаты и баланс партнёра.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "partnerID")
	l, err := h.service.PartnerLedger(r.Context(), partnerID, periodQuery(r), service.ParseScope(r.URL.Query().Get("scope")))
	if err != nil {
		h.fail(w, r, err, "partner ledger")
		return
	}

	sites := l.Sites
	if sites == nil {
		sites = []string{}
	}
	writeJSON(w, http.StatusOK, ledgerResponse{
		PartnerID:           l.PartnerID,
		Period:              newPeriodResponse(l.Range),
		Scope:               string(l.Scope),
		Sites:               sites,
		NetAmount:           money.MinorToFloat(l.Ledger.NetMinor),
		AdsDeducted:         money.MinorToFloat(l.Ledger.AdSpendMinor),
		NetAfterAds:         money.MinorToFloat(l.Ledger.NetAfterAdsMinor),
		CommissionSigned:    money.Float(l.Ledger.CommissionSigned),
		CommissionGenerated: money.Float(l.Ledger.CommissionGenerated),
		TotalPaid:           money.MinorToFloat(l.Ledger.PaidMinor),
		Balance:             money.Float(l.Ledger.Balance),
	})
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type paymentResponse struct {
	ID        int64   `json:"id"`
	PartnerID string  `json:"partner_id"`
	Amount    float64 `json:"amount"`
	Note      string  `json:"note"`
	CreatedAt *string `json:"created_at"`
}

func newPaymentResponse(p model.PartnerPayment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		PartnerID: p.PartnerID,
		Amount:    money.MinorToFloat(p.AmountMinorUnits),
		Note:      p.Note,
		CreatedAt: formatTime(p.CreatedAt),
	}
}

// RecordPayment добавляет выплату партнёра.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, "malformed JSON body")
		return
	}

	p, err := h.service.RecordPayment(r.Context(), service.PaymentInput{
		PartnerID:        chi.URLParam(r, "partnerID"),
		AmountMinorUnits: money.FromMajor(req.Amount),
		Note:             req.Note,
	})
	if err != nil {
		h.fail(w, r, err, "record payment")
		return
	}
	writeJSON(w, http.StatusCreated, newPaymentResponse(p))
}

// ListPayments возвращает все выплаты партнёра.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), chi.URLParam(r, "partnerID"))
	if err != nil {
		h.fail(w, r, err, "list payments")
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, newPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

type adSpendRequest struct {
	PartnerID     string          `json:"partner_id"`
	SiteSlug      string          `json:"site_slug"`
	ReferenceDate string          `json:"reference_date"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note"`
}

type adSpendResponse struct {
	ID            int64   `json:"id"`
	PartnerID     string  `json:"partner_id"`
	SiteSlug      string  `json:"site_slug"`
	SiteName      string  `json:"site_name"`
	ReferenceDate string  `json:"reference_date"`
	Amount        float64 `json:"amount"`
	Note          string  `json:"note"`
	CreatedAt     *string `json:"created_at"`
}

func newAdSpendResponse(a model.AdSpend) adSpendResponse {
	return adSpendResponse{
		ID:            a.ID,
		PartnerID:     a.PartnerID,
		SiteSlug:      a.SiteSlug,
		SiteName:      a.SiteName,
		ReferenceDate: a.ReferenceDate,
		Amount:        money.MinorToFloat(a.AmountMinorUnits),
		Note:          a.Note,
		CreatedAt:     formatTime(a.CreatedAt),
	}
}

// RecordAdSpend добавляет ручную запись рекламного расхода.
func (h *Handler) RecordAdSpend(w http.ResponseWriter, r *http.Request) {
	var req adSpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, "malformed JSON body")
		return
	}

	a, err := h.service.RecordAdSpend(r.Context(), service.AdSpendInput{
		PartnerID:        req.PartnerID,
		SiteSlug:         req.SiteSlug,
		ReferenceDate:    req.ReferenceDate,
		AmountMinorUnits: money.FromMajor(req.Amount),
		Note:             req.Note,
	})
	if err != nil {
		h.fail(w, r, err, "record ad spend")
		return
	}
	writeJSON(w, http.StatusCreated, newAdSpendResponse(a))
}

// ListAdSpend возвращает рекламные расходы за период.
func (h *Handler) ListAdSpend(w http.ResponseWriter, r *http.Request) {
	spend, rng, err := h.service.ListAdSpend(r.Context(), service.AdSpendQuery{
		PeriodQuery: periodQuery(r),
		SiteSlug:    r.URL.Query().Get("site"),
	})
	if err != nil {
		h.fail(w, r, err, "list ad spend")
		return
	}

	resp := make([]adSpendResponse, 0, len(spend))
	for _, a := range spend {
		resp = append(resp, newAdSpendResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":   newPeriodResponse(rng),
		"ad_spend": resp,
	})
}
