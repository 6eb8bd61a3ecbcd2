package handler

import (
	"net/http"
	"strings"

	"github.com/mmeshcher/partner-ledger/internal/aggregate"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/money"
	"github.com/mmeshcher/partner-ledger/internal/service"
)

type summaryResponse struct {
	OrderCount    int      `json:"order_count"`
	GrossAmount   float64  `json:"gross_amount"`
	NetAmount     float64  `json:"net_amount"`
	Commission    float64  `json:"commission"`
	AverageTicket *float64 `json:"average_ticket"`
}

type partnerResponse struct {
	summaryResponse

	SiteSlug           string  `json:"site_slug"`
	SiteName           string  `json:"site_name"`
	PartnerName        string  `json:"partner_name"`
	OwnerID            string  `json:"owner_id,omitempty"`
	Configured         bool    `json:"configured"`
	AdSpend            float64 `json:"ad_spend"`
	NetAfterAds        float64 `json:"net_after_ads"`
	CommissionAfterAds float64 `json:"commission_after_ads"`
}

type bucketResponse struct {
	Key         string  `json:"key"`
	OrderCount  int     `json:"order_count"`
	GrossAmount float64 `json:"gross_amount"`
	NetAmount   float64 `json:"net_amount"`
}

type reportResponse struct {
	Period     periodResponse    `json:"period"`
	Global     summaryResponse   `json:"global"`
	AdSpend    float64           `json:"ad_spend"`
	PerPartner []partnerResponse `json:"per_partner"`
	Series     []bucketResponse  `json:"series"`
}

func newSummaryResponse(s aggregate.Summary) summaryResponse {
	resp := summaryResponse{
		OrderCount:  s.OrderCount,
		GrossAmount: money.MinorToFloat(s.GrossMinor),
		NetAmount:   money.MinorToFloat(s.NetMinor),
		Commission:  money.Float(s.Commission),
	}
	if s.AverageTicket != nil {
		v := money.Float(*s.AverageTicket)
		resp.AverageTicket = &v
	}
	return resp
}

func newReportResponse(rep aggregate.Report) reportResponse {
	resp := reportResponse{
		Period:     newPeriodResponse(rep.Range),
		Global:     newSummaryResponse(rep.Global),
		AdSpend:    money.MinorToFloat(rep.AdSpendMinor),
		PerPartner: make([]partnerResponse, 0, len(rep.PerPartner)),
		Series:     make([]bucketResponse, 0, len(rep.Series)),
	}
	for _, p := range rep.PerPartner {
		resp.PerPartner = append(resp.PerPartner, partnerResponse{
			SiteSlug:           p.SiteSlug,
			SiteName:           p.SiteName,
			PartnerName:        p.PartnerName,
			OwnerID:            p.OwnerID,
			Configured:         p.Configured,
			summaryResponse:    newSummaryResponse(p.Summary),
			AdSpend:            money.MinorToFloat(p.Ledger.AdSpendMinor),
			NetAfterAds:        money.MinorToFloat(p.Ledger.NetAfterAdsMinor),
			CommissionAfterAds: money.Float(p.Ledger.CommissionGenerated),
		})
	}
	for _, b := range rep.Series {
		resp.Series = append(resp.Series, bucketResponse{
			Key:         b.Key,
			OrderCount:  b.OrderCount,
			GrossAmount: money.MinorToFloat(b.GrossMinor),
			NetAmount:   money.MinorToFloat(b.NetMinor),
		})
	}
	return resp
}

func periodQuery(r *http.Request) service.PeriodQuery {
	q := r.URL.Query()
	return service.PeriodQuery{Period: q.Get("period"), Date: q.Get("date")}
}

// Summary возвращает сводку, разбивку по партнёрам и временной ряд за период.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rep, err := h.service.Summary(r.Context(), service.SummaryQuery{
		PeriodQuery: periodQuery(r),
		SiteSlug:    q.Get("site"),
		Gateway:     model.Gateway(strings.ToLower(strings.TrimSpace(q.Get("gateway")))),
	})
	if err != nil {
		h.fail(w, r, err, "build summary")
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(rep))
}

type itemResponse struct {
	ExternalID string  `json:"external_id"`
	Name       string  `json:"name"`
	Quantity   int64   `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
}

type orderResponse struct {
	Gateway               string            `json:"gateway"`
	ExternalTransactionID string            `json:"external_transaction_id"`
	SiteSlug              string            `json:"site_slug"`
	Status                string            `json:"status"`
	RawStatus             string            `json:"raw_status"`
	RawEvent              string            `json:"raw_event,omitempty"`
	PaymentMethod         string            `json:"payment_method,omitempty"`
	TotalAmount           float64           `json:"total_amount"`
	NetAmount             float64           `json:"net_amount"`
	Customer              model.Customer    `json:"customer"`
	Items                 []itemResponse    `json:"items"`
	Attribution           model.Attribution `json:"attribution"`
	OccurredAt            *string           `json:"occurred_at"`
	CreatedAt             *string           `json:"created_at"`
	UpdatedAt             *string           `json:"updated_at"`
}

func newOrderResponse(o model.Order) orderResponse {
	items := make([]itemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResponse{
			ExternalID: it.ExternalID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  money.MinorToFloat(it.UnitPriceMinorUnits),
		})
	}
	return orderResponse{
		Gateway:               string(o.Gateway),
		ExternalTransactionID: o.ExternalTransactionID,
		SiteSlug:              o.SiteSlug,
		Status:                string(o.Status),
		RawStatus:             o.RawProviderStatus,
		RawEvent:              o.RawProviderEvent,
		PaymentMethod:         o.PaymentMethod,
		TotalAmount:           money.MinorToFloat(o.TotalAmountMinorUnits),
		NetAmount:             money.MinorToFloat(o.NetAmountMinorUnits),
		Customer:              o.Customer,
		Items:                 items,
		Attribution:           o.Attribution,
		OccurredAt:            formatTime(o.OccurredAt),
		CreatedAt:             formatTime(o.CreatedAt),
		UpdatedAt:             formatTime(o.UpdatedAt),
	}
}

// ListOrders возвращает сырую ленту заказов любых статусов за период.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, rng, err := h.service.ListOrders(r.Context(), service.OrdersQuery{
		PeriodQuery: periodQuery(r),
		SiteSlug:    q.Get("site"),
		Status:      strings.ToLower(strings.TrimSpace(q.Get("status"))),
	})
	if err != nil {
		h.fail(w, r, err, "list orders")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period": newPeriodResponse(rng),
		"orders": resp,
	})
}
