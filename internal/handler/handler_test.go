package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/aggregate"
	"github.com/mmeshcher/partner-ledger/internal/gateway"
	"github.com/mmeshcher/partner-ledger/internal/ledger"
	"github.com/mmeshcher/partner-ledger/internal/middleware"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/period"
	"github.com/mmeshcher/partner-ledger/internal/service"
)

type stubService struct {
	pingErr error

	ingestResp service.IngestResult
	ingestErr  error
	gotGateway model.Gateway
	gotSite    string
	gotPayload []byte

	summaryResp  aggregate.Report
	summaryErr   error
	gotSummary   service.SummaryQuery
	ordersResp   []model.Order
	ordersErr    error
	gotOrdersQry service.OrdersQuery

	adSpendResp  model.AdSpend
	adSpendErr   error
	gotAdSpend   service.AdSpendInput
	adSpendList  []model.AdSpend
	paymentResp  model.PartnerPayment
	paymentErr   error
	gotPayment   service.PaymentInput
	paymentsList []model.PartnerPayment

	ledgerResp service.PartnerLedger
	ledgerErr  error
	gotScope   service.PaymentScope
}

func (s *stubService) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubService) Ingest(ctx context.Context, g model.Gateway, payload []byte, siteSlug string) (service.IngestResult, error) {
	s.gotGateway, s.gotPayload, s.gotSite = g, payload, siteSlug
	return s.ingestResp, s.ingestErr
}

func (s *stubService) Summary(ctx context.Context, q service.SummaryQuery) (aggregate.Report, error) {
	s.gotSummary = q
	return s.summaryResp, s.summaryErr
}

func (s *stubService) ListOrders(ctx context.Context, q service.OrdersQuery) ([]model.Order, period.Range, error) {
	s.gotOrdersQry = q
	return s.ordersResp, period.Range{}, s.ordersErr
}

func (s *stubService) RecordAdSpend(ctx context.Context, in service.AdSpendInput) (model.AdSpend, error) {
	s.gotAdSpend = in
	return s.adSpendResp, s.adSpendErr
}

func (s *stubService) ListAdSpend(ctx context.Context, q service.AdSpendQuery) ([]model.AdSpend, period.Range, error) {
	return s.adSpendList, period.Range{}, nil
}

func (s *stubService) RecordPayment(ctx context.Context, in service.PaymentInput) (model.PartnerPayment, error) {
	s.gotPayment = in
	return s.paymentResp, s.paymentErr
}

func (s *stubService) ListPayments(ctx context.Context, partnerID string) ([]model.PartnerPayment, error) {
	return s.paymentsList, nil
}

func (s *stubService) PartnerLedger(ctx context.Context, partnerID string, q service.PeriodQuery, scope service.PaymentScope) (service.PartnerLedger, error) {
	s.gotScope = scope
	return s.ledgerResp, s.ledgerErr
}

type decoded struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *apiError       `json:"error"`
}

func newTestRouter(t *testing.T, svc Service, secrets WebhookSecrets) http.Handler {
	t.Helper()
	return NewHandler(svc, zap.NewNop(), secrets).SetupRouter()
}

func do(t *testing.T, h http.Handler, method, target string, body []byte, headers ...string) (*httptest.ResponseRecorder, decoded) {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var d decoded
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d), rec.Body.String())
	return rec, d
}

func TestWebhook(t *testing.T) {
	tests := []struct {
		name       string
		ingestResp service.IngestResult
		ingestErr  error
		wantStatus int
		wantCode   string
	}{
		{
			name: "accepted with review flag",
			ingestResp: service.IngestResult{
				Order: model.Order{
					Gateway:               model.GatewayBuckpay,
					ExternalTransactionID: "tx-1",
					SiteSlug:              "white",
					Status:                model.StatusUnknown,
				},
				Inserted:    true,
				NeedsReview: true,
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid payload",
			ingestErr:  &gateway.ValidationError{Gateway: model.GatewayBuckpay, Field: "data.id", Reason: "required"},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeInvalidPayload,
		},
		{
			name:       "storage unavailable",
			ingestErr:  fmt.Errorf("%w: %w", service.ErrStorage, errors.New("connection refused")),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   codeStorageUnavailable,
		},
		{
			name:       "unknown gateway",
			ingestErr:  fmt.Errorf("%w: nope", service.ErrUnknownGateway),
			wantStatus: http.StatusNotFound,
			wantCode:   codeNotFound,
		},
		{
			name:       "unexpected error",
			ingestErr:  errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   codeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{ingestResp: tt.ingestResp, ingestErr: tt.ingestErr}
			r := newTestRouter(t, svc, nil)

			rec, d := do(t, r, http.MethodPost, "/webhooks/buckpay?site=white", []byte(`{"event":"transaction.created"}`))
			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

			if tt.wantCode != "" {
				require.NotNil(t, d.Error)
				assert.Equal(t, "error", d.Status)
				assert.Equal(t, tt.wantCode, d.Error.Code)
				assert.NotEmpty(t, d.Error.RequestID)
				return
			}

			var resp webhookResponse
			require.NoError(t, json.Unmarshal(d.Data, &resp))
			assert.Equal(t, "ok", d.Status)
			assert.Equal(t, "tx-1", resp.ExternalTransactionID)
			assert.Equal(t, "unknown", resp.Status)
			assert.True(t, resp.Inserted)
			assert.True(t, resp.NeedsReview)
		})
	}
}

func TestWebhook_SiteParamPerGateway(t *testing.T) {
	svc := &stubService{}
	r := newTestRouter(t, svc, nil)

	rec, _ := do(t, r, http.MethodPost, "/webhooks/buckpay?site=white", []byte(`{}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.GatewayBuckpay, svc.gotGateway)
	assert.Equal(t, "white", svc.gotSite)
	assert.JSONEq(t, `{}`, string(svc.gotPayload))

	rec, _ = do(t, r, http.MethodPost, "/webhooks/blackcat?siteSlug=black&site=ignored", []byte(`{}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.GatewayBlackcat, svc.gotGateway)
	assert.Equal(t, "black", svc.gotSite)
}

func TestWebhook_Secret(t *testing.T) {
	secrets := WebhookSecrets{
		model.GatewayBuckpay: middleware.NewWebhookSecret("", "s3cret"),
	}

	t.Run("mismatch rejected before ingest", func(t *testing.T) {
		svc := &stubService{}
		r := newTestRouter(t, svc, secrets)

		rec, d := do(t, r, http.MethodPost, "/webhooks/buckpay", []byte(`{}`), middleware.DefaultSecretHeader, "wrong")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotNil(t, d.Error)
		assert.Equal(t, "unauthorized", d.Error.Code)
		assert.Empty(t, svc.gotGateway)
	})

	t.Run("match accepted", func(t *testing.T) {
		svc := &stubService{}
		r := newTestRouter(t, svc, secrets)

		rec, _ := do(t, r, http.MethodPost, "/webhooks/buckpay", []byte(`{}`), middleware.DefaultSecretHeader, "s3cret")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, model.GatewayBuckpay, svc.gotGateway)
	})

	t.Run("gateway without secret is open", func(t *testing.T) {
		svc := &stubService{}
		r := newTestRouter(t, svc, secrets)

		rec, _ := do(t, r, http.MethodPost, "/webhooks/blackcat", []byte(`{}`))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSummary_MoneyAsMajorUnits(t *testing.T) {
	avg := decimal.RequireFromString("100.005")
	svc := &stubService{
		summaryResp: aggregate.Report{
			Range: period.Range{
				Period: period.Today,
				Label:  "Today",
				Start:  time.Date(2025, 12, 4, 3, 0, 0, 0, time.UTC),
				End:    time.Date(2025, 12, 4, 18, 0, 0, 0, time.UTC),
			},
			Global: aggregate.Summary{
				OrderCount:    2,
				GrossMinor:    20001,
				NetMinor:      18600,
				Commission:    decimal.RequireFromString("55.8"),
				AverageTicket: &avg,
			},
			PerPartner: []aggregate.PartnerSummary{
				{
					SiteSlug:   aggregate.UnconfiguredSlug,
					SiteName:   "Unconfigured",
					Configured: false,
					Ledger:     ledger.Ledger{NetAfterAdsMinor: 0},
				},
			},
			Series: []aggregate.Bucket{{Key: "00:00", OrderCount: 1, GrossMinor: 10000, NetMinor: 9300}},
		},
	}
	r := newTestRouter(t, svc, nil)

	rec, d := do(t, r, http.MethodGet, "/api/reports/summary?period=today&site=white&gateway=BuckPay", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "white", svc.gotSummary.SiteSlug)
	assert.Equal(t, model.GatewayBuckpay, svc.gotSummary.Gateway)
	assert.Equal(t, "today", svc.gotSummary.Period)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(d.Data, &resp))

	global := resp["global"].(map[string]any)
	assert.InDelta(t, 200.01, global["gross_amount"], 1e-9)
	assert.InDelta(t, 186.0, global["net_amount"], 1e-9)
	assert.InDelta(t, 55.8, global["commission"], 1e-9)
	assert.InDelta(t, 100.01, global["average_ticket"], 1e-9)

	partners := resp["per_partner"].([]any)
	require.Len(t, partners, 1)
	p := partners[0].(map[string]any)
	assert.Equal(t, aggregate.UnconfiguredSlug, p["site_slug"])
	assert.Nil(t, p["average_ticket"])
	assert.Contains(t, p, "average_ticket")

	per := resp["period"].(map[string]any)
	assert.Equal(t, "2025-12-04T03:00:00Z", per["start"])
	assert.Len(t, resp["series"], 1)
}

func TestSummary_StorageUnavailable(t *testing.T) {
	svc := &stubService{summaryErr: fmt.Errorf("%w: list orders", service.ErrStorage)}
	r := newTestRouter(t, svc, nil)

	rec, d := do(t, r, http.MethodGet, "/api/reports/summary", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, codeStorageUnavailable, d.Error.Code)
}

func TestListOrders(t *testing.T) {
	svc := &stubService{
		ordersResp: []model.Order{
			{
				Gateway:               model.GatewayBlackcat,
				ExternalTransactionID: "bc-1",
				SiteSlug:              "black",
				Status:                model.StatusWaitingPayment,
				TotalAmountMinorUnits: 4990,
				Items:                 []model.Item{{Name: "Kit", Quantity: 1, UnitPriceMinorUnits: 4990}},
			},
		},
	}
	r := newTestRouter(t, svc, nil)

	rec, d := do(t, r, http.MethodGet, "/api/orders?status=Waiting_Payment&site=black", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "waiting_payment", svc.gotOrdersQry.Status)

	var resp struct {
		Orders []orderResponse `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(d.Data, &resp))
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, 49.9, resp.Orders[0].TotalAmount)
	assert.Equal(t, 49.9, resp.Orders[0].Items[0].UnitPrice)
	assert.Nil(t, resp.Orders[0].CreatedAt)
}

func TestLedger(t *testing.T) {
	svc := &stubService{
		ledgerResp: service.PartnerLedger{
			PartnerID: "p1",
			Scope:     service.ScopeAllTime,
			Sites:     []string{"white"},
			Ledger: ledger.Ledger{
				NetMinor:            20000,
				AdSpendMinor:        5000,
				NetAfterAdsMinor:    15000,
				CommissionSigned:    decimal.RequireFromString("45"),
				CommissionGenerated: decimal.RequireFromString("45"),
				PaidMinor:           10000,
				Balance:             decimal.RequireFromString("-55"),
			},
		},
	}
	r := newTestRouter(t, svc, nil)

	rec, d := do(t, r, http.MethodGet, "/api/partners/p1/ledger?scope=all_time", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ScopeAllTime, svc.gotScope)

	var resp ledgerResponse
	require.NoError(t, json.Unmarshal(d.Data, &resp))
	assert.Equal(t, "p1", resp.PartnerID)
	assert.Equal(t, "all_time", resp.Scope)
	assert.Equal(t, []string{"white"}, resp.Sites)
	assert.Equal(t, 150.0, resp.NetAfterAds)
	assert.Equal(t, 45.0, resp.CommissionGenerated)
	assert.Equal(t, 100.0, resp.TotalPaid)
	assert.Equal(t, -55.0, resp.Balance)
}

func TestLedger_NoSitesIsEmptyList(t *testing.T) {
	svc := &stubService{ledgerResp: service.PartnerLedger{PartnerID: "ghost"}}
	r := newTestRouter(t, svc, nil)

	rec, _ := do(t, r, http.MethodGet, "/api/partners/ghost/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sites":[]`)
}

func TestRecordPayment(t *testing.T) {
	t.Run("amount converted to minor units", func(t *testing.T) {
		svc := &stubService{paymentResp: model.PartnerPayment{ID: 7, PartnerID: "p1", AmountMinorUnits: 12345}}
		r := newTestRouter(t, svc, nil)

		rec, d := do(t, r, http.MethodPost, "/api/partners/p1/payments", []byte(`{"amount":123.45,"note":"pix"}`))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "p1", svc.gotPayment.PartnerID)
		assert.Equal(t, int64(12345), svc.gotPayment.AmountMinorUnits)
		assert.Equal(t, "pix", svc.gotPayment.Note)

		var resp paymentResponse
		require.NoError(t, json.Unmarshal(d.Data, &resp))
		assert.Equal(t, 123.45, resp.Amount)
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := &stubService{}
		r := newTestRouter(t, svc, nil)

		rec, d := do(t, r, http.MethodPost, "/api/partners/p1/payments", []byte(`{"amount":`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, codeInvalidInput, d.Error.Code)
		assert.Empty(t, svc.gotPayment.PartnerID)
	})

	t.Run("validation error", func(t *testing.T) {
		svc := &stubService{paymentErr: fmt.Errorf("%w: amount must be non-zero", service.ErrInvalidInput)}
		r := newTestRouter(t, svc, nil)

		rec, d := do(t, r, http.MethodPost, "/api/partners/p1/payments", []byte(`{"amount":0}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, codeInvalidInput, d.Error.Code)
		assert.Contains(t, d.Error.Message, "non-zero")
	})
}

func TestListPayments(t *testing.T) {
	svc := &stubService{paymentsList: []model.PartnerPayment{{ID: 1, PartnerID: "p1", AmountMinorUnits: 500}}}
	r := newTestRouter(t, svc, nil)

	rec, d := do(t, r, http.MethodGet, "/api/partners/p1/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []paymentResponse
	require.NoError(t, json.Unmarshal(d.Data, &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, 5.0, resp[0].Amount)
}

func TestRecordAdSpend(t *testing.T) {
	svc := &stubService{adSpendResp: model.AdSpend{ID: 3, SiteSlug: "white", SiteName: "White", AmountMinorUnits: 5000, ReferenceDate: "2025-12-04"}}
	r := newTestRouter(t, svc, nil)

	body := `{"partner_id":"p1","site_slug":"white","reference_date":"2025-12-04","amount":"50.00","note":"meta"}`
	rec, d := do(t, r, http.MethodPost, "/api/ad-spend", []byte(body))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(5000), svc.gotAdSpend.AmountMinorUnits)
	assert.Equal(t, "2025-12-04", svc.gotAdSpend.ReferenceDate)

	var resp adSpendResponse
	require.NoError(t, json.Unmarshal(d.Data, &resp))
	assert.Equal(t, "White", resp.SiteName)
	assert.Equal(t, 50.0, resp.Amount)
}

func TestListAdSpend(t *testing.T) {
	svc := &stubService{adSpendList: []model.AdSpend{{ID: 1, AmountMinorUnits: 1999}}}
	r := newTestRouter(t, svc, nil)

	rec, d := do(t, r, http.MethodGet, "/api/ad-spend?period=last7", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AdSpend []adSpendResponse `json:"ad_spend"`
	}
	require.NoError(t, json.Unmarshal(d.Data, &resp))
	require.Len(t, resp.AdSpend, 1)
	assert.Equal(t, 19.99, resp.AdSpend[0].Amount)
}

func TestWebhook_SecretCheckedBeforeDecompression(t *testing.T) {
	secrets := WebhookSecrets{
		model.GatewayBuckpay: middleware.NewWebhookSecret("", "s3cret"),
	}

	t.Run("wrong secret with broken gzip is 401", func(t *testing.T) {
		svc := &stubService{}
		r := newTestRouter(t, svc, secrets)

		rec, d := do(t, r, http.MethodPost, "/webhooks/buckpay", []byte("garbage"),
			"Content-Encoding", "gzip", middleware.DefaultSecretHeader, "wrong")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "unauthorized", d.Error.Code)
		assert.Empty(t, svc.gotGateway)
	})

	t.Run("valid secret with broken gzip is JSON 400", func(t *testing.T) {
		svc := &stubService{}
		r := newTestRouter(t, svc, secrets)

		rec, d := do(t, r, http.MethodPost, "/webhooks/buckpay", []byte("garbage"),
			"Content-Encoding", "gzip", middleware.DefaultSecretHeader, "s3cret")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, codeInvalidPayload, d.Error.Code)
		assert.NotEmpty(t, d.Error.RequestID)
		assert.Empty(t, svc.gotGateway)
	})

	t.Run("valid secret with gzipped payload reaches ingest", func(t *testing.T) {
		svc := &stubService{}
		r := newTestRouter(t, svc, secrets)

		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write([]byte(`{"event":"transaction.processed"}`))
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		rec, _ := do(t, r, http.MethodPost, "/webhooks/buckpay?site=white", buf.Bytes(),
			"Content-Encoding", "gzip", middleware.DefaultSecretHeader, "s3cret")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "white", svc.gotSite)
		assert.JSONEq(t, `{"event":"transaction.processed"}`, string(svc.gotPayload))
	})
}

func TestLedger_CatalogUnavailable(t *testing.T) {
	svc := &stubService{ledgerErr: fmt.Errorf("%w: sites of partner p1", service.ErrCatalogUnavailable)}
	r := newTestRouter(t, svc, nil)

	rec, d := do(t, r, http.MethodGet, "/api/partners/p1/ledger", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, codeCatalogUnavailable, d.Error.Code)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &stubService{}, nil)
	rec, _ := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	r = newTestRouter(t, &stubService{pingErr: errors.New("down")}, nil)
	rec, d := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, codeStorageUnavailable, d.Error.Code)
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	r := newTestRouter(t, &stubService{}, nil)

	rec, d := do(t, r, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, d.Error.Code)

	rec, d = do(t, r, http.MethodGet, "/webhooks/buckpay", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, codeMethodNotAllowed, d.Error.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}
