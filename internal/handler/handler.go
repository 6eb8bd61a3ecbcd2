// Package handler содержит HTTP-обработчики вебхуков шлюзов и отчётного API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/aggregate"
	"github.com/mmeshcher/partner-ledger/internal/middleware"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/period"
	"github.com/mmeshcher/partner-ledger/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	Ingest(ctx context.Context, g model.Gateway, payload []byte, siteSlug string) (service.IngestResult, error)
	Summary(ctx context.Context, q service.SummaryQuery) (aggregate.Report, error)
	ListOrders(ctx context.Context, q service.OrdersQuery) ([]model.Order, period.Range, error)
	RecordAdSpend(ctx context.Context, in service.AdSpendInput) (model.AdSpend, error)
	ListAdSpend(ctx context.Context, q service.AdSpendQuery) ([]model.AdSpend, period.Range, error)
	RecordPayment(ctx context.Context, in service.PaymentInput) (model.PartnerPayment, error)
	ListPayments(ctx context.Context, partnerID string) ([]model.PartnerPayment, error)
	PartnerLedger(ctx context.Context, partnerID string, q service.PeriodQuery, scope service.PaymentScope) (service.PartnerLedger, error)
}

// WebhookSecrets хранит проверки общего секрета по шлюзам. Шлюз без записи принимается без проверки.
type WebhookSecrets map[model.Gateway]*middleware.WebhookSecret

// Handler реализует HTTP-обработчики сервиса.
type Handler struct {
	service Service
	logger  *zap.Logger
	secrets WebhookSecrets
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, secrets WebhookSecrets) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secrets == nil {
		secrets = WebhookSecrets{}
	}
	return &Handler{
		service: s,
		logger:  logger,
		secrets: secrets,
	}
}

// Health сообщает о доступности хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, codeStorageUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"storage": "ok"})
}

// fail переводит ошибку сервиса в HTTP-ответ.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, err.Error())
	case errors.Is(err, service.ErrCatalogUnavailable):
		h.logger.Warn(msg, zap.Error(err), zap.String("request_id", middleware.RequestIDFromContext(r.Context())))
		writeError(w, r, http.StatusServiceUnavailable, codeCatalogUnavailable, "partner catalog unavailable, retry later")
	case errors.Is(err, service.ErrStorage):
		h.logger.Error(msg, zap.Error(err), zap.String("request_id", middleware.RequestIDFromContext(r.Context())))
		writeError(w, r, http.StatusServiceUnavailable, codeStorageUnavailable, "storage unavailable, retry later")
	default:
		h.logger.Error(msg, zap.Error(err), zap.String("request_id", middleware.RequestIDFromContext(r.Context())))
		writeError(w, r, http.StatusInternalServerError, codeInternal, http.StatusText(http.StatusInternalServerError))
	}
}
