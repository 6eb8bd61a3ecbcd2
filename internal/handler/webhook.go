package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/gateway"
	"github.com/mmeshcher/partner-ledger/internal/middleware"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/service"
)

const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Gateway               string `json:"gateway"`
	ExternalTransactionID string `json:"external_transaction_id"`
	SiteSlug              string `json:"site_slug"`
	Status                string `json:"status"`
	Inserted              bool   `json:"inserted"`
	NeedsReview           bool   `json:"needs_review"`
}

// Webhook возвращает обработчик вебхука шлюза g. Сайт берётся из query-параметра siteParam.
func (h *Handler) Webhook(g model.Gateway, siteParam string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			h.logger.Warn("read webhook body", zap.String("gateway", string(g)), zap.Error(err))
			writeError(w, r, http.StatusBadRequest, codeInvalidPayload, "cannot read request body")
			return
		}

		res, err := h.service.Ingest(r.Context(), g, body, r.URL.Query().Get(siteParam))
		if err != nil {
			switch {
			case errors.Is(err, gateway.ErrInvalidPayload):
				h.logger.Warn("invalid webhook payload",
					zap.String("gateway", string(g)),
					zap.Error(err),
					zap.ByteString("body", body),
					zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
				)
				writeError(w, r, http.StatusBadRequest, codeInvalidPayload, err.Error())
			case errors.Is(err, service.ErrUnknownGateway):
				writeError(w, r, http.StatusNotFound, codeNotFound, err.Error())
			default:
				h.fail(w, r, err, "ingest webhook")
			}
			return
		}

		writeJSON(w, http.StatusOK, webhookResponse{
			Gateway:               string(res.Order.Gateway),
			ExternalTransactionID: res.Order.ExternalTransactionID,
			SiteSlug:              res.Order.SiteSlug,
			Status:                string(res.Order.Status),
			Inserted:              res.Inserted,
			NeedsReview:           res.NeedsReview,
		})
	}
}
