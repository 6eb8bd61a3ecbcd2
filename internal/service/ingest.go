package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/model"
)

// IngestResult описывает итог обработки одного вебхука.
type IngestResult struct {
	Order    model.Order
	Inserted bool
	// NeedsReview выставляется для статусов, отсутствующих в таблице шлюза.
	NeedsReview bool
}

// Ingest разбирает вебхук шлюза и записывает его в журнал заказов.
// Ошибки разбора возвращаются как *gateway.ValidationError до любой записи,
// сбои хранилища оборачиваются в ErrStorage.
func (s *Service) Ingest(ctx context.Context, g model.Gateway, payload []byte, siteSlug string) (IngestResult, error) {
	adapter, ok := s.gateways.Get(g)
	if !ok {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrUnknownGateway, g)
	}

	ev, err := adapter.Normalize(payload, siteSlug)
	if err != nil {
		return IngestResult{}, err
	}

	if ev.Unmapped {
		s.logger.Warn("unmapped gateway status",
			zap.String("gateway", string(ev.Gateway)),
			zap.String("transaction", ev.ExternalTransactionID),
			zap.String("event", ev.RawEvent),
			zap.String("status", ev.RawStatus),
		)
	}

	order, inserted, err := s.repo.UpsertOrder(ctx, ev, s.now().UTC())
	if err != nil {
		return IngestResult{}, storageError("upsert order", err)
	}

	s.logger.Info("order upserted",
		zap.String("gateway", string(order.Gateway)),
		zap.String("transaction", order.ExternalTransactionID),
		zap.String("site", order.SiteSlug),
		zap.String("status", string(order.Status)),
		zap.Bool("inserted", inserted),
	)

	return IngestResult{Order: order, Inserted: inserted, NeedsReview: ev.Unmapped}, nil
}
