package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/aggregate"
	"github.com/mmeshcher/partner-ledger/internal/cache"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/period"
	"github.com/mmeshcher/partner-ledger/internal/repository"
	"github.com/mmeshcher/partner-ledger/internal/validation"
)

// ordersLimit ограничивает сырую ленту заказов.
const ordersLimit = 1000

// PeriodQuery выбирает отчётный период: имя периода и необязательную дату YYYY-MM-DD.
type PeriodQuery struct {
	Period string
	Date   string
}

// Resolve переводит запрос в интервал. Неизвестный период или дата заменяются сегодняшним днём.
func (s *Service) Resolve(q PeriodQuery) period.Range {
	return period.Resolve(period.ParsePeriod(q.Period), q.Date, s.offset, s.now())
}

// SummaryQuery задаёт параметры сводного отчёта.
type SummaryQuery struct {
	PeriodQuery
	SiteSlug string
	Gateway  model.Gateway
}

// Summary строит сводку по оплаченным заказам за период. Отчёт согласован в конечном счёте:
// вебхуки, пришедшие во время построения, могут попасть в него частично.
func (s *Service) Summary(ctx context.Context, q SummaryQuery) (aggregate.Report, error) {
	r := s.Resolve(q.PeriodQuery)
	filters := aggregate.Filters{
		SiteSlug: validation.NormalizeSlug(q.SiteSlug),
		Gateway:  q.Gateway,
	}

	key := cache.Key("summary",
		string(r.Period),
		strconv.FormatInt(r.Start.Unix(), 10),
		strconv.FormatInt(r.End.Truncate(time.Minute).Unix(), 10),
		filters.SiteSlug,
		string(filters.Gateway),
	)

	var report aggregate.Report
	if s.cache != nil {
		hit, err := s.cache.Get(ctx, key, &report)
		if err != nil {
			s.logger.Warn("report cache read failed", zap.Error(err))
		}
		if hit {
			return report, nil
		}
	}

	orders, err := s.repo.ListOrders(ctx, repository.OrderFilter{
		From:     r.Start,
		To:       r.End,
		SiteSlug: filters.SiteSlug,
		Gateway:  filters.Gateway,
		Statuses: []model.OrderStatus{model.StatusPaid},
	})
	if err != nil {
		return aggregate.Report{}, storageError("list orders", err)
	}

	first, last := r.DateBounds()
	spendFilter := repository.AdSpendFilter{FromDate: first, ToDate: last}
	if filters.SiteSlug != "" {
		spendFilter.SiteSlugs = []string{filters.SiteSlug}
	}
	spend, err := s.repo.ListAdSpend(ctx, spendFilter)
	if err != nil {
		return aggregate.Report{}, storageError("list ad spend", err)
	}

	projects, catalogOK := s.projects(ctx)

	report = aggregate.Summarize(aggregate.Input{
		Range:   r,
		Orders:  orders,
		AdSpend: spend,
		Catalog: projects,
		Rate:    s.rate,
		Filters: filters,
	})

	if s.cache != nil && catalogOK {
		if err := s.cache.Set(ctx, key, report); err != nil {
			s.logger.Warn("report cache write failed", zap.Error(err))
		}
	}

	return report, nil
}

// OrdersQuery задаёт параметры сырой ленты заказов.
type OrdersQuery struct {
	PeriodQuery
	SiteSlug string
	Status   string
}

// ListOrders возвращает заказы любых статусов, созданные в периоде.
func (s *Service) ListOrders(ctx context.Context, q OrdersQuery) ([]model.Order, period.Range, error) {
	r := s.Resolve(q.PeriodQuery)

	f := repository.OrderFilter{
		From:     r.Start,
		To:       r.End,
		SiteSlug: validation.NormalizeSlug(q.SiteSlug),
		Limit:    ordersLimit,
	}
	if q.Status != "" {
		status := model.OrderStatus(q.Status)
		if !status.Valid() {
			return nil, r, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, q.Status)
		}
		f.Statuses = []model.OrderStatus{status}
	}

	orders, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, r, storageError("list orders", err)
	}
	return orders, r, nil
}
