package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mmeshcher/partner-ledger/internal/aggregate"
	"github.com/mmeshcher/partner-ledger/internal/ledger"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/period"
	"github.com/mmeshcher/partner-ledger/internal/repository"
	"github.com/mmeshcher/partner-ledger/internal/validation"
)

// PaymentScope определяет, какие выплаты учитываются в балансе.
type PaymentScope string

const (
	// ScopePeriod учитывает выплаты, созданные внутри отчётного периода.
	ScopePeriod PaymentScope = "period"
	// ScopeAllTime учитывает все выплаты партнёра.
	ScopeAllTime PaymentScope = "all_time"
)

// ParseScope разбирает область выплат. Неизвестные значения дают ScopePeriod.
func ParseScope(s string) PaymentScope {
	if PaymentScope(strings.ToLower(strings.TrimSpace(s))) == ScopeAllTime {
		return ScopeAllTime
	}
	return ScopePeriod
}

// AdSpendInput описывает ручную запись рекламного расхода. Сумма в минимальных единицах,
// отрицательная сумма означает корректировку.
type AdSpendInput struct {
	PartnerID        string `validate:"required,max=128"`
	SiteSlug         string `validate:"required,slug"`
	ReferenceDate    string `validate:"required,date"`
	AmountMinorUnits int64  `validate:"ne=0"`
	Note             string `validate:"max=500"`
}

// PaymentInput описывает выплату партнёра оператору.
type PaymentInput struct {
	PartnerID        string `validate:"required,max=128"`
	AmountMinorUnits int64  `validate:"ne=0"`
	Note             string `validate:"max=500"`
}

// PartnerLedger содержит баланс комиссии партнёра за период.
type PartnerLedger struct {
	PartnerID string
	Range     period.Range
	Scope     PaymentScope
	Sites     []string
	Ledger    ledger.Ledger
}

// RecordAdSpend добавляет запись о рекламном расходе. Название сайта берётся из каталога.
func (s *Service) RecordAdSpend(ctx context.Context, in AdSpendInput) (model.AdSpend, error) {
	in.SiteSlug = validation.NormalizeSlug(in.SiteSlug)
	in.PartnerID = strings.TrimSpace(in.PartnerID)
	if err := s.check(in); err != nil {
		return model.AdSpend{}, err
	}

	// Без каталога название сайта совпадает со slug.
	siteName := in.SiteSlug
	projects, _ := s.projects(ctx)
	for _, p := range projects {
		if p.SiteSlug == in.SiteSlug {
			siteName = p.SiteName
			break
		}
	}

	a, err := s.repo.CreateAdSpend(ctx, model.AdSpend{
		PartnerID:        in.PartnerID,
		SiteSlug:         in.SiteSlug,
		SiteName:         siteName,
		ReferenceDate:    in.ReferenceDate,
		AmountMinorUnits: in.AmountMinorUnits,
		Note:             in.Note,
		CreatedAt:        s.now().UTC(),
	})
	if err != nil {
		return model.AdSpend{}, storageError("create ad spend", err)
	}
	return a, nil
}

// AdSpendQuery задаёт параметры выборки рекламных расходов.
type AdSpendQuery struct {
	PeriodQuery
	SiteSlug string
}

// ListAdSpend возвращает записи расходов, чья дата попадает в период.
func (s *Service) ListAdSpend(ctx context.Context, q AdSpendQuery) ([]model.AdSpend, period.Range, error) {
	r := s.Resolve(q.PeriodQuery)
	first, last := r.DateBounds()

	f := repository.AdSpendFilter{FromDate: first, ToDate: last}
	if slug := validation.NormalizeSlug(q.SiteSlug); slug != "" {
		f.SiteSlugs = []string{slug}
	}

	spend, err := s.repo.ListAdSpend(ctx, f)
	if err != nil {
		return nil, r, storageError("list ad spend", err)
	}
	return spend, r, nil
}

// RecordPayment добавляет выплату партнёра. Прежние выплаты не изменяются.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (model.PartnerPayment, error) {
	in.PartnerID = strings.TrimSpace(in.PartnerID)
	if err := s.check(in); err != nil {
		return model.PartnerPayment{}, err
	}

	p, err := s.repo.CreatePayment(ctx, model.PartnerPayment{
		PartnerID:        in.PartnerID,
		AmountMinorUnits: in.AmountMinorUnits,
		Note:             in.Note,
		CreatedAt:        s.now().UTC(),
	})
	if err != nil {
		return model.PartnerPayment{}, storageError("create payment", err)
	}
	return p, nil
}

// ListPayments возвращает все выплаты партнёра.
func (s *Service) ListPayments(ctx context.Context, partnerID string) ([]model.PartnerPayment, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return nil, fmt.Errorf("%w: empty partner id", ErrInvalidInput)
	}
	payments, err := s.repo.ListPayments(ctx, repository.PaymentFilter{PartnerID: partnerID})
	if err != nil {
		return nil, storageError("list payments", err)
	}
	return payments, nil
}

// PartnerLedger считает комиссию и баланс партнёра по всем его сайтам из каталога.
// Баланс выводится из сумм при каждом запросе.
func (s *Service) PartnerLedger(ctx context.Context, partnerID string, q PeriodQuery, scope PaymentScope) (PartnerLedger, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return PartnerLedger{}, fmt.Errorf("%w: empty partner id", ErrInvalidInput)
	}
	r := s.Resolve(q)

	projects, ok := s.projects(ctx)
	if !ok {
		return PartnerLedger{}, fmt.Errorf("%w: sites of partner %s", ErrCatalogUnavailable, partnerID)
	}
	var sites []string
	for _, p := range projects {
		if p.OwnerID == partnerID {
			sites = append(sites, p.SiteSlug)
		}
	}
	slices.Sort(sites)

	var netMinor, adMinor int64
	if len(sites) > 0 {
		orders, err := s.repo.ListOrders(ctx, repository.OrderFilter{
			From:     r.Start,
			To:       r.End,
			Statuses: []model.OrderStatus{model.StatusPaid},
		})
		if err != nil {
			return PartnerLedger{}, storageError("list orders", err)
		}
		for _, o := range orders {
			if slices.Contains(sites, o.SiteSlug) && aggregate.Contributes(o, r, aggregate.Filters{}) {
				netMinor += o.NetAmountMinorUnits
			}
		}

		first, last := r.DateBounds()
		spend, err := s.repo.ListAdSpend(ctx, repository.AdSpendFilter{FromDate: first, ToDate: last, SiteSlugs: sites})
		if err != nil {
			return PartnerLedger{}, storageError("list ad spend", err)
		}
		for _, a := range spend {
			adMinor += a.AmountMinorUnits
		}
	}

	pf := repository.PaymentFilter{PartnerID: partnerID}
	if scope != ScopeAllTime {
		scope = ScopePeriod
		pf.From, pf.To = r.Start, r.End
	}
	payments, err := s.repo.ListPayments(ctx, pf)
	if err != nil {
		return PartnerLedger{}, storageError("list payments", err)
	}
	var paidMinor int64
	for _, p := range payments {
		paidMinor += p.AmountMinorUnits
	}

	return PartnerLedger{
		PartnerID: partnerID,
		Range:     r,
		Scope:     scope,
		Sites:     sites,
		Ledger: ledger.Compute(ledger.Input{
			NetMinor:     netMinor,
			AdSpendMinor: adMinor,
			PaidMinor:    paidMinor,
			Rate:         s.rate,
		}),
	}, nil
}
