// Package repository содержит хранилища заказов, рекламных расходов и выплат партнёров.
package repository

import (
	"errors"
	"time"

	"github.com/mmeshcher/partner-ledger/internal/model"
)

// ErrOrderNotFound возвращается, если заказ с указанным естественным ключом не найден.
var ErrOrderNotFound = errors.New("order not found")

// OrderFilter описывает выборку заказов. Нулевые поля не ограничивают выборку.
type OrderFilter struct {
	From     time.Time
	To       time.Time
	SiteSlug string
	Gateway  model.Gateway
	Statuses []model.OrderStatus
	Limit    int
}

// AdSpendFilter описывает выборку рекламных расходов по локальным датам включительно.
type AdSpendFilter struct {
	FromDate  string
	ToDate    string
	SiteSlugs []string
}

// PaymentFilter описывает выборку выплат партнёра. Нулевые From/To означают «без границы».
type PaymentFilter struct {
	PartnerID string
	From      time.Time
	To        time.Time
}

func (f OrderFilter) matches(o model.Order) bool {
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !o.CreatedAt.Before(f.To) {
		return false
	}
	if f.SiteSlug != "" && o.SiteSlug != f.SiteSlug {
		return false
	}
	if f.Gateway != "" && o.Gateway != f.Gateway {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f AdSpendFilter) matches(a model.AdSpend) bool {
	if f.FromDate != "" && a.ReferenceDate < f.FromDate {
		return false
	}
	if f.ToDate != "" && a.ReferenceDate > f.ToDate {
		return false
	}
	if len(f.SiteSlugs) > 0 {
		for _, s := range f.SiteSlugs {
			if a.SiteSlug == s {
				return true
			}
		}
		return false
	}
	return true
}

func (f PaymentFilter) matches(p model.PartnerPayment) bool {
	if f.PartnerID != "" && p.PartnerID != f.PartnerID {
		return false
	}
	if !f.From.IsZero() && p.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !p.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// orderFromEvent строит заказ из события; CreatedAt заполняет вызывающий.
func orderFromEvent(ev model.Event, now time.Time) model.Order {
	items := ev.Items
	if items == nil {
		items = []model.Item{}
	}
	return model.Order{
		Gateway:               ev.Gateway,
		ExternalTransactionID: ev.ExternalTransactionID,
		SiteSlug:              ev.SiteSlug,
		Status:                ev.Status,
		RawProviderStatus:     ev.RawStatus,
		RawProviderEvent:      ev.RawEvent,
		PaymentMethod:         ev.PaymentMethod,
		TotalAmountMinorUnits: ev.TotalAmountMinorUnits,
		NetAmountMinorUnits:   ev.NetAmountMinorUnits,
		Customer:              ev.Customer,
		Items:                 items,
		Attribution:           ev.Attribution,
		OccurredAt:            ev.OccurredAt,
		UpdatedAt:             now,
	}
}
