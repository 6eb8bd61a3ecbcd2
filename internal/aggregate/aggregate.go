// Package aggregate строит финансовые сводки по заказам за отчётный период.
//
// Summarize не имеет побочных эффектов и зависит только от снимка заказов, расходов и каталога.
// Все суммы считаются целыми минимальными единицами; комиссия умножается один раз
// на итоговую сумму.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/partner-ledger/internal/ledger"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/money"
	"github.com/mmeshcher/partner-ledger/internal/period"
)

// UnconfiguredSlug объединяет заказы сайтов, которых нет в каталоге.
const UnconfiguredSlug = "unconfigured"

// Filters ограничивает выборку заказов.
type Filters struct {
	SiteSlug string
	Gateway  model.Gateway
}

// Input содержит снимок данных на момент построения отчёта.
type Input struct {
	Range   period.Range
	Orders  []model.Order
	AdSpend []model.AdSpend
	Catalog []model.PartnerProject
	Rate    decimal.Decimal
	Filters Filters
}

// Summary содержит итоги по оплаченным заказам.
type Summary struct {
	OrderCount int
	GrossMinor int64
	NetMinor   int64
	Commission decimal.Decimal
	// AverageTicket равен nil, если заказов нет.
	AverageTicket *decimal.Decimal
}

// PartnerSummary содержит итоги по одному сайту партнёра.
type PartnerSummary struct {
	SiteSlug    string
	SiteName    string
	PartnerName string
	OwnerID     string
	Configured  bool
	Summary
	Ledger ledger.Ledger
}

// Bucket описывает точку временного ряда с нарастающими итогами.
type Bucket struct {
	Key        string
	OrderCount int
	GrossMinor int64
	NetMinor   int64
}

// Report возвращается из Summarize.
type Report struct {
	Range        period.Range
	Global       Summary
	AdSpendMinor int64
	PerPartner   []PartnerSummary
	Series       []Bucket
}

type totals struct {
	count int
	gross int64
	net   int64
}

func (t *totals) add(o model.Order) {
	t.count++
	t.gross += o.TotalAmountMinorUnits
	t.net += o.NetAmountMinorUnits
}

func (t totals) summary(rate decimal.Decimal) Summary {
	s := Summary{
		OrderCount: t.count,
		GrossMinor: t.gross,
		NetMinor:   t.net,
		Commission: money.Commission(t.net, rate),
	}
	if t.count > 0 {
		avg := decimal.NewFromInt(t.gross).Div(decimal.NewFromInt(int64(t.count) * money.Scale)).Round(2)
		s.AverageTicket = &avg
	}
	return s
}

// Contributes сообщает, входит ли заказ в выручку отчёта.
func Contributes(o model.Order, r period.Range, f Filters) bool {
	if o.Status != model.StatusPaid {
		return false
	}
	if !r.Contains(o.CreatedAt) {
		return false
	}
	if f.SiteSlug != "" && o.SiteSlug != f.SiteSlug {
		return false
	}
	if f.Gateway != "" && o.Gateway != f.Gateway {
		return false
	}
	return true
}

// Summarize строит глобальную сводку, сводку по партнёрам и временной ряд.
func Summarize(in Input) Report {
	catalog := make(map[string]model.PartnerProject, len(in.Catalog))
	for _, p := range in.Catalog {
		catalog[p.SiteSlug] = p
	}

	partnerKey := func(slug string) string {
		if _, ok := catalog[slug]; ok {
			return slug
		}
		return UnconfiguredSlug
	}

	var global totals
	perPartner := make(map[string]*totals)
	var paid []model.Order

	for _, o := range in.Orders {
		if !Contributes(o, in.Range, in.Filters) {
			continue
		}
		paid = append(paid, o)
		global.add(o)

		key := partnerKey(o.SiteSlug)
		t, ok := perPartner[key]
		if !ok {
			t = &totals{}
			perPartner[key] = t
		}
		t.add(o)
	}

	adSpend := make(map[string]int64)
	var adTotal int64
	for _, a := range in.AdSpend {
		if !in.Range.ContainsDate(a.ReferenceDate) {
			continue
		}
		if in.Filters.SiteSlug != "" && a.SiteSlug != in.Filters.SiteSlug {
			continue
		}
		adSpend[partnerKey(a.SiteSlug)] += a.AmountMinorUnits
		adTotal += a.AmountMinorUnits
	}

	for _, p := range in.Catalog {
		if in.Filters.SiteSlug != "" && p.SiteSlug != in.Filters.SiteSlug {
			continue
		}
		if _, ok := perPartner[p.SiteSlug]; !ok {
			perPartner[p.SiteSlug] = &totals{}
		}
	}
	if _, ok := adSpend[UnconfiguredSlug]; ok && perPartner[UnconfiguredSlug] == nil {
		perPartner[UnconfiguredSlug] = &totals{}
	}

	partners := make([]PartnerSummary, 0, len(perPartner))
	for key, t := range perPartner {
		ps := PartnerSummary{
			SiteSlug:    key,
			SiteName:    key,
			PartnerName: "Unconfigured",
			Summary:     t.summary(in.Rate),
		}
		if p, ok := catalog[key]; ok {
			ps.SiteName = p.SiteName
			ps.PartnerName = p.PartnerName
			ps.OwnerID = p.OwnerID
			ps.Configured = true
		}
		ps.Ledger = ledger.Compute(ledger.Input{
			NetMinor:     t.net,
			AdSpendMinor: adSpend[key],
			Rate:         in.Rate,
		})
		partners = append(partners, ps)
	}

	slices.SortFunc(partners, func(a, b PartnerSummary) int {
		return cmp.Or(
			cmp.Compare(b.GrossMinor, a.GrossMinor),
			cmp.Compare(a.SiteSlug, b.SiteSlug),
		)
	})

	return Report{
		Range:        in.Range,
		Global:       global.summary(in.Rate),
		AdSpendMinor: adTotal,
		PerPartner:   partners,
		Series:       Series(in.Range, paid),
	}
}

// Series строит ряд с нарастающими итогами: по часам для одних суток и по дням
// для многодневного интервала. Заказы должны уже попадать в интервал.
func Series(r period.Range, orders []model.Order) []Bucket {
	var keys []string
	keyOf := func(o model.Order) string { return r.LocalDate(o.CreatedAt) }

	if r.SingleDay() {
		keys = make([]string, 24)
		for h := range keys {
			keys[h] = fmt.Sprintf("%02d", h)
		}
		keyOf = func(o model.Order) string { return fmt.Sprintf("%02d", r.LocalHour(o.CreatedAt)) }
	} else {
		keys = r.Days()
	}

	deltas := make(map[string]totals, len(keys))
	for _, o := range orders {
		k := keyOf(o)
		t := deltas[k]
		t.add(o)
		deltas[k] = t
	}

	buckets := make([]Bucket, 0, len(keys))
	var running totals
	for _, k := range keys {
		d := deltas[k]
		running.count += d.count
		running.gross += d.gross
		running.net += d.net
		buckets = append(buckets, Bucket{
			Key:        k,
			OrderCount: running.count,
			GrossMinor: running.gross,
			NetMinor:   running.net,
		})
	}
	return buckets
}
