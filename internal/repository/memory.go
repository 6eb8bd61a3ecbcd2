package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mmeshcher/partner-ledger/internal/model"
)

type orderKey struct {
	gateway model.Gateway
	id      string
}

// MemoryRepository хранит данные в памяти процесса. Атомарность upsert обеспечивается
// мьютексом, поэтому хранилище пригодно только для одного экземпляра сервиса и тестов.
type MemoryRepository struct {
	mu       sync.RWMutex
	orders   map[orderKey]model.Order
	adSpend  []model.AdSpend
	payments []model.PartnerPayment
	projects []model.PartnerProject
	seq      int64
}

// NewMemoryRepository создаёт пустое хранилище с указанным каталогом проектов.
func NewMemoryRepository(projects ...model.PartnerProject) *MemoryRepository {
	return &MemoryRepository{
		orders:   make(map[orderKey]model.Order),
		projects: slices.Clone(projects),
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

// Ping всегда успешен.
func (r *MemoryRepository) Ping(context.Context) error {
	return nil
}

// UpsertOrder применяет событие к заказу по естественному ключу.
func (r *MemoryRepository) UpsertOrder(_ context.Context, ev model.Event, now time.Time) (model.Order, bool, error) {
	key := orderKey{gateway: ev.Gateway, id: ev.ExternalTransactionID}
	next := orderFromEvent(ev, now)

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.orders[key]
	if exists {
		next.CreatedAt = prev.CreatedAt
		next.Status = model.ResolveStatus(prev.Status, next.Status)
	} else {
		next.CreatedAt = now
	}

	r.orders[key] = next
	return cloneOrder(next), !exists, nil
}

// GetOrder возвращает заказ по естественному ключу.
func (r *MemoryRepository) GetOrder(_ context.Context, gateway model.Gateway, externalID string) (model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderKey{gateway: gateway, id: externalID}]
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// ListOrders возвращает заказы по фильтру, по возрастанию created_at.
func (r *MemoryRepository) ListOrders(_ context.Context, f OrderFilter) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Order
	for _, o := range r.orders {
		if f.matches(o) {
			res = append(res, cloneOrder(o))
		}
	}

	slices.SortFunc(res, func(a, b model.Order) int {
		return cmp.Or(
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.Gateway, b.Gateway),
			cmp.Compare(a.ExternalTransactionID, b.ExternalTransactionID),
		)
	})

	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

// CreateAdSpend добавляет запись о рекламных расходах.
func (r *MemoryRepository) CreateAdSpend(_ context.Context, a model.AdSpend) (model.AdSpend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	a.ID = r.seq
	r.adSpend = append(r.adSpend, a)
	return a, nil
}

// ListAdSpend возвращает рекламные расходы по фильтру.
func (r *MemoryRepository) ListAdSpend(_ context.Context, f AdSpendFilter) ([]model.AdSpend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.AdSpend
	for _, a := range r.adSpend {
		if f.matches(a) {
			res = append(res, a)
		}
	}
	slices.SortStableFunc(res, func(a, b model.AdSpend) int {
		return cmp.Compare(a.ReferenceDate, b.ReferenceDate)
	})
	return res, nil
}

// CreatePayment добавляет запись о выплате партнёра.
func (r *MemoryRepository) CreatePayment(_ context.Context, p model.PartnerPayment) (model.PartnerPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	p.ID = r.seq
	r.payments = append(r.payments, p)
	return p, nil
}

// ListPayments возвращает выплаты по фильтру в порядке добавления.
func (r *MemoryRepository) ListPayments(_ context.Context, f PaymentFilter) ([]model.PartnerPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.PartnerPayment
	for _, p := range r.payments {
		if f.matches(p) {
			res = append(res, p)
		}
	}
	return res, nil
}

// Projects возвращает каталог проектов.
func (r *MemoryRepository) Projects(context.Context) ([]model.PartnerProject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.projects), nil
}

func cloneOrder(o model.Order) model.Order {
	o.Items = slices.Clone(o.Items)
	if o.Items == nil {
		o.Items = []model.Item{}
	}
	return o
}
