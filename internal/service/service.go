// Package service реализует бизнес-логику партнёрского учёта: приём вебхуков,
// отчёты по продажам, рекламные расходы и баланс комиссии партнёров.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/gateway"
	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/money"
	"github.com/mmeshcher/partner-ledger/internal/repository"
	"github.com/mmeshcher/partner-ledger/internal/validation"
)

var (
	// ErrStorage означает сбой хранилища. Вебхук с такой ошибкой шлюз должен доставить повторно.
	ErrStorage = errors.New("storage unavailable")
	// ErrUnknownGateway возвращается для шлюза без адаптера.
	ErrUnknownGateway = errors.New("unknown gateway")
	// ErrInvalidInput означает ошибку проверки ручного ввода.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCatalogUnavailable возвращается, когда без каталога нельзя определить сайты партнёра.
	ErrCatalogUnavailable = errors.New("partner catalog unavailable")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	UpsertOrder(ctx context.Context, ev model.Event, now time.Time) (model.Order, bool, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error)
	CreateAdSpend(ctx context.Context, a model.AdSpend) (model.AdSpend, error)
	ListAdSpend(ctx context.Context, f repository.AdSpendFilter) ([]model.AdSpend, error)
	CreatePayment(ctx context.Context, p model.PartnerPayment) (model.PartnerPayment, error)
	ListPayments(ctx context.Context, f repository.PaymentFilter) ([]model.PartnerPayment, error)
}

// Catalog отдаёт текущий каталог сайтов партнёров.
type Catalog interface {
	Projects(ctx context.Context) ([]model.PartnerProject, error)
}

// ReportCache кеширует готовые отчёты.
type ReportCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// Options задаёт параметры сервиса.
type Options struct {
	// OffsetMinutes задаёт фиксированное смещение локального времени партнёра от UTC.
	OffsetMinutes int
	// Rate задаёт долю комиссии; нулевое значение заменяется money.DefaultCommissionRate.
	Rate   decimal.Decimal
	Now    func() time.Time
	Cache  ReportCache
	Logger *zap.Logger
}

// Service содержит бизнес-логику партнёрского учёта.
type Service struct {
	repo     Repository
	gateways *gateway.Registry
	catalog  Catalog
	cache    ReportCache
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	offset   int
	rate     decimal.Decimal
}

// NewService создаёт сервис с указанным репозиторием, реестром шлюзов и каталогом.
func NewService(repo Repository, gateways *gateway.Registry, catalog Catalog, opts Options) *Service {
	s := &Service{
		repo:     repo,
		gateways: gateways,
		catalog:  catalog,
		cache:    opts.Cache,
		validate: validation.New(),
		logger:   opts.Logger,
		now:      opts.Now,
		offset:   opts.OffsetMinutes,
		rate:     opts.Rate,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rate.IsZero() {
		s.rate = money.DefaultCommissionRate
	}
	if s.gateways == nil {
		s.gateways = gateway.NewRegistry()
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Rate возвращает действующую ставку комиссии.
func (s *Service) Rate() decimal.Decimal {
	return s.rate
}

// projects читает каталог. Недоступный каталог не ломает отчёты: все сайты попадают в unconfigured.
func (s *Service) projects(ctx context.Context) ([]model.PartnerProject, bool) {
	if s.catalog == nil {
		return nil, true
	}
	projects, err := s.catalog.Projects(ctx)
	if err != nil {
		s.logger.Warn("partner catalog unavailable", zap.Error(err))
		return nil, false
	}
	return projects, true
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
