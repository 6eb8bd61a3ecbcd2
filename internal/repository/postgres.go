package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/partner-ledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const dateLayout = "2006-01-02"

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const orderColumns = `gateway, external_transaction_id, site_slug, status, raw_provider_status, raw_provider_event,
	payment_method, total_amount, net_amount, customer_name, customer_email, customer_phone, customer_document,
	items, attribution, occurred_at, created_at, updated_at`

// upsertOrderSQL выполняет единственную атомарную запись заказа. Конечный статус
// (paid, refunded, canceled) не откатывается в unknown или waiting_payment, известный статус
// не заменяется на unknown, как в model.ResolveStatus.
const upsertOrderSQL = `
INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
ON CONFLICT (gateway, external_transaction_id) DO UPDATE SET
	site_slug           = EXCLUDED.site_slug,
	status              = CASE
		WHEN orders.status IN ('paid', 'refunded', 'canceled')
			AND EXCLUDED.status IN ('unknown', 'waiting_payment') THEN orders.status
		WHEN EXCLUDED.status = 'unknown' AND orders.status <> 'unknown' THEN orders.status
		ELSE EXCLUDED.status
	END,
	raw_provider_status = EXCLUDED.raw_provider_status,
	raw_provider_event  = EXCLUDED.raw_provider_event,
	payment_method      = EXCLUDED.payment_method,
	total_amount        = EXCLUDED.total_amount,
	net_amount          = EXCLUDED.net_amount,
	customer_name       = EXCLUDED.customer_name,
	customer_email      = EXCLUDED.customer_email,
	customer_phone      = EXCLUDED.customer_phone,
	customer_document   = EXCLUDED.customer_document,
	items               = EXCLUDED.items,
	attribution         = EXCLUDED.attribution,
	occurred_at         = EXCLUDED.occurred_at,
	updated_at          = EXCLUDED.updated_at
RETURNING ` + orderColumns + `, (xmax = 0) AS inserted`

// UpsertOrder применяет событие к заказу по естественному ключу (gateway, external_transaction_id).
// Возвращает итоговый заказ и признак того, что строка была создана.
func (r *PostgresRepository) UpsertOrder(ctx context.Context, ev model.Event, now time.Time) (model.Order, bool, error) {
	o := orderFromEvent(ev, now)

	items, err := json.Marshal(o.Items)
	if err != nil {
		return model.Order{}, false, fmt.Errorf("marshal items: %w", err)
	}
	attribution, err := json.Marshal(o.Attribution)
	if err != nil {
		return model.Order{}, false, fmt.Errorf("marshal attribution: %w", err)
	}

	var occurredAt *time.Time
	if !o.OccurredAt.IsZero() {
		occurredAt = &o.OccurredAt
	}

	var (
		res      model.Order
		inserted bool
	)
	err = r.withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx, upsertOrderSQL,
			string(o.Gateway), o.ExternalTransactionID, o.SiteSlug, string(o.Status),
			o.RawProviderStatus, o.RawProviderEvent, o.PaymentMethod,
			o.TotalAmountMinorUnits, o.NetAmountMinorUnits,
			o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.Customer.Document,
			items, attribution, occurredAt, now,
		)
		var scanErr error
		res, inserted, scanErr = scanOrder(row, true)
		return scanErr
	})
	if err != nil {
		return model.Order{}, false, fmt.Errorf("upsert order: %w", err)
	}

	return res, inserted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner, withInserted bool) (model.Order, bool, error) {
	var (
		o           model.Order
		gateway     string
		status      string
		items       []byte
		attribution []byte
		occurredAt  *time.Time
		inserted    bool
	)

	dest := []any{
		&gateway, &o.ExternalTransactionID, &o.SiteSlug, &status, &o.RawProviderStatus, &o.RawProviderEvent,
		&o.PaymentMethod, &o.TotalAmountMinorUnits, &o.NetAmountMinorUnits,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &o.Customer.Document,
		&items, &attribution, &occurredAt, &o.CreatedAt, &o.UpdatedAt,
	}
	if withInserted {
		dest = append(dest, &inserted)
	}

	if err := row.Scan(dest...); err != nil {
		return model.Order{}, false, err
	}

	o.Gateway = model.Gateway(gateway)
	o.Status = model.OrderStatus(status)
	if occurredAt != nil {
		o.OccurredAt = occurredAt.UTC()
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	o.Items = []model.Item{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return model.Order{}, false, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if len(attribution) > 0 {
		if err := json.Unmarshal(attribution, &o.Attribution); err != nil {
			return model.Order{}, false, fmt.Errorf("unmarshal attribution: %w", err)
		}
	}

	return o, inserted, nil
}

// GetOrder возвращает заказ по естественному ключу.
func (r *PostgresRepository) GetOrder(ctx context.Context, gateway model.Gateway, externalID string) (model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE gateway = $1 AND external_transaction_id = $2`,
		string(gateway), externalID,
	)

	o, _, err := scanOrder(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrders возвращает заказы, созданные в интервале фильтра, по возрастанию created_at.
func (r *PostgresRepository) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	if f.SiteSlug != "" {
		add("site_slug = $%d", f.SiteSlug)
	}
	if f.Gateway != "" {
		add("gateway = $%d", string(f.Gateway))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		add("status = ANY($%d)", statuses)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, _, err := scanOrder(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// CreateAdSpend добавляет запись о рекламных расходах.
func (r *PostgresRepository) CreateAdSpend(ctx context.Context, a model.AdSpend) (model.AdSpend, error) {
	refDate, err := time.Parse(dateLayout, a.ReferenceDate)
	if err != nil {
		return model.AdSpend{}, fmt.Errorf("parse reference date: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO ad_spend (partner_id, site_slug, site_name, reference_date, amount, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		a.PartnerID, a.SiteSlug, a.SiteName, refDate, a.AmountMinorUnits, a.Note, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return model.AdSpend{}, fmt.Errorf("insert ad spend: %w", err)
	}
	return a, nil
}

// ListAdSpend возвращает рекламные расходы по фильтру, по возрастанию даты.
func (r *PostgresRepository) ListAdSpend(ctx context.Context, f AdSpendFilter) ([]model.AdSpend, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.FromDate != "" {
		d, err := time.Parse(dateLayout, f.FromDate)
		if err != nil {
			return nil, fmt.Errorf("parse from date: %w", err)
		}
		add("reference_date >= $%d", d)
	}
	if f.ToDate != "" {
		d, err := time.Parse(dateLayout, f.ToDate)
		if err != nil {
			return nil, fmt.Errorf("parse to date: %w", err)
		}
		add("reference_date <= $%d", d)
	}
	if len(f.SiteSlugs) > 0 {
		add("site_slug = ANY($%d)", f.SiteSlugs)
	}

	query := `SELECT id, partner_id, site_slug, site_name, to_char(reference_date, 'YYYY-MM-DD'), amount, note, created_at
		FROM ad_spend`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY reference_date, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select ad spend: %w", err)
	}
	defer rows.Close()

	var res []model.AdSpend
	for rows.Next() {
		var a model.AdSpend
		if err := rows.Scan(&a.ID, &a.PartnerID, &a.SiteSlug, &a.SiteName, &a.ReferenceDate, &a.AmountMinorUnits, &a.Note, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ad spend: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreatePayment добавляет запись о выплате партнёра. Существующие записи не изменяются.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p model.PartnerPayment) (model.PartnerPayment, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO partner_payments (partner_id, amount, note, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.PartnerID, p.AmountMinorUnits, p.Note, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return model.PartnerPayment{}, fmt.Errorf("insert payment: %w", err)
	}
	return p, nil
}

// ListPayments возвращает выплаты партнёра по возрастанию времени создания.
func (r *PostgresRepository) ListPayments(ctx context.Context, f PaymentFilter) ([]model.PartnerPayment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.PartnerID != "" {
		add("partner_id = $%d", f.PartnerID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}

	query := `SELECT id, partner_id, amount, note, created_at FROM partner_payments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.PartnerPayment
	for rows.Next() {
		var p model.PartnerPayment
		if err := rows.Scan(&p.ID, &p.PartnerID, &p.AmountMinorUnits, &p.Note, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// Projects возвращает каталог сайтов партнёров. Сервис каталог только читает.
func (r *PostgresRepository) Projects(ctx context.Context) ([]model.PartnerProject, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT site_slug, site_name, partner_name, domain, owner_id FROM partner_projects ORDER BY site_slug`,
	)
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	defer rows.Close()

	var res []model.PartnerProject
	for rows.Next() {
		var p model.PartnerProject
		if err := rows.Scan(&p.SiteSlug, &p.SiteName, &p.PartnerName, &p.Domain, &p.OwnerID); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
