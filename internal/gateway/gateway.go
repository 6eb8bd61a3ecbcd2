// Package gateway описывает адаптеры платёжных шлюзов и общие для них типы.
//
// Каждый шлюз разбирает собственный формат вебхука в типизированную структуру и
// переводит её в model.Event с помощью явной таблицы статусов.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/validation"
)

// ErrInvalidPayload объединяет ошибки разбора вебхука.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// ValidationError возвращается, когда вебхук нельзя записать в журнал заказов.
type ValidationError struct {
	Gateway model.Gateway
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Gateway, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Gateway, e.Field, e.Reason)
}

// Unwrap позволяет сравнивать ошибку с ErrInvalidPayload через errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

// Adapter переводит сырой вебхук шлюза в каноническое событие.
type Adapter interface {
	Gateway() model.Gateway
	Normalize(payload []byte, siteSlug string) (model.Event, error)
}

// Registry хранит адаптеры по идентификатору шлюза.
type Registry struct {
	adapters map[model.Gateway]Adapter
}

// NewRegistry создаёт реестр из переданных адаптеров.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.Gateway]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Gateway()] = a
	}
	return r
}

// Get возвращает адаптер шлюза.
func (r *Registry) Get(g model.Gateway) (Adapter, bool) {
	a, ok := r.adapters[g]
	return a, ok
}

// Int принимает целое число, присланное числом или строкой.
type Int int64

// UnmarshalJSON принимает 100, 100.0, "100" и null.
func (i *Int) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*i = 0
		return nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		*i = 0
		return nil
	}
	v, err := cast.ToInt64E(raw)
	if err != nil {
		return fmt.Errorf("%w: integer expected, got %s", ErrInvalidPayload, string(data))
	}
	*i = Int(v)
	return nil
}

// Decode разбирает тело вебхука в v, оборачивая ошибки в ValidationError.
func Decode(g model.Gateway, payload []byte, v any) error {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return &ValidationError{Gateway: g, Reason: "empty body"}
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &ValidationError{Gateway: g, Reason: fmt.Sprintf("malformed json: %v", err)}
	}
	return nil
}

// SiteSlug нормализует параметр маршрутизации, подставляя model.UnknownSite для пустого значения.
func SiteSlug(s string) string {
	if slug := validation.NormalizeSlug(s); slug != "" {
		return slug
	}
	return model.UnknownSite
}

// NormalizeCustomer приводит телефон и документ к цифрам.
func NormalizeCustomer(c model.Customer) model.Customer {
	return model.Customer{
		Name:     strings.TrimSpace(c.Name),
		Email:    strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:    validation.DigitsOnly(c.Phone),
		Document: validation.DigitsOnly(c.Document),
	}
}

// ParseTime разбирает отметку времени шлюза. Пустое или нераспознанное значение даёт нулевое время.
func ParseTime(s string) time.Time {
	if strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	t, err := cast.ToTimeE(s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Key нормализует сырой статус или имя события для поиска в таблице.
func Key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
