// Package model содержит доменные сущности сервиса партнёрского учёта.
package model

import "time"

// Gateway идентифицирует внешний платёжный шлюз.
type Gateway string

const (
	GatewayBuckpay  Gateway = "buckpay"
	GatewayBlackcat Gateway = "blackcat"
)

// UnknownSite подставляется, когда вебхук пришёл без параметра сайта.
const UnknownSite = "unknown"

// OrderStatus описывает каноническое состояние заказа.
type OrderStatus string

const (
	StatusWaitingPayment OrderStatus = "waiting_payment"
	StatusPaid           OrderStatus = "paid"
	StatusRefunded       OrderStatus = "refunded"
	StatusCanceled       OrderStatus = "canceled"
	StatusUnknown        OrderStatus = "unknown"
)

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusPaid, StatusRefunded, StatusCanceled:
		return true
	default:
		return false
	}
}

// Valid сообщает, входит ли статус в каноническую таксономию.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusWaitingPayment, StatusPaid, StatusRefunded, StatusCanceled, StatusUnknown:
		return true
	default:
		return false
	}
}

// ResolveStatus выбирает статус, который будет записан поверх prev.
// Последнее событие побеждает, кроме возврата конечного статуса в unknown или waiting_payment.
// unknown записывается только поверх unknown или при первой записи.
func ResolveStatus(prev, next OrderStatus) OrderStatus {
	if prev.Terminal() && (next == StatusUnknown || next == StatusWaitingPayment) {
		return prev
	}
	if next == StatusUnknown && prev != "" && prev != StatusUnknown {
		return prev
	}
	return next
}

// Customer содержит данные покупателя. Телефон и документ хранятся только цифрами.
type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

// Item описывает позицию заказа.
type Item struct {
	ExternalID          string `json:"external_id"`
	Name                string `json:"name"`
	Quantity            int64  `json:"quantity"`
	UnitPriceMinorUnits int64  `json:"unit_price"`
}

// Attribution содержит произвольные метки трекинга.
type Attribution struct {
	Referrer string `json:"referrer,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Content  string `json:"content,omitempty"`
	Term     string `json:"term,omitempty"`
}

// Event описывает один вебхук независимо от шлюза.
type Event struct {
	Gateway               Gateway
	ExternalTransactionID string
	SiteSlug              string
	Status                OrderStatus
	RawStatus             string
	RawEvent              string
	// Unmapped выставляется, когда пара статус/событие отсутствует в таблице шлюза.
	Unmapped              bool
	PaymentMethod         string
	TotalAmountMinorUnits int64
	NetAmountMinorUnits   int64
	Customer              Customer
	Items                 []Item
	Attribution           Attribution
	OccurredAt            time.Time
}

// Order хранит каноническую запись о транзакции, одну на пару (Gateway, ExternalTransactionID).
type Order struct {
	Gateway               Gateway
	ExternalTransactionID string
	SiteSlug              string
	Status                OrderStatus
	RawProviderStatus     string
	RawProviderEvent      string
	PaymentMethod         string
	TotalAmountMinorUnits int64
	NetAmountMinorUnits   int64
	Customer              Customer
	Items                 []Item
	Attribution           Attribution
	OccurredAt            time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// AdSpend описывает ручную запись о расходах на рекламу сайта за календарный день.
type AdSpend struct {
	ID               int64
	PartnerID        string
	SiteSlug         string
	SiteName         string
	ReferenceDate    string
	AmountMinorUnits int64
	Note             string
	CreatedAt        time.Time
}

// PartnerPayment описывает перевод, фактически выполненный партнёром оператору.
type PartnerPayment struct {
	ID               int64
	PartnerID        string
	AmountMinorUnits int64
	Note             string
	CreatedAt        time.Time
}

// PartnerProject описывает запись внешнего каталога сайтов.
type PartnerProject struct {
	SiteSlug    string `json:"site_slug"`
	SiteName    string `json:"site_name"`
	PartnerName string `json:"partner_name"`
	Domain      string `json:"domain"`
	OwnerID     string `json:"owner_id"`
}
