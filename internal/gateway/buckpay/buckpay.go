// Package buckpay разбирает вебхуки шлюза Buckpay.
//
// Buckpay присылает конверт {"event": ..., "data": {...}}, где data содержит транзакцию.
package buckpay

import (
	"strings"

	"github.com/mmeshcher/partner-ledger/internal/gateway"
	"github.com/mmeshcher/partner-ledger/internal/model"
)

// Webhook описывает конверт вебхука Buckpay.
type Webhook struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

// Transaction описывает транзакцию Buckpay.
type Transaction struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	PaymentMethod string       `json:"payment_method"`
	TotalAmount   gateway.Int  `json:"total_amount"`
	NetAmount     *gateway.Int `json:"net_amount"`
	Offer         *Offer       `json:"offer"`
	Buyer         Buyer        `json:"buyer"`
	Tracking      Tracking     `json:"tracking"`
	CreatedAt     string       `json:"created_at"`
	UpdatedAt     string       `json:"updated_at"`
}

// Offer описывает оплаченное предложение; Buckpay присылает одно на транзакцию.
type Offer struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Quantity      gateway.Int `json:"quantity"`
	DiscountPrice gateway.Int `json:"discount_price"`
	OriginalPrice gateway.Int `json:"original_price"`
}

// Buyer описывает покупателя.
type Buyer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

// Tracking содержит UTM-метки и реферер.
type Tracking struct {
	Ref         string `json:"ref"`
	Src         string `json:"src"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMContent  string `json:"utm_content"`
	UTMTerm     string `json:"utm_term"`
}

const (
	EventCreated    = "transaction.created"
	EventProcessed  = "transaction.processed"
	EventRefunded   = "transaction.refunded"
	EventChargeback = "transaction.chargeback"
)

// statusTable: событие → сырой статус → канонический статус.
var statusTable = map[string]map[string]model.OrderStatus{
	EventCreated: {
		"pending":         model.StatusWaitingPayment,
		"waiting_payment": model.StatusWaitingPayment,
	},
	EventProcessed: {
		"pending":   model.StatusWaitingPayment,
		"paid":      model.StatusPaid,
		"approved":  model.StatusPaid,
		"refunded":  model.StatusRefunded,
		"canceled":  model.StatusCanceled,
		"cancelled": model.StatusCanceled,
		"refused":   model.StatusCanceled,
		"expired":   model.StatusCanceled,
	},
	EventRefunded: {
		"refunded": model.StatusRefunded,
	},
	EventChargeback: {
		"chargeback":  model.StatusRefunded,
		"chargedback": model.StatusRefunded,
	},
}

// MapStatus переводит пару событие/статус в канонический статус. Второе значение false,
// если пара отсутствует в таблице; тогда возвращается model.StatusUnknown.
func MapStatus(event, status string) (model.OrderStatus, bool) {
	if byStatus, ok := statusTable[gateway.Key(event)]; ok {
		if s, ok := byStatus[gateway.Key(status)]; ok {
			return s, true
		}
	}
	return model.StatusUnknown, false
}

// Adapter реализует gateway.Adapter для Buckpay.
type Adapter struct{}

// New создаёт адаптер Buckpay.
func New() *Adapter {
	return &Adapter{}
}

// Gateway возвращает идентификатор шлюза.
func (a *Adapter) Gateway() model.Gateway {
	return model.GatewayBuckpay
}

// Normalize разбирает вебхук Buckpay.
func (a *Adapter) Normalize(payload []byte, siteSlug string) (model.Event, error) {
	var wh Webhook
	if err := gateway.Decode(model.GatewayBuckpay, payload, &wh); err != nil {
		return model.Event{}, err
	}

	tx := wh.Data
	id := strings.TrimSpace(tx.ID)
	if id == "" {
		return model.Event{}, &gateway.ValidationError{Gateway: model.GatewayBuckpay, Field: "data.id", Reason: "missing transaction id"}
	}
	if strings.TrimSpace(tx.Status) == "" {
		return model.Event{}, &gateway.ValidationError{Gateway: model.GatewayBuckpay, Field: "data.status", Reason: "missing status"}
	}

	status, mapped := MapStatus(wh.Event, tx.Status)

	total := int64(tx.TotalAmount)
	net := total
	if tx.NetAmount != nil {
		net = int64(*tx.NetAmount)
	}

	items := []model.Item{}
	if tx.Offer != nil {
		qty := int64(tx.Offer.Quantity)
		if qty <= 0 {
			qty = 1
		}
		price := int64(tx.Offer.DiscountPrice)
		if price == 0 {
			price = int64(tx.Offer.OriginalPrice)
		}
		items = append(items, model.Item{
			ExternalID:          tx.Offer.ID,
			Name:                tx.Offer.Name,
			Quantity:            qty,
			UnitPriceMinorUnits: price,
		})
	}

	occurredAt := gateway.ParseTime(tx.UpdatedAt)
	if occurredAt.IsZero() {
		occurredAt = gateway.ParseTime(tx.CreatedAt)
	}

	source := tx.Tracking.UTMSource
	if source == "" {
		source = tx.Tracking.Src
	}

	return model.Event{
		Gateway:               model.GatewayBuckpay,
		ExternalTransactionID: id,
		SiteSlug:              gateway.SiteSlug(siteSlug),
		Status:                status,
		RawStatus:             tx.Status,
		RawEvent:              wh.Event,
		Unmapped:              !mapped,
		PaymentMethod:         gateway.Key(tx.PaymentMethod),
		TotalAmountMinorUnits: total,
		NetAmountMinorUnits:   net,
		Customer: gateway.NormalizeCustomer(model.Customer{
			Name:     tx.Buyer.Name,
			Email:    tx.Buyer.Email,
			Phone:    tx.Buyer.Phone,
			Document: tx.Buyer.Document,
		}),
		Items: items,
		Attribution: model.Attribution{
			Referrer: tx.Tracking.Ref,
			Campaign: tx.Tracking.UTMCampaign,
			Source:   source,
			Medium:   tx.Tracking.UTMMedium,
			Content:  tx.Tracking.UTMContent,
			Term:     tx.Tracking.UTMTerm,
		},
		OccurredAt: occurredAt,
	}, nil
}
