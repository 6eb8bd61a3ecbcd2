// Package blackcat разбирает постбэки шлюза Blackcat.
//
// Blackcat присылает плоский объект транзакции. Часть аккаунтов получает его
// обёрнутым в {"type": "transaction", "data": {...}}; поддерживаются оба варианта.
package blackcat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mmeshcher/partner-ledger/internal/gateway"
	"github.com/mmeshcher/partner-ledger/internal/model"
)

// Transaction описывает транзакцию Blackcat.
type Transaction struct {
	ID                 string             `json:"id"`
	Status             string             `json:"status"`
	Amount             gateway.Int        `json:"amount"`
	PaymentMethod      string             `json:"paymentMethod"`
	Fee                *Fee               `json:"fee"`
	Customer           Customer           `json:"customer"`
	Items              []Item             `json:"items"`
	TrackingParameters TrackingParameters `json:"trackingParameters"`
	CreatedAt          string             `json:"createdAt"`
	UpdatedAt          string             `json:"updatedAt"`
}

// Fee описывает удержания шлюза.
type Fee struct {
	FixedAmount gateway.Int  `json:"fixedAmount"`
	NetAmount   *gateway.Int `json:"netAmount"`
}

// Customer описывает покупателя. Документ приходит строкой или объектом {"number", "type"}.
type Customer struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Document Document `json:"document"`
}

// Document описывает документ покупателя.
type Document struct {
	Number string `json:"number"`
	Type   string `json:"type"`
}

// UnmarshalJSON принимает как строку, так и объект.
func (d *Document) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &d.Number)
	}
	type plain Document
	return json.Unmarshal(data, (*plain)(d))
}

// Item описывает позицию заказа.
type Item struct {
	ExternalRef string      `json:"externalRef"`
	Title       string      `json:"title"`
	Quantity    gateway.Int `json:"quantity"`
	UnitPrice   gateway.Int `json:"unitPrice"`
}

// TrackingParameters содержит UTM-метки.
type TrackingParameters struct {
	Src         string `json:"src"`
	Ref         string `json:"ref"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMContent  string `json:"utm_content"`
	UTMTerm     string `json:"utm_term"`
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// statusTable: сырой статус → канонический статус.
var statusTable = map[string]model.OrderStatus{
	"waiting_payment": model.StatusWaitingPayment,
	"pending":         model.StatusWaitingPayment,
	"processing":      model.StatusWaitingPayment,
	"paid":            model.StatusPaid,
	"approved":        model.StatusPaid,
	"refunded":        model.StatusRefunded,
	"chargedback":     model.StatusRefunded,
	"canceled":        model.StatusCanceled,
	"cancelled":       model.StatusCanceled,
	"refused":         model.StatusCanceled,
	"failed":          model.StatusCanceled,
	"expired":         model.StatusCanceled,
}

// MapStatus переводит сырой статус в канонический. Второе значение false, если статус неизвестен.
func MapStatus(status string) (model.OrderStatus, bool) {
	if s, ok := statusTable[gateway.Key(status)]; ok {
		return s, true
	}
	return model.StatusUnknown, false
}

// Adapter реализует gateway.Adapter для Blackcat.
type Adapter struct{}

// New создаёт адаптер Blackcat.
func New() *Adapter {
	return &Adapter{}
}

// Gateway возвращает идентификатор шлюза.
func (a *Adapter) Gateway() model.Gateway {
	return model.GatewayBlackcat
}

// Normalize разбирает постбэк Blackcat.
func (a *Adapter) Normalize(payload []byte, siteSlug string) (model.Event, error) {
	var env envelope
	if err := gateway.Decode(model.GatewayBlackcat, payload, &env); err != nil {
		return model.Event{}, err
	}

	body := payload
	if len(env.Data) > 0 && env.Data[0] == '{' {
		body = env.Data
	}

	var tx Transaction
	if err := gateway.Decode(model.GatewayBlackcat, body, &tx); err != nil {
		return model.Event{}, err
	}

	id := strings.TrimSpace(tx.ID)
	if id == "" {
		return model.Event{}, &gateway.ValidationError{Gateway: model.GatewayBlackcat, Field: "id", Reason: "missing transaction id"}
	}
	if strings.TrimSpace(tx.Status) == "" {
		return model.Event{}, &gateway.ValidationError{Gateway: model.GatewayBlackcat, Field: "status", Reason: "missing status"}
	}

	status, mapped := MapStatus(tx.Status)

	total := int64(tx.Amount)
	net := total
	if tx.Fee != nil {
		switch {
		case tx.Fee.NetAmount != nil:
			net = int64(*tx.Fee.NetAmount)
		case tx.Fee.FixedAmount != 0:
			net = total - int64(tx.Fee.FixedAmount)
		}
	}

	items := make([]model.Item, 0, len(tx.Items))
	for _, it := range tx.Items {
		items = append(items, model.Item{
			ExternalID:          it.ExternalRef,
			Name:                it.Title,
			Quantity:            int64(it.Quantity),
			UnitPriceMinorUnits: int64(it.UnitPrice),
		})
	}

	occurredAt := gateway.ParseTime(tx.UpdatedAt)
	if occurredAt.IsZero() {
		occurredAt = gateway.ParseTime(tx.CreatedAt)
	}

	tp := tx.TrackingParameters
	source := tp.UTMSource
	if source == "" {
		source = tp.Src
	}

	return model.Event{
		Gateway:               model.GatewayBlackcat,
		ExternalTransactionID: id,
		SiteSlug:              gateway.SiteSlug(siteSlug),
		Status:                status,
		RawStatus:             tx.Status,
		RawEvent:              env.Type,
		Unmapped:              !mapped,
		PaymentMethod:         gateway.Key(tx.PaymentMethod),
		TotalAmountMinorUnits: total,
		NetAmountMinorUnits:   net,
		Customer: gateway.NormalizeCustomer(model.Customer{
			Name:     tx.Customer.Name,
			Email:    tx.Customer.Email,
			Phone:    tx.Customer.Phone,
			Document: tx.Customer.Document.Number,
		}),
		Items: items,
		Attribution: model.Attribution{
			Referrer: tp.Ref,
			Campaign: tp.UTMCampaign,
			Source:   source,
			Medium:   tp.UTMMedium,
			Content:  tp.UTMContent,
			Term:     tp.UTMTerm,
		},
		OccurredAt: occurredAt,
	}, nil
}
