// Package ledger считает баланс комиссии партнёра.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/partner-ledger/internal/money"
)

// Input содержит исходные суммы в минимальных единицах.
type Input struct {
	NetMinor     int64
	AdSpendMinor int64
	PaidMinor    int64
	Rate         decimal.Decimal
}

// Ledger содержит итог по партнёру. Суммы комиссии и баланса указаны в основных единицах.
type Ledger struct {
	NetMinor         int64
	AdSpendMinor     int64
	NetAfterAdsMinor int64
	// CommissionSigned может быть отрицательной, если реклама превысила чистую выручку.
	// Хранится для аудита и в баланс не входит.
	CommissionSigned decimal.Decimal
	// CommissionGenerated не бывает меньше нуля.
	CommissionGenerated decimal.Decimal
	PaidMinor           int64
	// Balance > 0: партнёр должен оператору, < 0: переплата.
	Balance decimal.Decimal
}

// Compute считает комиссию и баланс. Баланс всегда выводится из сумм и нигде не хранится.
func Compute(in Input) Ledger {
	netAfterAds := in.NetMinor - in.AdSpendMinor
	signed := money.Commission(netAfterAds, in.Rate)

	generated := signed
	if generated.IsNegative() {
		generated = decimal.Zero
	}

	return Ledger{
		NetMinor:            in.NetMinor,
		AdSpendMinor:        in.AdSpendMinor,
		NetAfterAdsMinor:    netAfterAds,
		CommissionSigned:    signed,
		CommissionGenerated: generated,
		PaidMinor:           in.PaidMinor,
		Balance:             generated.Sub(money.ToMajor(in.PaidMinor)),
	}
}
