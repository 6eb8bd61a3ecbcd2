// Package money переводит суммы из минимальных единиц в десятичные и считает комиссию.
//
// Внутри сервиса деньги хранятся только целыми копейками (центами). Перевод в
// основные единицы выполняется на границе ответа API.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale задаёт число минимальных единиц в одной основной.
const Scale = 100

// DefaultCommissionRate задаёт долю комиссии оператора от чистой выручки.
var DefaultCommissionRate = decimal.RequireFromString("0.30")

var scale = decimal.NewFromInt(Scale)

// ParseRate разбирает ставку комиссии вида "0.30". Ставка должна лежать в [0, 1].
func ParseRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse commission rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("commission rate %s out of range [0, 1]", s)
	}
	return rate, nil
}

// ToMajor переводит минимальные единицы в основные, округляя до двух знаков
// (половина округляется от нуля).
func ToMajor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(scale).Round(2)
}

// Float возвращает значение для JSON-ответа.
func Float(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// MinorToFloat эквивалентна Float(ToMajor(minor)).
func MinorToFloat(minor int64) float64 {
	return Float(ToMajor(minor))
}

// FromMajor переводит сумму в основных единицах в минимальные, округляя до целой копейки.
func FromMajor(major decimal.Decimal) int64 {
	return major.Mul(scale).Round(0).IntPart()
}

// Commission считает комиссию в основных единицах: сумма умножается на ставку один раз.
func Commission(netMinor int64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(netMinor).Mul(rate).Div(scale).Round(2)
}

// CommissionPerOrder считает комиссию по каждому заказу без промежуточного округления
// и суммирует результат. Для целых сумм совпадает с Commission.
func CommissionPerOrder(netMinor []int64, rate decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range netMinor {
		total = total.Add(decimal.NewFromInt(v).Mul(rate))
	}
	return total.Div(scale).Round(2)
}
