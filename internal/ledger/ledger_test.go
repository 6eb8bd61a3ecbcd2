package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var rate = decimal.RequireFromString("0.30")

func TestCompute_Balance(t *testing.T) {
	half := decimal.RequireFromString("0.5")

	tests := []struct {
		name       string
		in         Input
		commission string
		balance    string
	}{
		{
			name:       "partially paid",
			in:         Input{NetMinor: 200000, PaidMinor: 40000, Rate: half},
			commission: "1000",
			balance:    "600",
		},
		{
			name:       "overpaid",
			in:         Input{NetMinor: 200000, PaidMinor: 150000, Rate: half},
			commission: "1000",
			balance:    "-500",
		},
		{
			name:       "nothing paid",
			in:         Input{NetMinor: 10000, Rate: rate},
			commission: "30",
			balance:    "30",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.in)
			assert.Equal(t, tt.commission, got.CommissionGenerated.String())
			assert.Equal(t, tt.balance, got.Balance.String())
		})
	}
}

func TestCompute_AdsCannotMakeCommissionNegative(t *testing.T) {
	got := Compute(Input{NetMinor: 10000, AdSpendMinor: 30000, Rate: rate})

	assert.Equal(t, int64(-20000), got.NetAfterAdsMinor)
	assert.True(t, got.CommissionGenerated.IsZero())
	assert.Equal(t, "-60", got.CommissionSigned.String())
	assert.True(t, got.Balance.IsZero(), "balance uses the floored commission")
}

func TestCompute_AdsReduceCommission(t *testing.T) {
	got := Compute(Input{NetMinor: 20000, AdSpendMinor: 5000, Rate: rate})

	assert.Equal(t, int64(15000), got.NetAfterAdsMinor)
	assert.Equal(t, "45", got.CommissionGenerated.String())
}
