package costengine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/levee-labs/credit-gateway/costengine"
	"github.com/levee-labs/credit-gateway/domain"
)

func TestCostUSD(t *testing.T) {
	rule := domain.PricingRule{
		Provider:        "openai",
		Model:           "gpt-4o",
		InputCostPer1K:  decimal.NewFromFloat(0.005),
		OutputCostPer1K: decimal.NewFromFloat(0.015),
	}

	got := costengine.CostUSD(1000, 500, rule)
	want := decimal.NewFromFloat(0.005).Add(decimal.NewFromFloat(0.0075))
	require.True(t, want.Equal(got), "want %s got %s", want, got)
}

// TestCostToCreditsRoundsUp pins the ceiling-rounding rule: any nonzero
// fractional credit must round up to the next whole credit, never down.
func TestCostToCreditsRoundsUp(t *testing.T) {
	cases := []struct {
		name          string
		costUSD       decimal.Decimal
		creditsPerUSD int64
		want          int64
	}{
		{"exact", decimal.NewFromFloat(0.10), 100, 10},
		{"tiny fraction rounds up", decimal.NewFromFloat(0.001), 100, 1},
		{"zero cost is zero credits", decimal.Zero, 100, 0},
		{"large fraction rounds up once", decimal.NewFromFloat(1.001), 100, 101},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := costengine.CostToCredits(tc.costUSD, tc.creditsPerUSD)
			require.Equal(t, tc.want, got)
		})
	}
}
