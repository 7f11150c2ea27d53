// Package costengine converts token counts to USD cost and USD cost to
// platform credits using decimal arithmetic throughout — float64 would
// accumulate rounding error across millions of gateway calls.
package costengine

import (
	"github.com/shopspring/decimal"

	"github.com/levee-labs/credit-gateway/domain"
)

// CostUSD prices a completion against rule's per-1k-token rates.
func CostUSD(inputTokens, outputTokens int, rule domain.PricingRule) decimal.Decimal {
	perThousand := decimal.NewFromInt(1000)
	inputCost := rule.InputCostPer1K.Mul(decimal.NewFromInt(int64(inputTokens))).Div(perThousand)
	outputCost := rule.OutputCostPer1K.Mul(decimal.NewFromInt(int64(outputTokens))).Div(perThousand)
	return inputCost.Add(outputCost)
}

// CostToCredits converts a USD cost into whole credits, rounding up so
// the platform never under-charges a fractional credit away.
func CostToCredits(costUSD decimal.Decimal, creditsPerUSD int64) int64 {
	credits := costUSD.Mul(decimal.NewFromInt(creditsPerUSD)).Ceil()
	return credits.IntPart()
}
