// Package usage appends the observability record for every completed
// (or rejected) gateway call. Rows are never updated or deleted.
package usage

import (
	"context"
	"fmt"

	"github.com/levee-labs/credit-gateway/dbx"
	"github.com/levee-labs/credit-gateway/domain"
)

// Record inserts a UsageEvent via q. Pass a pgx.Tx to land the row
// alongside a ledger deduction in the same commit, or the pool directly
// when logging a rejected call that never reached the ledger.
func Record(ctx context.Context, q dbx.Querier, ev domain.UsageEvent) error {
	_, err := q.Exec(ctx, `
		INSERT INTO usage_events
			(user_id, group_id, agent_id, provider, model, input_tokens, output_tokens,
			 total_tokens, cost_usd, credits_charged, latency_ms, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ev.UserID, ev.GroupID, ev.AgentID, ev.Provider, ev.Model, ev.InputTokens, ev.OutputTokens,
		ev.TotalTokens, ev.CostUSD, ev.CreditsCharged, ev.LatencyMs, ev.Status, ev.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("recording usage event: %w", err)
	}
	return nil
}
