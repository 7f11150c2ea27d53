// Package pricing is the read-only per-model cost table the cost
// engine prices completions against. Rows are seeded and maintained by
// an external admin surface; this package only reads them.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levee-labs/credit-gateway/domain"
	"github.com/levee-labs/credit-gateway/gatewayerr"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Rule looks up the pricing row for provider/model, returning a tagged
// KindPricingNotFound error if none exists.
func (s *Store) Rule(ctx context.Context, provider, model string) (domain.PricingRule, error) {
	var r domain.PricingRule
	err := s.pool.QueryRow(ctx,
		`SELECT provider, model, input_cost_per_1k, output_cost_per_1k
		 FROM pricing_rules WHERE provider = $1 AND model = $2`, provider, model,
	).Scan(&r.Provider, &r.Model, &r.InputCostPer1K, &r.OutputCostPer1K)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PricingRule{}, gatewayerr.New(gatewayerr.KindPricingNotFound,
			"no pricing rule for provider=%s model=%s", provider, model)
	}
	if err != nil {
		return domain.PricingRule{}, fmt.Errorf("looking up pricing rule: %w", err)
	}
	return r, nil
}

// All lists every configured pricing rule, for the read-only pricing
// admin surface.
func (s *Store) All(ctx context.Context) ([]domain.PricingRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, model, input_cost_per_1k, output_cost_per_1k FROM pricing_rules ORDER BY provider, model`)
	if err != nil {
		return nil, fmt.Errorf("listing pricing rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.PricingRule
	for rows.Next() {
		var r domain.PricingRule
		if err := rows.Scan(&r.Provider, &r.Model, &r.InputCostPer1K, &r.OutputCostPer1K); err != nil {
			return nil, fmt.Errorf("scanning pricing rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pricing rules: %w", err)
	}
	return rules, nil
}
