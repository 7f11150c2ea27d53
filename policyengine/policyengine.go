// Package policyengine merges the policies bound to every level of a
// resolved hierarchy path into one effective policy. Merging is a pure
// reduction with no knowledge of storage: allowed-model sets intersect
// and numeric limits take the minimum, so the effective policy can only
// ever be as permissive as its strictest ancestor.
package policyengine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levee-labs/credit-gateway/domain"
	"github.com/levee-labs/credit-gateway/gatewayerr"
)

// Store loads the policies bound to a resolved hierarchy path.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ForPath returns every active policy bound to any level of path, in no
// particular order — Merge folds them regardless of order.
func (s *Store) ForPath(ctx context.Context, path domain.HierarchyPath) ([]domain.Policy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, org_id, workspace_id, agent_group_id, agent_id,
		       allowed_models, max_input_tokens, max_output_tokens, rpm_limit, is_active
		FROM policies
		WHERE is_active = true
		  AND (org_id = $1 OR workspace_id = $2 OR agent_group_id = $3 OR agent_id = $4)`,
		path.Org.ID, path.Workspace.ID, path.AgentGroup.ID, path.Agent.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading policies for hierarchy path: %w", err)
	}
	defer rows.Close()

	var policies []domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.Name,
			&p.Target.OrgID, &p.Target.WorkspaceID, &p.Target.AgentGroupID, &p.Target.AgentID,
			&p.AllowedModels, &p.MaxInputTokens, &p.MaxOutputTokens, &p.RPMLimit, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scanning policy: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating policies: %w", err)
	}
	return policies, nil
}

// EffectivePolicy is the result of merging every active policy bound to
// an agent's hierarchy path.
type EffectivePolicy struct {
	// AllowedModels is nil when no policy in the path constrains models.
	AllowedModels   []string
	MaxInputTokens  *int
	MaxOutputTokens *int
	RPMLimit        *int
}

// Merge folds policies (typically agent, agent-group, workspace, org —
// in any order) into one EffectivePolicy. Inactive policies are
// ignored by the caller before this is called.
func Merge(policies []domain.Policy) EffectivePolicy {
	var ep EffectivePolicy
	allowedSet := false

	for _, p := range policies {
		if p.AllowedModels != nil {
			if !allowedSet {
				ep.AllowedModels = append([]string{}, p.AllowedModels...)
				allowedSet = true
			} else {
				ep.AllowedModels = intersect(ep.AllowedModels, p.AllowedModels)
			}
		}
		ep.MaxInputTokens = minPtr(ep.MaxInputTokens, p.MaxInputTokens)
		ep.MaxOutputTokens = minPtr(ep.MaxOutputTokens, p.MaxOutputTokens)
		ep.RPMLimit = minPtr(ep.RPMLimit, p.RPMLimit)
	}
	return ep
}

// intersect always returns a non-nil slice, including []string{} when
// a and b share nothing — a nil result would read as "unconstrained"
// to Enforce instead of "every model blocked".
func intersect(a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, m := range a {
		inA[m] = true
	}
	out := []string{}
	for _, m := range b {
		if inA[m] {
			out = append(out, m)
		}
	}
	return out
}

func minPtr(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *b < *a {
		return b
	}
	return a
}

// Enforce checks a requested model and token count against ep, returning
// the effective max-output-tokens cap to use (nil = no cap). A model
// outside AllowedModels (when constrained) raises KindPolicyViolation.
func Enforce(ep EffectivePolicy, model string, requestedMaxOutputTokens *int) (*int, error) {
	if ep.AllowedModels != nil && !contains(ep.AllowedModels, model) {
		return nil, gatewayerr.New(gatewayerr.KindPolicyViolation,
			"model %q is not in the allowed set for this agent", model).
			WithDetail(map[string]any{"model": model, "allowed_models": ep.AllowedModels})
	}

	limit := ep.MaxOutputTokens
	if requestedMaxOutputTokens != nil {
		limit = minPtr(limit, requestedMaxOutputTokens)
	}
	return limit, nil
}

func contains(models []string, model string) bool {
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}
