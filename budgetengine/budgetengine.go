// Package budgetengine enforces per-period spend caps at every
// hierarchy level. Unlike policies, budgets don't merge into one
// effective value — each active budget bound to the path is checked
// independently, and the first one a request would breach blocks it.
package budgetengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levee-labs/credit-gateway/domain"
	"github.com/levee-labs/credit-gateway/gatewayerr"
)

// Target names the hierarchy level a Budget is bound to, for error
// messages and auto-disable routing.
type Target string

const (
	TargetOrg        Target = "org"
	TargetWorkspace  Target = "workspace"
	TargetAgentGroup Target = "agent_group"
	TargetAgent      Target = "agent"
)

// Budget is the subset of domain.Budget the checker needs, already
// resolved to a single concrete hierarchy-level ID by the caller.
type Budget struct {
	ID           uuid.UUID
	Target       Target
	TargetID     uuid.UUID
	Period       string // DAILY | MONTHLY | TOTAL
	LimitCredits int64
	AutoDisable  bool
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// PeriodStart returns the start of period's current window in UTC, or
// nil for TOTAL (an unbounded, all-time window).
func PeriodStart(period string, now time.Time) *time.Time {
	now = now.UTC()
	switch period {
	case "DAILY":
		t := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return &t
	case "MONTHLY":
		t := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &t
	default:
		return nil
	}
}

// SpendReader reports credits already spent against a budget's target
// within a window. *Store implements it against Postgres; tests supply
// a fake.
type SpendReader interface {
	SpentForTarget(ctx context.Context, target Target, targetID uuid.UUID, windowStart *time.Time) (int64, error)
}

// Check evaluates every budget in budgets against requiredCredits,
// returning the first breach as a KindBudgetExceeded error; budgets
// after it are not evaluated. If the breaching budget has AutoDisable
// set, its target is disabled in an independent transaction via
// disableFn — independent so the disable persists even though the
// caller's own transaction will roll back.
func Check(ctx context.Context, reader SpendReader, budgets []Budget, requiredCredits int64, now time.Time, disableFn func(ctx context.Context, target Target, targetID uuid.UUID, reason string) error) error {
	for _, b := range budgets {
		windowStart := PeriodStart(b.Period, now)
		spent, err := reader.SpentForTarget(ctx, b.Target, b.TargetID, windowStart)
		if err != nil {
			return err
		}

		if spent+requiredCredits > b.LimitCredits {
			if b.AutoDisable && disableFn != nil {
				reason := fmt.Sprintf("budget exceeded at %s level (%s)", b.Target, b.Period)
				if derr := disableFn(context.WithoutCancel(ctx), b.Target, b.TargetID, reason); derr != nil {
					return fmt.Errorf("auto-disabling %s after budget breach: %w", b.Target, derr)
				}
			}
			return gatewayerr.BudgetExceeded(string(b.Target), b.Period, spent, b.LimitCredits, requiredCredits)
		}
	}
	return nil
}

// ForPath returns every active budget bound to any level of path.
func (s *Store) ForPath(ctx context.Context, path domain.HierarchyPath) ([]Budget, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, workspace_id, agent_group_id, agent_id, period, limit_credits, auto_disable
		FROM budgets
		WHERE is_active = true
		  AND (org_id = $1 OR workspace_id = $2 OR agent_group_id = $3 OR agent_id = $4)`,
		path.Org.ID, path.Workspace.ID, path.AgentGroup.ID, path.Agent.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading budgets for hierarchy path: %w", err)
	}
	defer rows.Close()

	var budgets []Budget
	for rows.Next() {
		var orgID, workspaceID, agentGroupID, agentID *uuid.UUID
		var b Budget
		if err := rows.Scan(&b.ID, &orgID, &workspaceID, &agentGroupID, &agentID, &b.Period, &b.LimitCredits, &b.AutoDisable); err != nil {
			return nil, fmt.Errorf("scanning budget: %w", err)
		}
		switch {
		case agentID != nil:
			b.Target, b.TargetID = TargetAgent, *agentID
		case agentGroupID != nil:
			b.Target, b.TargetID = TargetAgentGroup, *agentGroupID
		case workspaceID != nil:
			b.Target, b.TargetID = TargetWorkspace, *workspaceID
		case orgID != nil:
			b.Target, b.TargetID = TargetOrg, *orgID
		default:
			return nil, fmt.Errorf("budget %s has no bound hierarchy target", b.ID)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating budgets: %w", err)
	}
	return budgets, nil
}

// DisableTarget flips the target's lifecycle state after an
// auto-disabling budget breach: agents move to BUDGET_EXHAUSTED status,
// every other level just clears is_active. Intentionally independent of
// any caller transaction; disableFn in Check already wraps ctx with
// context.WithoutCancel so this commits even if the caller rolls back.
func (s *Store) DisableTarget(ctx context.Context, target Target, targetID uuid.UUID, reason string) error {
	var query string
	switch target {
	case TargetAgent:
		query = `UPDATE agents SET status = 'BUDGET_EXHAUSTED' WHERE id = $1`
	case TargetAgentGroup:
		query = `UPDATE agent_groups SET is_active = false WHERE id = $1`
	case TargetWorkspace:
		query = `UPDATE workspaces SET is_active = false WHERE id = $1`
	case TargetOrg:
		query = `UPDATE organizations SET is_active = false WHERE id = $1`
	default:
		return fmt.Errorf("unknown budget target %q", target)
	}
	if _, err := s.pool.Exec(ctx, query, targetID); err != nil {
		return fmt.Errorf("disabling %s %s: %w", target, targetID, err)
	}
	return nil
}

func (s *Store) SpentForTarget(ctx context.Context, target Target, targetID uuid.UUID, windowStart *time.Time) (int64, error) {
	var column string
	switch target {
	case TargetOrg:
		column = "org_id"
	case TargetWorkspace:
		column = "workspace_id"
	case TargetAgentGroup:
		column = "agent_group_id"
	case TargetAgent:
		column = "agent_id"
	default:
		return 0, fmt.Errorf("unknown budget target %q", target)
	}

	var spent int64
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(u.credits_charged), 0)
		FROM usage_events u
		JOIN agents a ON a.id = u.agent_id
		JOIN agent_groups ag ON ag.id = a.agent_group_id
		JOIN workspaces w ON w.id = ag.workspace_id
		WHERE %s = $1 AND u.status = 'SUCCESS' AND ($2::timestamptz IS NULL OR u.created_at >= $2)`, qualifiedColumn(column))
	err := s.pool.QueryRow(ctx, query, targetID, windowStart).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("summing usage for %s budget: %w", target, err)
	}
	return spent, nil
}

// qualifiedColumn maps a bare column name to the joined table alias it
// lives on, so the same query shape works for every hierarchy level.
func qualifiedColumn(column string) string {
	switch column {
	case "org_id":
		return "w.org_id"
	case "workspace_id":
		return "ag.workspace_id"
	case "agent_group_id":
		return "a.agent_group_id"
	case "agent_id":
		return "u.agent_id"
	default:
		return column
	}
}
