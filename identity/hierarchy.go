package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levee-labs/credit-gateway/domain"
)

// ErrNotFound is returned when no api_key row matches a hash.
var ErrNotFound = errors.New("api key not found")

// ErrRevoked is returned when the matched api_key row has been revoked.
var ErrRevoked = errors.New("api key revoked")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ResolveByKeyHash authenticates a key hash and resolves the agent's
// full hierarchy path in a single query, avoiding four round trips on
// the hot request path.
func (s *Store) ResolveByKeyHash(ctx context.Context, keyHash string) (domain.HierarchyPath, error) {
	var path domain.HierarchyPath
	var keyIsActive bool
	var revokedReason string

	err := s.pool.QueryRow(ctx, `
		SELECT
			k.is_active, k.revoked_reason,
			a.id, a.agent_group_id, a.name, a.status, a.created_at,
			ag.id, ag.workspace_id, ag.name, ag.is_active, ag.created_at,
			w.id, w.org_id, w.name, w.is_active, w.created_at,
			o.id, o.name, o.billing_group_id, o.credits_per_usd, o.owner_user_id, o.is_active, o.created_at
		FROM api_keys k
		JOIN agents a ON a.id = k.agent_id
		JOIN agent_groups ag ON ag.id = a.agent_group_id
		JOIN workspaces w ON w.id = ag.workspace_id
		JOIN organizations o ON o.id = w.org_id
		WHERE k.key_hash = $1`, keyHash,
	).Scan(
		&keyIsActive, &revokedReason,
		&path.Agent.ID, &path.Agent.AgentGroupID, &path.Agent.Name, &path.Agent.Status, &path.Agent.CreatedAt,
		&path.AgentGroup.ID, &path.AgentGroup.WorkspaceID, &path.AgentGroup.Name, &path.AgentGroup.IsActive, &path.AgentGroup.CreatedAt,
		&path.Workspace.ID, &path.Workspace.OrgID, &path.Workspace.Name, &path.Workspace.IsActive, &path.Workspace.CreatedAt,
		&path.Org.ID, &path.Org.Name, &path.Org.BillingGroupID, &path.Org.CreditsPerUSD, &path.Org.OwnerUserID, &path.Org.IsActive, &path.Org.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.HierarchyPath{}, ErrNotFound
	}
	if err != nil {
		return domain.HierarchyPath{}, fmt.Errorf("resolving hierarchy: %w", err)
	}
	if !keyIsActive {
		return domain.HierarchyPath{}, fmt.Errorf("%w: %s", ErrRevoked, revokedReason)
	}
	return path, nil
}

// CreateAPIKey persists a freshly generated key's hash for agentID.
func (s *Store) CreateAPIKey(ctx context.Context, agentID uuid.UUID, hash, suffix string) (domain.ApiKey, error) {
	var k domain.ApiKey
	err := s.pool.QueryRow(ctx, `
		INSERT INTO api_keys (agent_id, key_hash, key_suffix)
		VALUES ($1, $2, $3)
		RETURNING id, agent_id, key_hash, key_suffix, is_active, revoked_reason, created_at`,
		agentID, hash, suffix,
	).Scan(&k.ID, &k.AgentID, &k.KeyHash, &k.KeySuffix, &k.IsActive, &k.RevokedReason, &k.CreatedAt)
	if err != nil {
		return domain.ApiKey{}, fmt.Errorf("creating api key: %w", err)
	}
	return k, nil
}
