// Package audit appends a record of notable platform actions. The
// gateway records completed requests, provider-call errors, and budget
// auto-disables through it.
package audit

import (
	"context"
	"fmt"

	"github.com/levee-labs/credit-gateway/dbx"
	"github.com/levee-labs/credit-gateway/domain"
)

// Record inserts an AuditLog row via q (a pool or an in-flight tx).
func Record(ctx context.Context, q dbx.Querier, log domain.AuditLog) error {
	_, err := q.Exec(ctx, `
		INSERT INTO audit_logs
			(org_id, actor_user_id, actor_agent_id, event_type, resource_type, resource_id, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.OrgID, log.ActorUserID, log.ActorAgentID, log.EventType, log.ResourceType, log.ResourceID, log.Description, log.Metadata,
	)
	if err != nil {
		return fmt.Errorf("recording audit log: %w", err)
	}
	return nil
}
