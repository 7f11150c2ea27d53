package ledger

import "github.com/google/uuid"

// ExportedAdvisoryLockKey exposes advisoryLockKey to the external test
// package without widening the real API surface.
func ExportedAdvisoryLockKey(group uuid.UUID) int64 {
	return advisoryLockKey(group)
}
