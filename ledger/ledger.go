// Package ledger implements the append-only credit ledger: every change
// to a billing group's balance is a signed row, the balance is always
// derived by summing, and a Postgres transaction-scoped advisory lock
// serializes concurrent deductions against the same group so a balance
// check and the deduction it gates never race.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// advisoryLockKey truncates group to its low 31 bits so the key fits
// pg_advisory_xact_lock's bigint domain deterministically across calls,
// matching the Python service's lock_key = group_id.int % (2**31).
func advisoryLockKey(group uuid.UUID) int64 {
	lo := uint32(group[12])<<24 | uint32(group[13])<<16 | uint32(group[14])<<8 | uint32(group[15])
	return int64(lo & 0x7fffffff)
}

// Balance sums all ledger_entries for group. Returns 0 for a group with
// no entries yet rather than an error.
func (s *Store) Balance(ctx context.Context, q Querier, group uuid.UUID) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE group_id = $1`, group,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("summing ledger entries: %w", err)
	}
	return balance, nil
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Append writes a new signed ledger entry inside tx, after taking the
// group's advisory lock so concurrent callers serialize on it. A
// non-empty idempotencyKey that already exists is treated as a replay:
// Append returns the prior entry without writing a duplicate row,
// matching the gateway pipeline's at-most-once deduction semantics.
func (s *Store) Append(ctx context.Context, tx pgx.Tx, group uuid.UUID, amount int64, entryType domain.LedgerEntryType, idempotencyKey string, metadata map[string]any) (domain.LedgerEntry, error) {
	if idempotencyKey != "" {
		existing, found, err := s.findByIdempotencyKey(ctx, tx, idempotencyKey)
		if err != nil {
			return domain.LedgerEntry{}, err
		}
		if found {
			return existing, nil
		}
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(group)); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("acquiring group lock: %w", err)
	}

	var idemPtr *string
	if idempotencyKey != "" {
		idemPtr = &idempotencyKey
	}

	var entry domain.LedgerEntry
	err := tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (group_id, amount, entry_type, idempotency_key, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, group_id, amount, entry_type, idempotency_key, metadata, created_at`,
		group, amount, entryType, idemPtr, metadata,
	).Scan(&entry.ID, &entry.GroupID, &entry.Amount, &entry.Type, &entry.IdempotencyKey, &entry.Metadata, &entry.CreatedAt)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("inserting ledger entry: %w", err)
	}
	return entry, nil
}

// Deduct appends a negative USAGE_DEDUCTION entry for amount credits,
// after re-reading the balance under the advisory lock and refusing to
// overdraw. The balance read and the deduction are atomic with respect
// to any other Deduct on the same group because both hold the same
// transaction-scoped lock before touching the ledger.
func (s *Store) Deduct(ctx context.Context, tx pgx.Tx, group uuid.UUID, amount int64, idempotencyKey string, metadata map[string]any) (domain.LedgerEntry, error) {
	if amount <= 0 {
		return domain.LedgerEntry{}, fmt.Errorf("deduct amount must be positive, got %d", amount)
	}

	if idempotencyKey != "" {
		existing, found, err := s.findByIdempotencyKey(ctx, tx, idempotencyKey)
		if err != nil {
			return domain.LedgerEntry{}, err
		}
		if found {
			return existing, nil
		}
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(group)); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("acquiring group lock: %w", err)
	}

	balance, err := s.Balance(ctx, tx, group)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if balance < amount {
		return domain.LedgerEntry{}, gatewayerr.InsufficientCredits(balance, amount)
	}

	var idemPtr *string
	if idempotencyKey != "" {
		idemPtr = &idempotencyKey
	}

	var entry domain.LedgerEntry
	err = tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (group_id, amount, entry_type, idempotency_key, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, group_id, amount, entry_type, idempotency_key, metadata, created_at`,
		group, -amount, domain.UsageDeduction, idemPtr, metadata,
	).Scan(&entry.ID, &entry.GroupID, &entry.Amount, &entry.Type, &entry.IdempotencyKey, &entry.Metadata, &entry.CreatedAt)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("inserting deduction: %w", err)
	}
	return entry, nil
}

func (s *Store) findByIdempotencyKey(ctx context.Context, tx pgx.Tx, idempotencyKey string) (domain.LedgerEntry, bool, error) {
	var entry domain.LedgerEntry
	err := tx.QueryRow(ctx,
		`SELECT id, group_id, amount, entry_type, idempotency_key, metadata, created_at
		 FROM ledger_entries WHERE idempotency_key = $1`, idempotencyKey,
	).Scan(&entry.ID, &entry.GroupID, &entry.Amount, &entry.Type, &entry.IdempotencyKey, &entry.Metadata, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LedgerEntry{}, false, nil
	}
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("checking idempotency key: %w", err)
	}
	return entry, true, nil
}
