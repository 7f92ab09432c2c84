package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to
// serialise concurrent Submit calls. The value is arbitrary but must be
// consistent across all gateway instances sharing a database.
const advisoryLockKey = int64(7_420_551_123)

// PostgresGateway persists the entry chain to a PostgreSQL database. It
// implements the Gateway interface.
type PostgresGateway struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresGateway creates a PostgresGateway backed by the given pool.
func NewPostgresGateway(pool *pgxpool.Pool, logger *zap.Logger) *PostgresGateway {
	return &PostgresGateway{pool: pool, logger: logger}
}

// Submit implements Gateway. It acquires an advisory lock, reads the chain
// tail, computes the new entry hash, and inserts the entry together with
// any bundled transfers in a single transaction, so a repayment's memo and
// value transfer are atomic.
func (g *PostgresGateway) Submit(ctx context.Context, owner string, payload []byte, intents ...TransferIntent) (string, error) {
	if owner == "" {
		return "", &SubmissionError{Cause: fmt.Errorf("no owner identity")}
	}
	if len(payload) == 0 && len(intents) == 0 {
		return "", &SubmissionError{Cause: fmt.Errorf("empty submission")}
	}

	participants := []string{owner}
	for _, t := range intents {
		if t.To != owner {
			participants = append(participants, t.To)
		}
	}

	var transfersJSON []byte
	if len(intents) > 0 {
		b, err := json.Marshal(intents)
		if err != nil {
			return "", &SubmissionError{Cause: fmt.Errorf("marshal transfers: %w", err)}
		}
		transfersJSON = b
	}

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return "", &SubmissionError{Cause: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent submits with a transaction-scoped advisory lock.
	// The lock is released when the transaction commits or rolls back.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return "", &SubmissionError{Cause: fmt.Errorf("acquire advisory lock: %w", err)}
	}

	prevIdx := -1
	prevHash := GenesisHash
	err = tx.QueryRow(ctx,
		"SELECT idx, hash FROM ledger_entries ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", &SubmissionError{Cause: fmt.Errorf("read chain tail: %w", err)}
	}

	entry := &Entry{
		Index:     prevIdx + 1,
		Ref:       uuid.NewString(),
		Owner:     owner,
		Payload:   payload,
		Confirmed: true,
		CreatedAt: time.Now().UTC(),
		PrevHash:  prevHash,
	}
	entry.Hash = hashEntry(entry)

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (idx, ref, owner, participants, payload, transfers, confirmed, created_at, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.Index, entry.Ref, entry.Owner, participants, entry.Payload, transfersJSON,
		entry.Confirmed, entry.CreatedAt, entry.PrevHash, entry.Hash,
	); err != nil {
		return "", &SubmissionError{Cause: fmt.Errorf("insert entry: %w", err)}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", &SubmissionError{Cause: fmt.Errorf("commit: %w", err)}
	}

	g.logger.Debug("ledger entry submitted",
		zap.Int("idx", entry.Index),
		zap.String("ref", entry.Ref),
		zap.String("owner", entry.Owner),
	)
	return entry.Ref, nil
}

// Fetch implements Gateway. A missing ref is (nil, nil), never an error.
func (g *PostgresGateway) Fetch(ctx context.Context, entryRef string) ([]byte, error) {
	var payload []byte
	err := g.pool.QueryRow(ctx,
		"SELECT payload FROM ledger_entries WHERE ref = $1", entryRef,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch entry %s: %w", entryRef, err)
	}
	return payload, nil
}

// ListRecent implements Gateway. Participation covers both submitted
// entries and entries carrying a transfer to the owner.
func (g *PostgresGateway) ListRecent(ctx context.Context, owner string, limit int) ([]string, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT ref FROM ledger_entries
		 WHERE $1 = ANY(participants) AND confirmed
		 ORDER BY idx DESC LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", owner, err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan entry ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// CapabilityVersion implements Gateway.
func (g *PostgresGateway) CapabilityVersion(ctx context.Context) (string, error) {
	var version string
	if err := g.pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}
	return version, nil
}

// Verify streams all rows ordered by idx and validates the hash chain.
// O(n) in ledger length; may be slow for very large ledgers.
func (g *PostgresGateway) Verify(ctx context.Context) error {
	rows, err := g.pool.Query(ctx,
		`SELECT idx, ref, owner, payload, confirmed, created_at, prev_hash, hash
		 FROM ledger_entries ORDER BY idx ASC`,
	)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	prevHash := GenesisHash
	for rows.Next() {
		curr := &Entry{}
		if err := rows.Scan(
			&curr.Index, &curr.Ref, &curr.Owner, &curr.Payload,
			&curr.Confirmed, &curr.CreatedAt, &curr.PrevHash, &curr.Hash,
		); err != nil {
			return fmt.Errorf("scan ledger row: %w", err)
		}

		if curr.PrevHash != prevHash {
			return fmt.Errorf("hash chain broken at index %d", curr.Index)
		}
		if curr.Hash != hashEntry(curr) {
			return fmt.Errorf("entry %d has invalid hash", curr.Index)
		}
		prevHash = curr.Hash
	}
	return rows.Err()
}
