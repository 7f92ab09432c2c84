// Package ledger defines the append-only ledger gateway the core submits
// to and scans from, along with in-memory and PostgreSQL implementations.
//
// Entries are chained by SHA-256 in the order they were accepted, so any
// tampering with historical payloads is detectable via Verify. The chain
// begins at the well-known GenesisHash anchor.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GenesisHash is the well-known anchor of the entry chain: the PrevHash of
// the very first accepted entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// TransferIntent is an auxiliary value transfer bundled atomically with a
// payload submission, used by the repayment flow.
type TransferIntent struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// SubmissionError reports a rejected or unconfirmed submission. It is
// fatal to the calling operation and is not retried at this layer.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("ledger: submission failed: %v", e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// Gateway is the append-only ledger collaborator contract.
//
// Fetch never fails for absence: a missing or unavailable payload is
// (nil, nil). ListRecent is best-effort: it returns entry refs newest
// first, may return fewer than limit, and may omit very recent entries
// that are not yet confirmed. Neither completeness nor unbounded history
// is guaranteed.
type Gateway interface {
	// Submit appends a payload, optionally bundled with value transfers,
	// and returns the new entry's ref. Failure is a *SubmissionError.
	Submit(ctx context.Context, owner string, payload []byte, intents ...TransferIntent) (string, error)

	// Fetch returns the payload stored under entryRef, or nil when the
	// entry is absent or outside the gateway's retention window.
	Fetch(ctx context.Context, entryRef string) ([]byte, error)

	// ListRecent returns up to limit confirmed entry refs the owner
	// participated in, newest first. An owner participates in the entries
	// it submitted and in entries whose bundled transfers pay it, the way
	// an account history includes incoming payments.
	ListRecent(ctx context.Context, owner string, limit int) ([]string, error)

	// CapabilityVersion reports the backing ledger's version string. Used
	// only by connectivity checks; irrelevant to the core operations.
	CapabilityVersion(ctx context.Context) (string, error)
}

// Entry is a single confirmed or pending ledger entry. Entries are never
// mutated or deleted once accepted.
type Entry struct {
	Index     int              `json:"index"`
	Ref       string           `json:"ref"`
	Owner     string           `json:"owner"`
	Payload   []byte           `json:"payload,omitempty"`
	Transfers []TransferIntent `json:"transfers,omitempty"`
	Confirmed bool             `json:"confirmed"`
	CreatedAt time.Time        `json:"created_at"`
	PrevHash  string           `json:"prev_hash"`
	Hash      string           `json:"hash"`
}

// hashEntry computes the deterministic SHA-256 chain hash of an entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s",
		e.Index, e.CreatedAt.Format(time.RFC3339Nano),
		e.Ref, e.Owner, sha256Sum(e.Payload), e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// sha256Sum returns the hex-encoded SHA-256 digest of data.
func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
