// Package verify recomputes content identifiers from fetched ledger
// payloads and confirms claimed identifiers against them.
//
// The ledger is keyed by entry ref, not by identifier, so identifier
// lookups are a bounded, best-effort scan over an owner's recent history.
// A miss means "not found within the scan window", never proof of
// non-existence.
package verify

import (
	"context"

	"github.com/crediflow/crediflow/internal/canonical"
	"github.com/crediflow/crediflow/internal/ledger"
	"github.com/crediflow/crediflow/internal/record"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds verifier tuning knobs.
type Config struct {
	// ScanWindow is the maximum number of recent entries inspected per
	// identifier lookup. Default 50.
	ScanWindow int

	// MaxConcurrent caps parallel Fetch calls during a scan, respecting
	// the gateway's rate limits. Default 8.
	MaxConcurrent int
}

// Result is the outcome of a verification. When Verified is true, exactly
// one of Invoice or Loan carries the reconstructed record.
type Result struct {
	Verified bool                  `json:"verified"`
	EntryRef string                `json:"entry_ref,omitempty"`
	Invoice  *record.InvoiceRecord `json:"invoice,omitempty"`
	Loan     *record.LoanRecord    `json:"loan,omitempty"`
}

// Verifier checks payloads against claimed content identifiers.
type Verifier struct {
	gateway ledger.Gateway
	cfg     Config
	logger  *zap.Logger
}

// New creates a Verifier. Zero Config fields fall back to defaults.
func New(gateway ledger.Gateway, cfg Config, logger *zap.Logger) *Verifier {
	if cfg.ScanWindow <= 0 {
		cfg.ScanWindow = 50
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Verifier{gateway: gateway, cfg: cfg, logger: logger}
}

// ScanWindow reports the configured scan depth.
func (v *Verifier) ScanWindow() int { return v.cfg.ScanWindow }

// VerifyEntry fetches the payload stored under entryRef, recomputes its
// content identifier over the originally hashed fields, and, when
// expectedID is non-empty, confirms they match. An absent or malformed
// payload is an unverified result, not an error.
func (v *Verifier) VerifyEntry(ctx context.Context, entryRef, expectedID string) Result {
	payload, err := v.gateway.Fetch(ctx, entryRef)
	if err != nil {
		// Unavailable entries are skipped, not escalated.
		v.logger.Debug("fetch failed during verification", zap.String("ref", entryRef), zap.Error(err))
		return Result{}
	}
	if payload == nil {
		return Result{}
	}

	parsed, err := record.FromPayload(payload)
	if err != nil {
		v.logger.Debug("unparseable payload during verification", zap.String("ref", entryRef), zap.Error(err))
		return Result{}
	}
	if parsed.ID == "" {
		// Repay memos and other non-addressed payloads cannot be verified
		// against an identifier.
		return Result{}
	}
	if expectedID != "" && parsed.ID != expectedID {
		return Result{}
	}

	res := Result{Verified: true, EntryRef: entryRef, Invoice: parsed.Invoice, Loan: parsed.Loan}
	if res.Invoice != nil {
		res.Invoice.EntryRef = entryRef
	}
	if res.Loan != nil {
		res.Loan.EntryRef = entryRef
	}
	return res
}

// VerifyID searches the owner's recent entries for a payload whose
// recomputed identifier equals id and returns the first (newest) exact
// match. The scan is bounded by the configured window: a record outside
// it yields Verified=false, which callers must not treat as proof of
// non-existence. Malformed and unavailable entries are skipped.
func (v *Verifier) VerifyID(ctx context.Context, id, owner string) Result {
	if !canonical.IsIdentifier(id) {
		return Result{}
	}

	refs, err := v.gateway.ListRecent(ctx, owner, v.cfg.ScanWindow)
	if err != nil {
		v.logger.Warn("ledger listing failed during verification", zap.String("owner", owner), zap.Error(err))
		return Result{}
	}

	parsed := v.fetchAll(ctx, refs)
	for i, p := range parsed {
		if p != nil && p.ID == id {
			return v.resultFrom(refs[i], p)
		}
	}
	return Result{}
}

// fetchAll fetches and parses refs with bounded concurrency. Results keep
// listing order; unavailable or malformed entries are nil. Correctness
// never depends on fetch completion order.
func (v *Verifier) fetchAll(ctx context.Context, refs []string) []*record.Parsed {
	out := make([]*record.Parsed, len(refs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.MaxConcurrent)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			payload, err := v.gateway.Fetch(ctx, ref)
			if err != nil || payload == nil {
				return nil
			}
			p, err := record.FromPayload(payload)
			if err != nil {
				return nil
			}
			out[i] = p
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
	return out
}

func (v *Verifier) resultFrom(ref string, p *record.Parsed) Result {
	res := Result{Verified: true, EntryRef: ref, Invoice: p.Invoice, Loan: p.Loan}
	if res.Invoice != nil {
		res.Invoice.EntryRef = ref
	}
	if res.Loan != nil {
		res.Loan.EntryRef = ref
	}
	return res
}
