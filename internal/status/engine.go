// Package status reconstructs the current business state of an invoice or
// loan by folding over a best-effort scan of the owner's recent ledger
// entries.
//
// The ledger offers no authoritative cross-reference from an identifier to
// the events mentioning it, so the fold works from two signals: structured
// payload fields (a "type" discriminator plus invoice_id/loan_id
// references) and, for payloads written by other software, keyword and
// identifier-substring matching. The result can under-report when history
// falls outside the scan window, but it never over-reports a terminal
// state: settlement is only ever derived from a repay-flavored match.
package status

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/crediflow/crediflow/internal/ledger"
	"github.com/crediflow/crediflow/internal/record"
	"github.com/crediflow/crediflow/internal/verify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds derivation tuning knobs.
type Config struct {
	// ScanWindow bounds the number of recent entries folded per query.
	// Default 50.
	ScanWindow int

	// MaxConcurrent caps parallel Fetch calls. Default 8.
	MaxConcurrent int
}

// Engine derives invoice and loan statuses. It is stateless: every query
// recomputes from a fresh scan, and independent callers may invoke it
// concurrently.
type Engine struct {
	gateway  ledger.Gateway
	verifier *verify.Verifier
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

// New creates an Engine. Zero Config fields fall back to defaults.
func New(gateway ledger.Gateway, verifier *verify.Verifier, cfg Config, logger *zap.Logger) *Engine {
	if cfg.ScanWindow <= 0 {
		cfg.ScanWindow = 50
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Engine{
		gateway:  gateway,
		verifier: verifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock replaces the engine's time source. Intended for tests of
// duration-dependent derivation (loan default).
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// InvoiceStatus derives the current status of invoiceID from the owner's
// recent entries. An invoice that cannot be verified within the scan
// window is not_found; a verified one starts at verified and is upgraded
// by financing-flavored matches to financed and by repay-flavored matches
// to settled. Settled is terminal and wins regardless of scan order.
func (e *Engine) InvoiceStatus(ctx context.Context, invoiceID, owner string) record.InvoiceStatus {
	res := e.verifier.VerifyID(ctx, invoiceID, owner)
	if !res.Verified {
		return record.InvoiceNotFound
	}

	st := record.InvoiceVerified
	for _, sc := range e.scan(ctx, owner, res.EntryRef) {
		if !referencesID(sc, invoiceID) {
			continue
		}
		if repayFlavored(sc) {
			// Terminal: repayment can only follow financing, so nothing
			// scanned later can change the outcome.
			return record.InvoiceSettled
		}
		if financeFlavored(sc) {
			st = record.InvoiceFinanced
		}
	}
	return st
}

// LoanStatus derives the current status of loanID. A loan whose request
// entry cannot be verified is not_found. Its own request entry establishes
// requested; any other financing-flavored entry referencing the loan
// upgrades it to active; a repay-flavored match is terminal. An active
// loan past its duration with no repayment derives defaulted.
func (e *Engine) LoanStatus(ctx context.Context, loanID, owner string) record.LoanStatus {
	res := e.verifier.VerifyID(ctx, loanID, owner)
	if !res.Verified || res.Loan == nil {
		return record.LoanNotFound
	}

	st := record.LoanRequested
	for _, sc := range e.scan(ctx, owner, res.EntryRef) {
		if !referencesID(sc, loanID) {
			continue
		}
		if repayFlavored(sc) {
			return record.LoanRepaid
		}
		if financeFlavored(sc) {
			st = record.LoanActive
		}
	}

	if st == record.LoanActive && e.now().After(res.Loan.DueAt()) {
		return record.LoanDefaulted
	}
	return st
}

// scanned is one entry's raw payload plus its structured parse, when the
// payload turned out to be one of ours.
type scanned struct {
	raw    []byte
	parsed *record.Parsed // nil for foreign or malformed payloads
}

// scan fetches the owner's recent payloads with bounded concurrency,
// skipping the record's own entry and anything unavailable. A payload
// that fails structured parsing is still scanned as raw bytes: a single
// corrupt or foreign entry must not abort derivation for the rest.
func (e *Engine) scan(ctx context.Context, owner, ownRef string) []scanned {
	refs, err := e.gateway.ListRecent(ctx, owner, e.cfg.ScanWindow)
	if err != nil {
		e.logger.Warn("ledger listing failed during derivation", zap.String("owner", owner), zap.Error(err))
		return nil
	}

	out := make([]scanned, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrent)
	for i, ref := range refs {
		if ref == ownRef {
			continue
		}
		i, ref := i, ref
		g.Go(func() error {
			raw, err := e.gateway.Fetch(ctx, ref)
			if err != nil || raw == nil {
				return nil
			}
			parsed, err := record.FromPayload(raw)
			if err != nil {
				parsed = nil
			}
			out[i] = scanned{raw: raw, parsed: parsed}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	result := out[:0]
	for _, sc := range out {
		if sc.raw != nil {
			result = append(result, sc)
		}
	}
	return result
}

// referencesID reports whether a scanned payload refers to id, preferring
// structured reference fields and falling back to identifier-substring
// containment for payloads written by other software.
func referencesID(sc scanned, id string) bool {
	if p := sc.parsed; p != nil {
		switch p.Type {
		case record.PayloadTypeLoan:
			if p.Loan.InvoiceID == id {
				return true
			}
		case record.PayloadTypeFunding:
			if p.Funding.LoanID == id || p.Funding.InvoiceID == id {
				return true
			}
		case record.PayloadTypeRepay:
			if p.Repay.LoanID == id || p.Repay.InvoiceID == id {
				return true
			}
		}
	}
	return bytes.Contains(sc.raw, []byte(id))
}

// repayFlavored reports whether a payload records a repayment: a
// structured repay memo, or a foreign payload mentioning repayment.
func repayFlavored(sc scanned) bool {
	if sc.parsed != nil {
		return sc.parsed.Type == record.PayloadTypeRepay
	}
	return containsAny(sc.raw, "repay")
}

// financeFlavored reports whether a payload records financing activity:
// a loan request, a structured funding memo, or a foreign payload using
// financing vocabulary.
func financeFlavored(sc scanned) bool {
	if sc.parsed != nil {
		return sc.parsed.Type == record.PayloadTypeLoan || sc.parsed.Type == record.PayloadTypeFunding
	}
	return containsAny(sc.raw, "loan", "lend", "financ")
}

func containsAny(raw []byte, keywords ...string) bool {
	lower := strings.ToLower(string(raw))
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
