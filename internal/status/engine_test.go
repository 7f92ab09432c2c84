package status_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/crediflow/crediflow/internal/ledger"
	"github.com/crediflow/crediflow/internal/record"
	"github.com/crediflow/crediflow/internal/status"
	"github.com/crediflow/crediflow/internal/verify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ctx = context.Background()
	now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

const owner = "addr_issuer_1"

type fixture struct {
	gateway *ledger.MemoryGateway
	engine  *status.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := ledger.NewMemoryGateway()
	v := verify.New(g, verify.Config{}, zap.NewNop())
	e := status.New(g, v, status.Config{}, zap.NewNop())
	e.SetClock(func() time.Time { return now })
	return &fixture{gateway: g, engine: e}
}

func (f *fixture) submitInvoice(t *testing.T) string {
	t.Helper()
	payload, id, err := record.BuildInvoicePayload(record.InvoiceInput{
		Amount:            decimal.NewFromFloat(1.5),
		RecipientIdentity: "addr_recipient_1",
		DueDate:           now.Add(30 * 24 * time.Hour),
	}, owner, now)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.gateway.Submit(ctx, owner, payload); err != nil {
		t.Fatal(err)
	}
	return id
}

func (f *fixture) submitLoan(t *testing.T, invoiceID string, durationDays int) string {
	t.Helper()
	payload, loanID, err := record.BuildLoanPayload(record.LoanInput{
		InvoiceID:        invoiceID,
		RequestedAmount:  decimal.NewFromInt(1000),
		LoanDurationDays: durationDays,
	}, owner, now)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.gateway.Submit(ctx, owner, payload); err != nil {
		t.Fatal(err)
	}
	return loanID
}

func (f *fixture) submitRaw(t *testing.T, payload string) {
	t.Helper()
	if _, err := f.gateway.Submit(ctx, owner, []byte(payload)); err != nil {
		t.Fatal(err)
	}
}

func TestInvoiceStatus_lifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.submitInvoice(t)

	if st := f.engine.InvoiceStatus(ctx, id, owner); st != record.InvoiceVerified {
		t.Fatalf("fresh invoice: status = %s, want verified", st)
	}

	f.submitLoan(t, id, 30)
	if st := f.engine.InvoiceStatus(ctx, id, owner); st != record.InvoiceFinanced {
		t.Fatalf("after loan request: status = %s, want financed", st)
	}

	repay, err := record.BuildRepayPayload(strings.Repeat("cd", 32), id, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatal(err)
	}
	f.submitRaw(t, string(repay))
	if st := f.engine.InvoiceStatus(ctx, id, owner); st != record.InvoiceSettled {
		t.Fatalf("after repayment: status = %s, want settled", st)
	}
}

func TestInvoiceStatus_terminalWinsRegardlessOfOrder(t *testing.T) {
	f := newFixture(t)
	id := f.submitInvoice(t)

	// Repay lands on the ledger before the loan entry: the newest-first
	// scan sees the loan match after the repay match. Settlement must
	// still win.
	repay, err := record.BuildRepayPayload(strings.Repeat("cd", 32), id, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatal(err)
	}
	f.submitRaw(t, string(repay))
	f.submitLoan(t, id, 30)

	if st := f.engine.InvoiceStatus(ctx, id, owner); st != record.InvoiceSettled {
		t.Errorf("status = %s, want settled regardless of scan order", st)
	}
}

func TestInvoiceStatus_unknownIdentifier(t *testing.T) {
	f := newFixture(t)
	f.submitInvoice(t)

	if st := f.engine.InvoiceStatus(ctx, "nonexistent-id", owner); st != record.InvoiceNotFound {
		t.Errorf("status = %s, want not_found", st)
	}
	if st := f.engine.InvoiceStatus(ctx, strings.Repeat("9", 64), owner); st != record.InvoiceNotFound {
		t.Errorf("well-formed but unknown id: status = %s, want not_found", st)
	}
}

func TestInvoiceStatus_foreignKeywordPayload(t *testing.T) {
	f := newFixture(t)
	id := f.submitInvoice(t)

	// A payload written by other software: no type discriminator, but it
	// mentions the identifier and uses financing vocabulary.
	f.submitRaw(t, fmt.Sprintf(`{"note":"lending against %s"}`, id))

	if st := f.engine.InvoiceStatus(ctx, id, owner); st != record.InvoiceFinanced {
		t.Errorf("status = %s, want financed from keyword fallback", st)
	}
}

func TestInvoiceStatus_corruptEntriesAreSkipped(t *testing.T) {
	f := newFixture(t)
	id := f.submitInvoice(t)
	f.submitRaw(t, "corrupt {{{ not json")

	if st := f.engine.InvoiceStatus(ctx, id, owner); st != record.InvoiceVerified {
		t.Errorf("status = %s, want verified despite corrupt neighbour", st)
	}
}

func TestLoanStatus_lifecycle(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.submitInvoice(t)
	loanID := f.submitLoan(t, invoiceID, 30)

	if st := f.engine.LoanStatus(ctx, loanID, owner); st != record.LoanRequested {
		t.Fatalf("fresh loan: status = %s, want requested", st)
	}

	funding, err := record.BuildFundingPayload(loanID, invoiceID, decimal.NewFromInt(1000), "addr_lender_1")
	if err != nil {
		t.Fatal(err)
	}
	f.submitRaw(t, string(funding))
	if st := f.engine.LoanStatus(ctx, loanID, owner); st != record.LoanActive {
		t.Fatalf("after funding: status = %s, want active", st)
	}

	repay, err := record.BuildRepayPayload(loanID, invoiceID, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatal(err)
	}
	f.submitRaw(t, string(repay))
	if st := f.engine.LoanStatus(ctx, loanID, owner); st != record.LoanRepaid {
		t.Fatalf("after repayment: status = %s, want repaid", st)
	}
}

func TestLoanStatus_overdueActiveLoanDefaults(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.submitInvoice(t)
	loanID := f.submitLoan(t, invoiceID, 7)

	funding, err := record.BuildFundingPayload(loanID, "", decimal.NewFromInt(1000), "")
	if err != nil {
		t.Fatal(err)
	}
	f.submitRaw(t, string(funding))

	f.engine.SetClock(func() time.Time { return now.Add(8 * 24 * time.Hour) })
	if st := f.engine.LoanStatus(ctx, loanID, owner); st != record.LoanDefaulted {
		t.Errorf("overdue active loan: status = %s, want defaulted", st)
	}

	// A repayment clears the default even after the due date.
	repay, err := record.BuildRepayPayload(loanID, "", decimal.NewFromInt(1000))
	if err != nil {
		t.Fatal(err)
	}
	f.submitRaw(t, string(repay))
	if st := f.engine.LoanStatus(ctx, loanID, owner); st != record.LoanRepaid {
		t.Errorf("repaid overdue loan: status = %s, want repaid", st)
	}
}

func TestLoanStatus_overdueUnfundedLoanStaysRequested(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.submitInvoice(t)
	loanID := f.submitLoan(t, invoiceID, 7)

	// Never funded: a stale request does not default, it just sits there.
	f.engine.SetClock(func() time.Time { return now.Add(30 * 24 * time.Hour) })
	if st := f.engine.LoanStatus(ctx, loanID, owner); st != record.LoanRequested {
		t.Errorf("stale unfunded loan: status = %s, want requested", st)
	}
}

func TestLoanStatus_danglingInvoiceReferenceIsTolerated(t *testing.T) {
	f := newFixture(t)
	// The referenced invoice was never submitted anywhere.
	loanID := f.submitLoan(t, strings.Repeat("ef", 32), 30)

	if st := f.engine.LoanStatus(ctx, loanID, owner); st != record.LoanRequested {
		t.Errorf("loan with dangling invoice ref: status = %s, want requested", st)
	}
}
