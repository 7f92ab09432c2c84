package finance_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/crediflow/crediflow/internal/finance"
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

const (
	borrowerAddr = "addr_borrower_1"
	lenderAddr   = "addr_lender_1"
)

// newService builds a Service bound to identity, sharing the given
// gateway with any other services in the test.
func newService(t *testing.T, gw ledger.Gateway, identity string) *finance.Service {
	t.Helper()

	logger := zap.NewNop()
	verifier := verify.New(gw, verify.Config{}, logger)
	engine := status.New(gw, verifier, status.Config{}, logger)
	engine.SetClock(func() time.Time { return now })

	svc := finance.NewService(gw, verifier, engine, logger)
	svc.SetClock(func() time.Time { return now })
	if identity != "" {
		if err := svc.BindIdentity(identity); err != nil {
			t.Fatal(err)
		}
	}
	return svc
}

func invoiceInput() record.InvoiceInput {
	return record.InvoiceInput{
		Amount:            decimal.NewFromInt(1000),
		RecipientIdentity: "addr_recipient_1",
		DueDate:           now.Add(30 * 24 * time.Hour),
	}
}

func TestSubmitInvoice_requiresBoundIdentity(t *testing.T) {
	gw := ledger.NewMemoryGateway()
	svc := newService(t, gw, "")

	_, err := svc.SubmitInvoice(ctx, invoiceInput())
	var authErr *finance.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthorizationError", err)
	}
	if gw.Len() != 0 {
		t.Error("nothing may reach the ledger without a signing identity")
	}
}

func TestLifecycle_invoiceAndLoan(t *testing.T) {
	gw := ledger.NewMemoryGateway()
	borrower := newService(t, gw, borrowerAddr)
	lender := newService(t, gw, lenderAddr)

	inv, err := borrower.SubmitInvoice(ctx, invoiceInput())
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.InvoiceID) != 64 || inv.EntryRef == "" {
		t.Fatalf("unexpected invoice record: %+v", inv)
	}
	if inv.Status != record.InvoicePending {
		t.Errorf("fresh submission status = %q, want pending", inv.Status)
	}

	if st, err := borrower.InvoiceStatus(ctx, inv.InvoiceID, ""); err != nil || st != record.InvoiceVerified {
		t.Fatalf("invoice status = %q, %v, want verified", st, err)
	}

	loan, assessment, err := borrower.RequestLoan(ctx, record.LoanInput{
		InvoiceID:        inv.InvoiceID,
		RequestedAmount:  decimal.NewFromInt(800),
		LoanDurationDays: 30,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !assessment.Approved || assessment.Score != 0 {
		t.Fatalf("clean request assessment: %+v", assessment)
	}
	if st, err := borrower.LoanStatus(ctx, loan.LoanID, ""); err != nil || st != record.LoanRequested {
		t.Fatalf("loan status = %q, %v, want requested", st, err)
	}

	if _, err := lender.Fund(ctx, loan.LoanID, borrowerAddr); err != nil {
		t.Fatal(err)
	}
	if st, _ := borrower.LoanStatus(ctx, loan.LoanID, ""); st != record.LoanActive {
		t.Fatalf("funded loan status = %q, want active", st)
	}
	if st, _ := borrower.InvoiceStatus(ctx, inv.InvoiceID, ""); st != record.InvoiceFinanced {
		t.Fatalf("financed invoice status = %q, want financed", st)
	}

	if _, err := borrower.Repay(ctx, loan.LoanID, lenderAddr, decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if st, _ := borrower.LoanStatus(ctx, loan.LoanID, ""); st != record.LoanRepaid {
		t.Fatalf("repaid loan status = %q, want repaid", st)
	}
	if st, _ := borrower.InvoiceStatus(ctx, inv.InvoiceID, ""); st != record.InvoiceSettled {
		t.Fatalf("settled invoice status = %q, want settled", st)
	}

	if err := gw.Verify(ctx); err != nil {
		t.Errorf("hash chain broken after lifecycle: %v", err)
	}
}

func TestRepay_derivesCounterpartFromLoanRecord(t *testing.T) {
	gw := ledger.NewMemoryGateway()
	borrower := newService(t, gw, borrowerAddr)

	inv, err := borrower.SubmitInvoice(ctx, invoiceInput())
	if err != nil {
		t.Fatal(err)
	}

	loan, _, err := borrower.RequestLoan(ctx, record.LoanInput{
		InvoiceID:        inv.InvoiceID,
		RequestedAmount:  decimal.NewFromInt(500),
		LoanDurationDays: 14,
		LenderIdentity:   lenderAddr,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Counterpart and amount both come from the recorded loan.
	ref, err := borrower.Repay(ctx, loan.LoanID, "", decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := gw.Entry(ref)
	if !ok {
		t.Fatal("repay entry missing")
	}
	if len(entry.Transfers) != 1 || entry.Transfers[0].To != lenderAddr {
		t.Fatalf("transfers = %+v, want one transfer to the lender", entry.Transfers)
	}
	if !entry.Transfers[0].Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("transfer amount = %s, want 500", entry.Transfers[0].Amount)
	}
}

func TestRepay_unknownLoanWithoutCounterpart(t *testing.T) {
	gw := ledger.NewMemoryGateway()
	borrower := newService(t, gw, borrowerAddr)

	_, err := borrower.Repay(ctx, strings.Repeat("a", 64), "", decimal.Zero)
	if err == nil {
		t.Fatal("expected an error when no counterpart can be derived")
	}
}

func TestRequestLoan_declinedLeavesLedgerUntouched(t *testing.T) {
	gw := ledger.NewMemoryGateway()
	borrower := newService(t, gw, borrowerAddr)

	inv, err := borrower.SubmitInvoice(ctx, invoiceInput())
	if err != nil {
		t.Fatal(err)
	}
	before := gw.Len()

	loan, assessment, err := borrower.RequestLoan(ctx, record.LoanInput{
		InvoiceID:        inv.InvoiceID,
		RequestedAmount:  decimal.NewFromInt(150_000),
		LoanDurationDays: 365,
	})
	if !errors.Is(err, finance.ErrLoanDeclined) {
		t.Fatalf("err = %v, want ErrLoanDeclined", err)
	}
	if loan != nil {
		t.Errorf("declined request produced a loan record: %+v", loan)
	}
	if assessment == nil || assessment.Grade != "reject" {
		t.Fatalf("assessment = %+v, want grade reject", assessment)
	}
	if gw.Len() != before {
		t.Error("declined request must not append anything")
	}
}

func TestFund_unknownLoan(t *testing.T) {
	gw := ledger.NewMemoryGateway()
	lender := newService(t, gw, lenderAddr)

	_, err := lender.Fund(ctx, strings.Repeat("b", 64), borrowerAddr)
	if err == nil {
		t.Fatal("funding an unknown loan must fail")
	}
}

func TestAssess_unverifiableInvoiceIsAFinding(t *testing.T) {
	gw := ledger.NewMemoryGateway()
	borrower := newService(t, gw, borrowerAddr)

	a, err := borrower.Assess(ctx, record.LoanInput{
		InvoiceID:        strings.Repeat("c", 64),
		RequestedAmount:  decimal.NewFromInt(500),
		LoanDurationDays: 30,
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range a.Findings {
		if f.Rule == "unverified_invoice" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unverified_invoice finding, got %+v", a.Findings)
	}
}

type failingGateway struct {
	*ledger.MemoryGateway
}

func (g *failingGateway) Submit(context.Context, string, []byte, ...ledger.TransferIntent) (string, error) {
	return "", &ledger.SubmissionError{Cause: fmt.Errorf("gateway unavailable")}
}

func TestSubmitInvoice_surfacesSubmissionError(t *testing.T) {
	gw := &failingGateway{ledger.NewMemoryGateway()}
	svc := newService(t, gw, borrowerAddr)

	_, err := svc.SubmitInvoice(ctx, invoiceInput())
	var subErr *ledger.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}
}
