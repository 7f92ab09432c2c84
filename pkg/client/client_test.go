package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crediflow/crediflow/internal/finance"
	"github.com/crediflow/crediflow/internal/handler"
	"github.com/crediflow/crediflow/internal/identity"
	"github.com/crediflow/crediflow/internal/ledger"
	"github.com/crediflow/crediflow/internal/status"
	"github.com/crediflow/crediflow/internal/verify"
	"github.com/crediflow/crediflow/pkg/client"
)

var ctx = context.Background()

// startGateway runs a full in-memory gateway behind httptest.
func startGateway(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	gw := ledger.NewMemoryGateway()
	verifier := verify.New(gw, verify.Config{}, logger)
	engine := status.New(gw, verifier, status.Config{}, logger)
	svc := finance.NewService(gw, verifier, engine, logger)

	tokens, err := identity.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "crediflow-test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAuthHandler(tokens, time.Hour, logger).Register(v1)
	handler.NewInvoiceHandler(svc, tokens, logger).Register(v1)
	handler.NewLoanHandler(svc, tokens, logger).Register(v1)
	handler.NewLedgerHandler(gw, logger).Register(v1)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func invoiceRequest() client.InvoiceRequest {
	return client.InvoiceRequest{
		Amount:            decimal.NewFromInt(1000),
		RecipientIdentity: "addr_recipient_1",
		DueDate:           time.Now().UTC().Add(30 * 24 * time.Hour),
	}
}

func TestClient_fullLifecycle(t *testing.T) {
	srv := startGateway(t)

	borrower, err := client.New(srv.URL, client.WithAddress("addr_borrower_1"))
	if err != nil {
		t.Fatal(err)
	}
	lender, err := client.New(srv.URL, client.WithAddress("addr_lender_1"))
	if err != nil {
		t.Fatal(err)
	}

	inv, err := borrower.SubmitInvoice(ctx, invoiceRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.InvoiceID) != 64 || inv.EntryRef == "" {
		t.Fatalf("unexpected invoice: %+v", inv)
	}

	if st, err := borrower.InvoiceStatus(ctx, inv.InvoiceID, ""); err != nil || st != "verified" {
		t.Fatalf("invoice status = %q, %v", st, err)
	}

	res, err := borrower.VerifyInvoice(ctx, inv.InvoiceID, "", inv.EntryRef)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Verified || res.Invoice == nil {
		t.Fatalf("verify result: %+v", res)
	}

	loan, assessment, err := borrower.RequestLoan(ctx, client.LoanRequest{
		InvoiceID:        inv.InvoiceID,
		RequestedAmount:  decimal.NewFromInt(800),
		LoanDurationDays: 30,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !assessment.Approved {
		t.Fatalf("assessment: %+v", assessment)
	}

	if _, err := lender.FundLoan(ctx, loan.LoanID, "addr_borrower_1"); err != nil {
		t.Fatal(err)
	}
	if st, _ := borrower.LoanStatus(ctx, loan.LoanID, ""); st != "active" {
		t.Fatalf("loan status = %q, want active", st)
	}

	if _, err := borrower.RepayLoan(ctx, loan.LoanID, "addr_lender_1", decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if st, _ := borrower.LoanStatus(ctx, loan.LoanID, ""); st != "repaid" {
		t.Fatalf("loan status = %q, want repaid", st)
	}
	if st, _ := borrower.InvoiceStatus(ctx, inv.InvoiceID, ""); st != "settled" {
		t.Fatalf("invoice status = %q, want settled", st)
	}

	entry, err := borrower.LedgerEntry(ctx, inv.EntryRef)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Type != "invoice" || entry.ID != inv.InvoiceID {
		t.Errorf("entry detail: %+v", entry)
	}
}

func TestClient_declinedLoan(t *testing.T) {
	srv := startGateway(t)

	borrower, err := client.New(srv.URL, client.WithAddress("addr_borrower_1"))
	if err != nil {
		t.Fatal(err)
	}

	inv, err := borrower.SubmitInvoice(ctx, invoiceRequest())
	if err != nil {
		t.Fatal(err)
	}

	_, assessment, err := borrower.RequestLoan(ctx, client.LoanRequest{
		InvoiceID:        inv.InvoiceID,
		RequestedAmount:  decimal.NewFromInt(150_000),
		LoanDurationDays: 365,
	})
	if !errors.Is(err, client.ErrLoanDeclined) {
		t.Fatalf("err = %v, want ErrLoanDeclined", err)
	}
	if assessment == nil || assessment.Grade != "reject" {
		t.Fatalf("assessment: %+v", assessment)
	}
}

func TestClient_tokenReuse(t *testing.T) {
	srv := startGateway(t)

	c, err := client.New(srv.URL, client.WithAddress("addr_issuer_1"))
	if err != nil {
		t.Fatal(err)
	}

	first, err := c.FetchToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first == "" {
		t.Fatal("empty token")
	}

	// A fresh token is valid for an hour, so the next call must reuse it.
	if _, err := c.SubmitInvoice(ctx, invoiceRequest()); err != nil {
		t.Fatal(err)
	}
}

func TestClient_errorsWithoutCredentials(t *testing.T) {
	srv := startGateway(t)

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.SubmitInvoice(ctx, invoiceRequest()); err == nil {
		t.Fatal("expected an error without address or token")
	}
}

func TestClient_manualBearerToken(t *testing.T) {
	srv := startGateway(t)

	bootstrap, err := client.New(srv.URL, client.WithAddress("addr_issuer_1"))
	if err != nil {
		t.Fatal(err)
	}
	token, err := bootstrap.FetchToken(ctx)
	if err != nil {
		t.Fatal(err)
	}

	c, err := client.New(srv.URL, client.WithBearerToken(token))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.SubmitInvoice(ctx, invoiceRequest()); err != nil {
		t.Fatal(err)
	}

	// A malformed identifier is still a normal negative result.
	if st, err := c.InvoiceStatus(ctx, "zzz", "addr_issuer_1"); err != nil || st != "not_found" {
		t.Fatalf("status = %q, %v, want not_found", st, err)
	}

	if _, err := c.LedgerOverview(ctx); err != nil {
		t.Fatal(err)
	}
}
