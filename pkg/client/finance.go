package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ErrLoanDeclined is returned by RequestLoan when the gateway's risk
// assessment rejects the request. The assessment is still returned.
var ErrLoanDeclined = errors.New("loan request declined by risk assessment")

// InvoiceRequest is the payload for SubmitInvoice.
type InvoiceRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	RecipientIdentity string          `json:"recipient_identity"`
	DueDate           time.Time       `json:"due_date"`
	Description       string          `json:"description,omitempty"`
	IssuerName        string          `json:"issuer_name,omitempty"`
}

// Invoice is an invoice record as returned by the gateway.
type Invoice struct {
	InvoiceID         string          `json:"invoice_id"`
	Amount            decimal.Decimal `json:"amount"`
	RecipientIdentity string          `json:"recipient_identity"`
	DueDate           time.Time       `json:"due_date"`
	Description       string          `json:"description,omitempty"`
	IssuerName        string          `json:"issuer_name,omitempty"`
	IssuerIdentity    string          `json:"issuer_identity"`
	CreatedAt         time.Time       `json:"created_at"`
	Status            string          `json:"status,omitempty"`
	EntryRef          string          `json:"entry_ref,omitempty"`
}

// LoanRequest is the payload for RequestLoan and Assess.
type LoanRequest struct {
	InvoiceID        string          `json:"invoice_id"`
	RequestedAmount  decimal.Decimal `json:"requested_amount"`
	LoanDurationDays int             `json:"loan_duration_days"`
	LenderIdentity   string          `json:"lender_identity,omitempty"`
}

// Loan is a loan record as returned by the gateway.
type Loan struct {
	LoanID           string          `json:"loan_id"`
	InvoiceID        string          `json:"invoice_id"`
	RequestedAmount  decimal.Decimal `json:"requested_amount"`
	LoanDurationDays int             `json:"loan_duration_days"`
	LenderIdentity   string          `json:"lender_identity,omitempty"`
	BorrowerIdentity string          `json:"borrower_identity"`
	CreatedAt        time.Time       `json:"created_at"`
	Status           string          `json:"status,omitempty"`
	EntryRef         string          `json:"entry_ref,omitempty"`
}

// Finding is a single risk rule match.
type Finding struct {
	Rule        string  `json:"rule"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Assessment is a credit risk assessment returned by the gateway.
type Assessment struct {
	Score    int       `json:"score"`
	Grade    string    `json:"grade"`
	Findings []Finding `json:"findings"`
	Approved bool      `json:"approved"`
	Source   string    `json:"source,omitempty"`
}

// VerifyResult is the outcome of an identifier verification.
type VerifyResult struct {
	Verified bool     `json:"verified"`
	EntryRef string   `json:"entry_ref,omitempty"`
	Invoice  *Invoice `json:"invoice,omitempty"`
	Loan     *Loan    `json:"loan,omitempty"`
}

// LedgerStatus reports the backing ledger's capability version.
type LedgerStatus struct {
	CapabilityVersion string `json:"capability_version"`
}

// EntryDetail is a single ledger entry as returned by the gateway.
type EntryDetail struct {
	EntryRef string `json:"entry_ref"`
	Payload  string `json:"payload"`
	Type     string `json:"type,omitempty"`
	ID       string `json:"id,omitempty"`
}

// SubmitInvoice records a new invoice on the ledger.
func (c *Client) SubmitInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	var inv Invoice
	if err := c.do(ctx, http.MethodPost, "/api/v1/invoices", req, &inv, true); err != nil {
		return nil, err
	}
	return &inv, nil
}

// InvoiceStatus derives the lifecycle status of an invoice. owner may be
// empty when the client is configured with an address.
func (c *Client) InvoiceStatus(ctx context.Context, invoiceID, owner string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	path := "/api/v1/invoices/" + url.PathEscape(invoiceID) + "/status" + ownerQuery(owner)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, owner == ""); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// VerifyInvoice checks an identifier against the ledger. entryRef may be
// empty to scan the owner's recent history instead of a pinned entry.
func (c *Client) VerifyInvoice(ctx context.Context, id, owner, entryRef string) (*VerifyResult, error) {
	path := "/api/v1/invoices/" + url.PathEscape(id) + "/verify"
	switch {
	case entryRef != "":
		path += "?entry_ref=" + url.QueryEscape(entryRef)
	case owner != "":
		path += ownerQuery(owner)
	}

	var res VerifyResult
	if err := c.do(ctx, http.MethodGet, path, nil, &res, entryRef == "" && owner == ""); err != nil {
		return nil, err
	}
	return &res, nil
}

// RequestLoan submits a loan request. When the gateway declines the
// request the assessment is returned together with ErrLoanDeclined.
func (c *Client) RequestLoan(ctx context.Context, req LoanRequest) (*Loan, *Assessment, error) {
	var resp struct {
		Loan       *Loan       `json:"loan"`
		Assessment *Assessment `json:"assessment"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/loans", req, &resp, true)
	if err == nil {
		return resp.Loan, resp.Assessment, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		var declined struct {
			Assessment *Assessment `json:"assessment"`
		}
		if jsonErr := json.Unmarshal(apiErr.Body, &declined); jsonErr == nil && declined.Assessment != nil {
			return nil, declined.Assessment, ErrLoanDeclined
		}
		return nil, nil, ErrLoanDeclined
	}
	return nil, nil, err
}

// Assess runs a dry-run risk assessment without recording anything.
func (c *Client) Assess(ctx context.Context, req LoanRequest) (*Assessment, error) {
	var a Assessment
	if err := c.do(ctx, http.MethodPost, "/api/v1/loans/assess", req, &a, true); err != nil {
		return nil, err
	}
	return &a, nil
}

// FundLoan transfers the requested amount to the borrower with a funding
// memo, acting as the client's configured address.
func (c *Client) FundLoan(ctx context.Context, loanID, borrower string) (string, error) {
	var resp struct {
		EntryRef string `json:"entry_ref"`
	}
	path := "/api/v1/loans/" + url.PathEscape(loanID) + "/fund"
	body := map[string]string{"borrower": borrower}
	if err := c.do(ctx, http.MethodPost, path, body, &resp, true); err != nil {
		return "", err
	}
	return resp.EntryRef, nil
}

// RepayLoan settles a loan. counterpart and amount are optional; zero
// values are derived from the recorded loan by the gateway.
func (c *Client) RepayLoan(ctx context.Context, loanID, counterpart string, amount decimal.Decimal) (string, error) {
	var resp struct {
		EntryRef string `json:"entry_ref"`
	}
	path := "/api/v1/loans/" + url.PathEscape(loanID) + "/repay"
	body := map[string]any{}
	if counterpart != "" {
		body["counterpart"] = counterpart
	}
	if !amount.IsZero() {
		body["amount"] = amount
	}
	if err := c.do(ctx, http.MethodPost, path, body, &resp, true); err != nil {
		return "", err
	}
	return resp.EntryRef, nil
}

// LoanStatus derives the lifecycle status of a loan.
func (c *Client) LoanStatus(ctx context.Context, loanID, owner string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	path := "/api/v1/loans/" + url.PathEscape(loanID) + "/status" + ownerQuery(owner)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, owner == ""); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// LedgerOverview reports the gateway's ledger capability version.
func (c *Client) LedgerOverview(ctx context.Context) (*LedgerStatus, error) {
	var st LedgerStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger", nil, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

// LedgerEntry fetches a single ledger entry by ref.
func (c *Client) LedgerEntry(ctx context.Context, ref string) (*EntryDetail, error) {
	var e EntryDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger/entries/"+url.PathEscape(ref), nil, &e, false); err != nil {
		return nil, err
	}
	return &e, nil
}

func ownerQuery(owner string) string {
	if owner == "" {
		return ""
	}
	return "?owner=" + url.QueryEscape(owner)
}
