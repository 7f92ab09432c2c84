// Package record defines the invoice and loan domain records, the payload
// schema they are submitted under, and the builders that turn validated
// input into content-addressed wire payloads.
//
// A payload is the canonical serialization of an augmented record: the
// caller's input fields plus the submitting identity and a creation
// timestamp. The content identifier is always the hash of exactly the
// bytes that get submitted, so verification never needs out-of-band
// storage. Derived fields (invoice_id, loan_id, entry_ref, status) are
// never part of the hashed bytes.
package record

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payload type discriminators. Every payload built by this package carries
// its type under the "type" key so consumers can match entries structurally
// instead of relying on freeform substring search alone.
const (
	PayloadTypeInvoice = "invoice"
	PayloadTypeLoan    = "loan"
	PayloadTypeFunding = "lend"
	PayloadTypeRepay   = "repay"
)

// InvoiceStatus is the derived lifecycle state of an invoice. It is never
// stored on the ledger; it is recomputed on demand from a fresh scan.
type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "pending"
	InvoiceVerified InvoiceStatus = "verified"
	InvoiceFinanced InvoiceStatus = "financed"
	InvoiceSettled  InvoiceStatus = "settled"
	InvoiceNotFound InvoiceStatus = "not_found"
)

// LoanStatus is the derived lifecycle state of a loan.
type LoanStatus string

const (
	LoanRequested LoanStatus = "requested"
	LoanActive    LoanStatus = "active"
	LoanRepaid    LoanStatus = "repaid"
	LoanDefaulted LoanStatus = "defaulted"
	LoanNotFound  LoanStatus = "not_found"
)

// InvoiceRecord is an invoice as reconstructed from a ledger payload.
// Immutable once submitted; Status and EntryRef are derived, not hashed.
type InvoiceRecord struct {
	InvoiceID         string          `json:"invoice_id"`
	Amount            decimal.Decimal `json:"amount"`
	RecipientIdentity string          `json:"recipient_identity"`
	DueDate           time.Time       `json:"due_date"`
	Description       string          `json:"description,omitempty"`
	IssuerName        string          `json:"issuer_name,omitempty"`
	IssuerIdentity    string          `json:"issuer_identity"`
	CreatedAt         time.Time       `json:"created_at"`
	Status            InvoiceStatus   `json:"status,omitempty"`
	EntryRef          string          `json:"entry_ref,omitempty"`
}

// LoanRecord is a loan request as reconstructed from a ledger payload.
// InvoiceID is a weak reference into the invoice domain: the ledger does
// not enforce referential integrity, and consumers must tolerate a loan
// referencing a non-existent or unverifiable invoice.
type LoanRecord struct {
	LoanID           string          `json:"loan_id"`
	InvoiceID        string          `json:"invoice_id"`
	RequestedAmount  decimal.Decimal `json:"requested_amount"`
	LoanDurationDays int             `json:"loan_duration_days"`
	LenderIdentity   string          `json:"lender_identity,omitempty"`
	BorrowerIdentity string          `json:"borrower_identity"`
	CreatedAt        time.Time       `json:"created_at"`
	Status           LoanStatus      `json:"status,omitempty"`
	EntryRef         string          `json:"entry_ref,omitempty"`
}

// DueAt returns the repayment deadline implied by the loan's duration.
func (l *LoanRecord) DueAt() time.Time {
	return l.CreatedAt.Add(time.Duration(l.LoanDurationDays) * 24 * time.Hour)
}

// InvoiceInput is the caller-supplied portion of an invoice record.
type InvoiceInput struct {
	Amount            decimal.Decimal `json:"amount"`
	RecipientIdentity string          `json:"recipient_identity"`
	DueDate           time.Time       `json:"due_date"`
	Description       string          `json:"description,omitempty"`
	IssuerName        string          `json:"issuer_name,omitempty"`
}

// LoanInput is the caller-supplied portion of a loan request.
type LoanInput struct {
	InvoiceID        string          `json:"invoice_id"`
	RequestedAmount  decimal.Decimal `json:"requested_amount"`
	LoanDurationDays int             `json:"loan_duration_days"`
	LenderIdentity   string          `json:"lender_identity,omitempty"`
}
