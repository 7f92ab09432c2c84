package record

import (
	"time"

	"github.com/crediflow/crediflow/internal/canonical"
	"github.com/shopspring/decimal"
)

// BuildInvoicePayload validates in, augments it with the issuer identity
// and creation timestamp, and returns the canonical wire payload together
// with the invoice's content identifier. The identifier is the hash of
// exactly the returned payload bytes. Pure: submission is the caller's
// responsibility.
func BuildInvoicePayload(in InvoiceInput, issuerIdentity string, now time.Time) (payload []byte, invoiceID string, err error) {
	if err := ValidateAddress("issuer_identity", issuerIdentity); err != nil {
		return nil, "", err
	}
	if err := in.Validate(now); err != nil {
		return nil, "", err
	}

	m := map[string]any{
		"type":               PayloadTypeInvoice,
		"amount":             in.Amount.String(),
		"recipient_identity": in.RecipientIdentity,
		"due_date":           in.DueDate.UTC().Format(time.RFC3339Nano),
		"issuer_identity":    issuerIdentity,
		"created_at":         now.UTC().Format(time.RFC3339Nano),
	}
	// Optional fields are omitted entirely rather than written empty, so
	// that presence and absence hash differently.
	if in.Description != "" {
		m["description"] = in.Description
	}
	if in.IssuerName != "" {
		m["issuer_name"] = in.IssuerName
	}

	return encodeAndIdentify(m)
}

// BuildLoanPayload validates in and returns the canonical loan-request
// payload together with the loan's content identifier.
func BuildLoanPayload(in LoanInput, borrowerIdentity string, now time.Time) (payload []byte, loanID string, err error) {
	if err := ValidateAddress("borrower_identity", borrowerIdentity); err != nil {
		return nil, "", err
	}
	if err := in.Validate(); err != nil {
		return nil, "", err
	}

	m := map[string]any{
		"type":               PayloadTypeLoan,
		"invoice_id":         in.InvoiceID,
		"requested_amount":   in.RequestedAmount.String(),
		"loan_duration_days": in.LoanDurationDays,
		"borrower_identity":  borrowerIdentity,
		"created_at":         now.UTC().Format(time.RFC3339Nano),
	}
	if in.LenderIdentity != "" {
		m["lender_identity"] = in.LenderIdentity
	}

	return encodeAndIdentify(m)
}

// BuildFundingPayload returns the memo bundled with a lender's funding
// transfer. The referenced loan upgrades to active once the memo lands in
// the borrower's scan window.
func BuildFundingPayload(loanID, invoiceID string, amount decimal.Decimal, lenderIdentity string) ([]byte, error) {
	if !canonical.IsIdentifier(loanID) {
		return nil, invalid("loan_id", "must be a 64-character lowercase hex content identifier")
	}
	if invoiceID != "" && !canonical.IsIdentifier(invoiceID) {
		return nil, invalid("invoice_id", "must be a 64-character lowercase hex content identifier")
	}
	if err := validatePositiveAmount("amount", amount); err != nil {
		return nil, err
	}
	if lenderIdentity != "" {
		if err := ValidateAddress("lender_identity", lenderIdentity); err != nil {
			return nil, err
		}
	}

	m := map[string]any{
		"type":    PayloadTypeFunding,
		"loan_id": loanID,
		"amount":  amount.String(),
	}
	if invoiceID != "" {
		m["invoice_id"] = invoiceID
	}
	if lenderIdentity != "" {
		m["lender_identity"] = lenderIdentity
	}

	payload, _, err := encodeAndIdentify(m)
	return payload, err
}

// BuildRepayPayload returns the memo bundled with a repayment transfer.
// invoiceID may be empty when the caller does not know which invoice the
// loan financed; carrying it when known lets invoice-side scans observe
// settlement directly.
func BuildRepayPayload(loanID, invoiceID string, amount decimal.Decimal) ([]byte, error) {
	if !canonical.IsIdentifier(loanID) {
		return nil, invalid("loan_id", "must be a 64-character lowercase hex content identifier")
	}
	if invoiceID != "" && !canonical.IsIdentifier(invoiceID) {
		return nil, invalid("invoice_id", "must be a 64-character lowercase hex content identifier")
	}
	if err := validatePositiveAmount("amount", amount); err != nil {
		return nil, err
	}

	m := map[string]any{
		"type":    PayloadTypeRepay,
		"loan_id": loanID,
		"amount":  amount.String(),
	}
	if invoiceID != "" {
		m["invoice_id"] = invoiceID
	}

	payload, _, err := encodeAndIdentify(m)
	return payload, err
}

func encodeAndIdentify(m map[string]any) ([]byte, string, error) {
	form, err := canonical.Canonicalize(m)
	if err != nil {
		return nil, "", err
	}
	return form.Encode(), canonical.Identify(form), nil
}
