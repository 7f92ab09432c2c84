package record

import (
	"fmt"
	"time"
	"unicode"

	"github.com/crediflow/crediflow/internal/canonical"
	"github.com/shopspring/decimal"
)

// MaxDescriptionLen bounds the free-text description on an invoice.
const MaxDescriptionLen = 1024

// MaxLoanDurationDays bounds the requested loan term.
const MaxLoanDurationDays = 3650

const (
	minAddressLen = 3
	maxAddressLen = 128
)

// ValidationError reports malformed or out-of-range input. It is always
// surfaced synchronously, before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ValidateAddress checks the shape of an opaque ledger address. Addresses
// are not interpreted here; the check only rejects obviously broken values
// before they reach the ledger gateway.
func ValidateAddress(field, addr string) error {
	if addr == "" {
		return invalid(field, "must not be empty")
	}
	if len(addr) < minAddressLen || len(addr) > maxAddressLen {
		return invalid(field, fmt.Sprintf("length must be between %d and %d", minAddressLen, maxAddressLen))
	}
	for _, r := range addr {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return invalid(field, "must not contain whitespace or control characters")
		}
	}
	return nil
}

func validatePositiveAmount(field string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return invalid(field, "must be positive")
	}
	return nil
}

// Validate checks an invoice input against now. The due date must lie
// strictly in the future.
func (in InvoiceInput) Validate(now time.Time) error {
	if err := validatePositiveAmount("amount", in.Amount); err != nil {
		return err
	}
	if err := ValidateAddress("recipient_identity", in.RecipientIdentity); err != nil {
		return err
	}
	if !in.DueDate.After(now) {
		return invalid("due_date", "must be in the future")
	}
	if len(in.Description) > MaxDescriptionLen {
		return invalid("description", fmt.Sprintf("must not exceed %d characters", MaxDescriptionLen))
	}
	return nil
}

// Validate checks a loan input. The referenced invoice identifier must be
// well-formed, but its existence is not checked here: that is the status
// derivation engine's job, and it must tolerate dangling references.
func (in LoanInput) Validate() error {
	if !canonical.IsIdentifier(in.InvoiceID) {
		return invalid("invoice_id", "must be a 64-character lowercase hex content identifier")
	}
	if err := validatePositiveAmount("requested_amount", in.RequestedAmount); err != nil {
		return err
	}
	if in.LoanDurationDays < 1 || in.LoanDurationDays > MaxLoanDurationDays {
		return invalid("loan_duration_days", fmt.Sprintf("must be between 1 and %d", MaxLoanDurationDays))
	}
	if in.LenderIdentity != "" {
		if err := ValidateAddress("lender_identity", in.LenderIdentity); err != nil {
			return err
		}
	}
	return nil
}
