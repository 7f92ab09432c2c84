package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/crediflow/crediflow/internal/canonical"
	"github.com/shopspring/decimal"
)

// hashedKeys lists, per payload type, the fields that participate in
// identifier derivation. Derived fields (invoice_id on invoices, loan_id,
// entry_ref, status) are excluded: they are outputs of hashing, not inputs.
var hashedKeys = map[string][]string{
	PayloadTypeInvoice: {
		"type", "amount", "recipient_identity", "due_date",
		"description", "issuer_name", "issuer_identity", "created_at",
	},
	PayloadTypeLoan: {
		"type", "invoice_id", "requested_amount", "loan_duration_days",
		"lender_identity", "borrower_identity", "created_at",
	},
}

// RepayMemo is the parsed form of a repayment memo payload.
type RepayMemo struct {
	LoanID    string          `json:"loan_id"`
	InvoiceID string          `json:"invoice_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// FundingMemo is the parsed form of a lend memo: a lender's value transfer
// referencing the loan it funds.
type FundingMemo struct {
	LoanID         string          `json:"loan_id"`
	InvoiceID      string          `json:"invoice_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	LenderIdentity string          `json:"lender_identity,omitempty"`
}

// Parsed is a wire payload decoded into its domain form. Exactly one of
// Invoice, Loan, Funding, or Repay is non-nil, matching Type. For invoice
// and loan payloads, ID is the content identifier recomputed over the
// hashed field subset; memo payloads are not content-addressed and carry
// no ID.
type Parsed struct {
	Type    string
	ID      string
	Invoice *InvoiceRecord
	Loan    *LoanRecord
	Funding *FundingMemo
	Repay   *RepayMemo
}

// FromPayload decodes a raw ledger payload and, for content-addressed
// record types, recomputes the identifier from the canonical form of the
// originally hashed fields. Extra keys in the payload (an embedded
// invoice_id, an entry_ref added by some other writer) are tolerated and
// ignored for hashing, so key order and decoration never affect the
// recomputed identifier.
//
// Any shape problem is returned as an error; callers scanning ledger
// history treat that as a non-match and move on.
func FromPayload(raw []byte) (*Parsed, error) {
	form, err := canonical.Parse(raw)
	if err != nil {
		return nil, err
	}
	m, ok := form.Map()
	if !ok {
		return nil, fmt.Errorf("payload is not a JSON object")
	}

	typ, _ := m["type"].(string)
	switch typ {
	case PayloadTypeInvoice:
		return parseInvoice(m)
	case PayloadTypeLoan:
		return parseLoan(m)
	case PayloadTypeFunding:
		return parseFunding(m)
	case PayloadTypeRepay:
		return parseRepay(m)
	default:
		return nil, fmt.Errorf("unknown payload type %q", typ)
	}
}

// recomputeID canonicalizes the hashed subset of m for typ and derives the
// content identifier from it.
func recomputeID(m map[string]any, typ string) (string, error) {
	subset := make(map[string]any, len(hashedKeys[typ]))
	for _, k := range hashedKeys[typ] {
		if v, ok := m[k]; ok {
			subset[k] = v
		}
	}
	form, err := canonical.Canonicalize(subset)
	if err != nil {
		return "", err
	}
	return canonical.Identify(form), nil
}

func parseInvoice(m map[string]any) (*Parsed, error) {
	id, err := recomputeID(m, PayloadTypeInvoice)
	if err != nil {
		return nil, err
	}

	inv := &InvoiceRecord{InvoiceID: id}
	if inv.Amount, err = fieldDecimal(m, "amount"); err != nil {
		return nil, err
	}
	if inv.RecipientIdentity, err = fieldString(m, "recipient_identity"); err != nil {
		return nil, err
	}
	if inv.DueDate, err = fieldTime(m, "due_date"); err != nil {
		return nil, err
	}
	if inv.CreatedAt, err = fieldTime(m, "created_at"); err != nil {
		return nil, err
	}
	if inv.IssuerIdentity, err = fieldString(m, "issuer_identity"); err != nil {
		return nil, err
	}
	inv.Description, _ = m["description"].(string)
	inv.IssuerName, _ = m["issuer_name"].(string)

	return &Parsed{Type: PayloadTypeInvoice, ID: id, Invoice: inv}, nil
}

func parseLoan(m map[string]any) (*Parsed, error) {
	id, err := recomputeID(m, PayloadTypeLoan)
	if err != nil {
		return nil, err
	}

	loan := &LoanRecord{LoanID: id}
	if loan.InvoiceID, err = fieldString(m, "invoice_id"); err != nil {
		return nil, err
	}
	if loan.RequestedAmount, err = fieldDecimal(m, "requested_amount"); err != nil {
		return nil, err
	}
	if loan.LoanDurationDays, err = fieldInt(m, "loan_duration_days"); err != nil {
		return nil, err
	}
	if loan.BorrowerIdentity, err = fieldString(m, "borrower_identity"); err != nil {
		return nil, err
	}
	if loan.CreatedAt, err = fieldTime(m, "created_at"); err != nil {
		return nil, err
	}
	loan.LenderIdentity, _ = m["lender_identity"].(string)

	return &Parsed{Type: PayloadTypeLoan, ID: id, Loan: loan}, nil
}

func parseFunding(m map[string]any) (*Parsed, error) {
	memo := &FundingMemo{}
	var err error
	if memo.LoanID, err = fieldString(m, "loan_id"); err != nil {
		return nil, err
	}
	if memo.Amount, err = fieldDecimal(m, "amount"); err != nil {
		return nil, err
	}
	memo.InvoiceID, _ = m["invoice_id"].(string)
	memo.LenderIdentity, _ = m["lender_identity"].(string)

	return &Parsed{Type: PayloadTypeFunding, Funding: memo}, nil
}

func parseRepay(m map[string]any) (*Parsed, error) {
	memo := &RepayMemo{}
	var err error
	if memo.LoanID, err = fieldString(m, "loan_id"); err != nil {
		return nil, err
	}
	if memo.Amount, err = fieldDecimal(m, "amount"); err != nil {
		return nil, err
	}
	memo.InvoiceID, _ = m["invoice_id"].(string)

	return &Parsed{Type: PayloadTypeRepay, Repay: memo}, nil
}

func fieldString(m map[string]any, key string) (string, error) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("missing or non-string field %q", key)
	}
	return s, nil
}

func fieldTime(m map[string]any, key string) (time.Time, error) {
	s, ok := m[key].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("missing or non-string field %q", key)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", key, err)
	}
	return t, nil
}

func fieldDecimal(m map[string]any, key string) (decimal.Decimal, error) {
	switch v := m[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("field %q: %w", key, err)
		}
		return d, nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("field %q: %w", key, err)
		}
		return d, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("missing or non-numeric field %q", key)
	}
}

func fieldInt(m map[string]any, key string) (int, error) {
	n, ok := m[key].(json.Number)
	if !ok {
		return 0, fmt.Errorf("missing or non-integer field %q", key)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return int(i), nil
}
