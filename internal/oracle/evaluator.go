// Package oracle provides credit assessment for loan requests. Remote
// evaluators are queried in an explicit order with a per-call timeout;
// the first shape-valid response wins, and a local deterministic rule
// evaluator serves as the fallback when every remote fails.
package oracle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// AssessmentRequest describes the loan under evaluation.
type AssessmentRequest struct {
	BorrowerIdentity string          `json:"borrower_identity"`
	RequestedAmount  decimal.Decimal `json:"requested_amount"`
	DurationDays     int             `json:"duration_days"`

	// InvoiceAmount is the face value of the financed invoice; zero when
	// the invoice could not be verified.
	InvoiceAmount   decimal.Decimal `json:"invoice_amount"`
	InvoiceVerified bool            `json:"invoice_verified"`
}

// Finding is a single rule match contributing to an assessment.
type Finding struct {
	Rule        string  `json:"rule"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Assessment is the output of a credit evaluation run.
type Assessment struct {
	// Score is the aggregate risk score (0–100); higher is riskier.
	Score int `json:"score"`

	// Grade is a label derived from Score:
	//   0–14   → "prime"
	//   15–34  → "good"
	//   35–64  → "fair"
	//   65–84  → "subprime"
	//   85–100 → "reject"
	Grade string `json:"grade"`

	// Findings lists every rule that triggered.
	Findings []Finding `json:"findings"`

	// Approved is false when Score ≥ 85. Loans with Approved=false should
	// be declined by the caller.
	Approved bool `json:"approved"`

	// Source names the evaluator that produced the assessment.
	Source string `json:"source,omitempty"`
}

// Evaluator assesses a loan request for credit risk.
type Evaluator interface {
	Assess(ctx context.Context, req AssessmentRequest) (*Assessment, error)
}

const rejectThreshold = 85

// gradeLabel maps a 0–100 risk score to a grade string.
func gradeLabel(score int) string {
	switch {
	case score >= 85:
		return "reject"
	case score >= 65:
		return "subprime"
	case score >= 35:
		return "fair"
	case score >= 15:
		return "good"
	default:
		return "prime"
	}
}

// validateShape checks an assessment received from an external evaluator
// before it is trusted as a typed result.
func validateShape(a *Assessment) error {
	if a == nil {
		return fmt.Errorf("empty assessment")
	}
	if a.Score < 0 || a.Score > 100 {
		return fmt.Errorf("score %d out of range", a.Score)
	}
	if a.Grade == "" {
		return fmt.Errorf("missing grade")
	}
	return nil
}
