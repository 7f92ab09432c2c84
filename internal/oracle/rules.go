package oracle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ruleFunc inspects a request and returns zero or more Findings if its
// rule matches.
type ruleFunc func(req AssessmentRequest) []Finding

// RuleEvaluator is the local deterministic Evaluator. It runs a fixed set
// of rules against the request and accumulates a risk score; it never
// fails and never performs I/O, which is what makes it a safe fallback.
type RuleEvaluator struct {
	rules []ruleFunc
}

// NewRuleEvaluator returns a RuleEvaluator loaded with the default rule set.
func NewRuleEvaluator() *RuleEvaluator {
	return &RuleEvaluator{
		rules: []ruleFunc{
			ruleUnverifiedInvoice,
			ruleOverFinanced,
			ruleLongDuration,
			ruleLargeAmount,
		},
	}
}

// Assess implements Evaluator.
func (e *RuleEvaluator) Assess(_ context.Context, req AssessmentRequest) (*Assessment, error) {
	var findings []Finding
	for _, r := range e.rules {
		findings = append(findings, r(req)...)
	}

	total := 0
	for _, f := range findings {
		total += int(f.Confidence * 25)
	}
	if total > 100 {
		total = 100
	}

	if findings == nil {
		findings = []Finding{}
	}

	return &Assessment{
		Score:    total,
		Grade:    gradeLabel(total),
		Findings: findings,
		Approved: total < rejectThreshold,
		Source:   "rules",
	}, nil
}

// ruleUnverifiedInvoice flags loans whose collateral invoice could not be
// verified on the ledger.
func ruleUnverifiedInvoice(req AssessmentRequest) []Finding {
	if req.InvoiceVerified {
		return nil
	}
	return []Finding{{
		Rule:        "unverified_invoice",
		Description: "Referenced invoice could not be verified within the scan window",
		Confidence:  1.0,
	}}
}

// ruleOverFinanced flags requests exceeding the invoice's face value. The
// confidence scales with the over-financing ratio so a grossly inflated
// request is rejected outright rather than merely penalised.
func ruleOverFinanced(req AssessmentRequest) []Finding {
	if !req.InvoiceVerified || req.InvoiceAmount.Sign() <= 0 {
		return nil
	}
	if req.RequestedAmount.LessThanOrEqual(req.InvoiceAmount) {
		return nil
	}

	ratio, _ := req.RequestedAmount.Div(req.InvoiceAmount).Float64()
	conf := 1.2 * ratio
	if conf > 4.0 {
		conf = 4.0
	}
	return []Finding{{
		Rule:        "over_financed",
		Description: fmt.Sprintf("Requested %s exceeds invoice face value %s", req.RequestedAmount, req.InvoiceAmount),
		Confidence:  conf,
	}}
}

// ruleLongDuration flags terms beyond 180 days.
func ruleLongDuration(req AssessmentRequest) []Finding {
	if req.DurationDays <= 180 {
		return nil
	}
	return []Finding{{
		Rule:        "long_duration",
		Description: fmt.Sprintf("Term of %d days exceeds 180-day underwriting horizon", req.DurationDays),
		Confidence:  0.6,
	}}
}

var largeAmountThreshold = decimal.NewFromInt(100_000)

// ruleLargeAmount flags unusually large principal requests.
func ruleLargeAmount(req AssessmentRequest) []Finding {
	if req.RequestedAmount.LessThanOrEqual(largeAmountThreshold) {
		return nil
	}
	return []Finding{{
		Rule:        "large_amount",
		Description: "Requested amount exceeds the large-exposure threshold",
		Confidence:  0.5,
	}}
}
