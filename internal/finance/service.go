// Package finance is the application service tying the payload builders,
// ledger gateway, verifier, status engine and risk assessment together
// behind one API. Handlers and the CLI talk to this package only.
package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crediflow/crediflow/internal/ledger"
	"github.com/crediflow/crediflow/internal/oracle"
	"github.com/crediflow/crediflow/internal/record"
	"github.com/crediflow/crediflow/internal/status"
	"github.com/crediflow/crediflow/internal/verify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrLoanDeclined is returned by RequestLoan when the risk assessment
// rejects the request before anything reaches the ledger.
var ErrLoanDeclined = errors.New("loan request declined by risk assessment")

// AuthorizationError reports an operation attempted without a bound
// signing identity. It is raised before any payload is built.
type AuthorizationError struct {
	Op string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: no signing identity bound", e.Op)
}

// Service exposes the invoice financing operations. A Service submits on
// behalf of at most one bound identity; read operations may be scoped to
// any owner.
type Service struct {
	gateway  ledger.Gateway
	verifier *verify.Verifier
	engine   *status.Engine
	assessor oracle.Evaluator
	identity string
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a Service with no bound identity and the local rule
// evaluator as the default risk assessor.
func NewService(gateway ledger.Gateway, verifier *verify.Verifier, engine *status.Engine, logger *zap.Logger) *Service {
	return &Service{
		gateway:  gateway,
		verifier: verifier,
		engine:   engine,
		assessor: oracle.NewRuleEvaluator(),
		now:      time.Now,
		logger:   logger,
	}
}

// BindIdentity sets the signing identity used for all submissions.
func (s *Service) BindIdentity(addr string) error {
	if err := record.ValidateAddress("identity", addr); err != nil {
		return err
	}
	s.identity = addr
	return nil
}

// Identity reports the bound signing identity, or "" when unbound.
func (s *Service) Identity() string { return s.identity }

// WithIdentity returns a copy of the Service bound to addr, sharing all
// collaborators. Handlers use it to act on behalf of the authenticated
// caller without mutating the shared instance.
func (s *Service) WithIdentity(addr string) (*Service, error) {
	if err := record.ValidateAddress("identity", addr); err != nil {
		return nil, err
	}
	bound := *s
	bound.identity = addr
	return &bound, nil
}

// SetEvaluator replaces the default risk assessor, typically with an
// oracle.Cascade backed by remote evaluators.
func (s *Service) SetEvaluator(e oracle.Evaluator) {
	if e != nil {
		s.assessor = e
	}
}

// SetClock overrides the wall clock. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) requireIdentity(op string) error {
	if s.identity == "" {
		return &AuthorizationError{Op: op}
	}
	return nil
}

// owner resolves a caller-supplied owner scope, falling back to the bound
// identity for reads issued on one's own history.
func (s *Service) owner(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if s.identity == "" {
		return "", &AuthorizationError{Op: "resolve owner scope"}
	}
	return s.identity, nil
}

// SubmitInvoice validates the input, builds the content-addressed payload
// and appends it to the ledger. The returned record carries the derived
// invoice_id and entry_ref; its status is pending until a scan observes
// the entry.
func (s *Service) SubmitInvoice(ctx context.Context, in record.InvoiceInput) (*record.InvoiceRecord, error) {
	if err := s.requireIdentity("submit invoice"); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payload, invoiceID, err := record.BuildInvoicePayload(in, s.identity, now)
	if err != nil {
		return nil, err
	}

	ref, err := s.gateway.Submit(ctx, s.identity, payload)
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice submitted",
		zap.String("invoice_id", invoiceID),
		zap.String("entry_ref", ref),
		zap.String("issuer", s.identity),
	)
	return &record.InvoiceRecord{
		InvoiceID:         invoiceID,
		Amount:            in.Amount,
		RecipientIdentity: in.RecipientIdentity,
		DueDate:           in.DueDate.UTC(),
		Description:       in.Description,
		IssuerName:        in.IssuerName,
		IssuerIdentity:    s.identity,
		CreatedAt:         now,
		Status:            record.InvoicePending,
		EntryRef:          ref,
	}, nil
}

// RequestLoan runs the risk assessment against the referenced invoice and,
// when approved, records the loan request on the ledger. A declined
// request returns the assessment alongside ErrLoanDeclined and leaves the
// ledger untouched.
func (s *Service) RequestLoan(ctx context.Context, in record.LoanInput) (*record.LoanRecord, *oracle.Assessment, error) {
	if err := s.requireIdentity("request loan"); err != nil {
		return nil, nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}

	assessment, err := s.assess(ctx, in, s.identity)
	if err != nil {
		return nil, nil, fmt.Errorf("assess loan request: %w", err)
	}
	if !assessment.Approved {
		return nil, assessment, ErrLoanDeclined
	}

	now := s.now().UTC()
	payload, loanID, err := record.BuildLoanPayload(in, s.identity, now)
	if err != nil {
		return nil, assessment, err
	}

	ref, err := s.gateway.Submit(ctx, s.identity, payload)
	if err != nil {
		return nil, assessment, err
	}

	s.logger.Info("loan requested",
		zap.String("loan_id", loanID),
		zap.String("invoice_id", in.InvoiceID),
		zap.String("entry_ref", ref),
		zap.Int("risk_score", assessment.Score),
	)
	return &record.LoanRecord{
		LoanID:           loanID,
		InvoiceID:        in.InvoiceID,
		RequestedAmount:  in.RequestedAmount,
		LoanDurationDays: in.LoanDurationDays,
		LenderIdentity:   in.LenderIdentity,
		BorrowerIdentity: s.identity,
		CreatedAt:        now,
		Status:           record.LoanRequested,
		EntryRef:         ref,
	}, assessment, nil
}

// Fund records the bound identity lending against a loan request: a value
// transfer to the borrower bundled atomically with a funding memo. The
// loan must be locatable in the borrower's recent history.
func (s *Service) Fund(ctx context.Context, loanID, borrower string) (string, error) {
	if err := s.requireIdentity("fund loan"); err != nil {
		return "", err
	}
	if err := record.ValidateAddress("borrower", borrower); err != nil {
		return "", err
	}

	res := s.verifier.VerifyID(ctx, loanID, borrower)
	if !res.Verified || res.Loan == nil {
		return "", fmt.Errorf("loan %s not found in recent history of %s", loanID, borrower)
	}

	payload, err := record.BuildFundingPayload(loanID, res.Loan.InvoiceID, res.Loan.RequestedAmount, s.identity)
	if err != nil {
		return "", err
	}

	ref, err := s.gateway.Submit(ctx, s.identity, payload, ledger.TransferIntent{
		To:     borrower,
		Amount: res.Loan.RequestedAmount,
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("loan funded",
		zap.String("loan_id", loanID),
		zap.String("entry_ref", ref),
		zap.String("lender", s.identity),
		zap.String("borrower", borrower),
	)
	return ref, nil
}

// Repay settles a loan: a value transfer to the counterpart bundled
// atomically with a repayment memo naming the loan and its invoice. When
// counterpart or amount are zero values they are derived from the loan
// record in the bound identity's history.
func (s *Service) Repay(ctx context.Context, loanID, counterpart string, amount decimal.Decimal) (string, error) {
	if err := s.requireIdentity("repay loan"); err != nil {
		return "", err
	}

	invoiceID := ""
	res := s.verifier.VerifyID(ctx, loanID, s.identity)
	if res.Verified && res.Loan != nil {
		invoiceID = res.Loan.InvoiceID
		if counterpart == "" {
			counterpart = res.Loan.LenderIdentity
		}
		if amount.IsZero() {
			amount = res.Loan.RequestedAmount
		}
	}
	if counterpart == "" {
		return "", fmt.Errorf("loan %s has no recorded lender; counterpart required", loanID)
	}
	if err := record.ValidateAddress("counterpart", counterpart); err != nil {
		return "", err
	}

	payload, err := record.BuildRepayPayload(loanID, invoiceID, amount)
	if err != nil {
		return "", err
	}

	ref, err := s.gateway.Submit(ctx, s.identity, payload, ledger.TransferIntent{
		To:     counterpart,
		Amount: amount,
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("loan repaid",
		zap.String("loan_id", loanID),
		zap.String("entry_ref", ref),
		zap.String("counterpart", counterpart),
	)
	return ref, nil
}

// InvoiceStatus derives the invoice lifecycle state from the owner's
// recent history. An empty owner scopes to the bound identity.
func (s *Service) InvoiceStatus(ctx context.Context, invoiceID, owner string) (record.InvoiceStatus, error) {
	scope, err := s.owner(owner)
	if err != nil {
		return record.InvoiceNotFound, err
	}
	return s.engine.InvoiceStatus(ctx, invoiceID, scope), nil
}

// LoanStatus derives the loan lifecycle state from the owner's recent
// history. An empty owner scopes to the bound identity.
func (s *Service) LoanStatus(ctx context.Context, loanID, owner string) (record.LoanStatus, error) {
	scope, err := s.owner(owner)
	if err != nil {
		return record.LoanNotFound, err
	}
	return s.engine.LoanStatus(ctx, loanID, scope), nil
}

// VerifyInvoice looks up a content identifier in the owner's recent
// history and recomputes it from the stored payload. A miss is a normal
// unverified result, never an error.
func (s *Service) VerifyInvoice(ctx context.Context, id, owner string) (verify.Result, error) {
	scope, err := s.owner(owner)
	if err != nil {
		return verify.Result{}, err
	}
	return s.verifier.VerifyID(ctx, id, scope), nil
}

// VerifyEntry fetches a known entry ref and checks its payload against an
// optional expected identifier.
func (s *Service) VerifyEntry(ctx context.Context, entryRef, expectedID string) verify.Result {
	return s.verifier.VerifyEntry(ctx, entryRef, expectedID)
}

// Assess runs the configured risk assessment for a prospective loan
// request without touching the ledger.
func (s *Service) Assess(ctx context.Context, in record.LoanInput, borrower string) (*oracle.Assessment, error) {
	scope, err := s.owner(borrower)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.assess(ctx, in, scope)
}

func (s *Service) assess(ctx context.Context, in record.LoanInput, borrower string) (*oracle.Assessment, error) {
	req := oracle.AssessmentRequest{
		BorrowerIdentity: borrower,
		RequestedAmount:  in.RequestedAmount,
		DurationDays:     in.LoanDurationDays,
	}

	// The invoice lives in the borrower's own history; an unverifiable
	// invoice is a risk finding, not a hard failure.
	res := s.verifier.VerifyID(ctx, in.InvoiceID, borrower)
	if res.Verified && res.Invoice != nil {
		req.InvoiceVerified = true
		req.InvoiceAmount = res.Invoice.Amount
	}

	return s.assessor.Assess(ctx, req)
}
