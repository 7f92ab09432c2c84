package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crediflow/crediflow/internal/finance"
	"github.com/crediflow/crediflow/internal/identity"
	"github.com/crediflow/crediflow/internal/record"
)

// LoanHandler exposes the loan request, funding, repayment and status
// operations over HTTP.
type LoanHandler struct {
	svc    *finance.Service
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewLoanHandler creates a LoanHandler.
func NewLoanHandler(svc *finance.Service, tokens *identity.TokenIssuer, logger *zap.Logger) *LoanHandler {
	return &LoanHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the loan routes on the given router group.
func (h *LoanHandler) Register(rg *gin.RouterGroup) {
	loans := rg.Group("/loans")
	{
		loans.POST("", identity.RequireAddress(h.tokens), h.Request)
		loans.POST("/assess", identity.RequireAddress(h.tokens), h.Assess)
		loans.POST("/:id/fund", identity.RequireAddress(h.tokens), h.Fund)
		loans.POST("/:id/repay", identity.RequireAddress(h.tokens), h.Repay)
		loans.GET("/:id/status", identity.OptionalAddress(h.tokens), h.Status)
	}
}

// Request handles POST /loans — runs the risk assessment and records the
// loan request. A declined request is 422 with the assessment attached.
func (h *LoanHandler) Request(c *gin.Context) {
	svc, err := h.svc.WithIdentity(identity.AddressFromCtx(c))
	if err != nil {
		writeError(c, err)
		return
	}

	var in record.LoanInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed loan body: " + err.Error()})
		return
	}

	loan, assessment, err := svc.RequestLoan(c.Request.Context(), in)
	if errors.Is(err, finance.ErrLoanDeclined) {
		RecordAssessment(assessment.Grade)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      err.Error(),
			"assessment": assessment,
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	RecordSubmission("loan")
	RecordAssessment(assessment.Grade)
	c.JSON(http.StatusCreated, gin.H{
		"loan":       loan,
		"assessment": assessment,
	})
}

// Assess handles POST /loans/assess — dry-run risk assessment, nothing is
// recorded.
func (h *LoanHandler) Assess(c *gin.Context) {
	var in record.LoanInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed loan body: " + err.Error()})
		return
	}

	assessment, err := h.svc.Assess(c.Request.Context(), in, identity.AddressFromCtx(c))
	if err != nil {
		writeError(c, err)
		return
	}

	RecordAssessment(assessment.Grade)
	c.JSON(http.StatusOK, assessment)
}

type fundRequest struct {
	Borrower string `json:"borrower" binding:"required"`
}

// Fund handles POST /loans/:id/fund — the authenticated lender transfers
// the requested amount to the borrower with a funding memo.
func (h *LoanHandler) Fund(c *gin.Context) {
	svc, err := h.svc.WithIdentity(identity.AddressFromCtx(c))
	if err != nil {
		writeError(c, err)
		return
	}

	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "borrower is required"})
		return
	}

	ref, err := svc.Fund(c.Request.Context(), c.Param("id"), req.Borrower)
	if err != nil {
		writeError(c, err)
		return
	}

	RecordSubmission("funding")
	c.JSON(http.StatusCreated, gin.H{"entry_ref": ref})
}

type repayRequest struct {
	Counterpart string          `json:"counterpart"`
	Amount      decimal.Decimal `json:"amount"`
}

// Repay handles POST /loans/:id/repay. Counterpart and amount are
// optional; missing values are derived from the recorded loan.
func (h *LoanHandler) Repay(c *gin.Context) {
	svc, err := h.svc.WithIdentity(identity.AddressFromCtx(c))
	if err != nil {
		writeError(c, err)
		return
	}

	var req repayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed repayment body: " + err.Error()})
		return
	}

	ref, err := svc.Repay(c.Request.Context(), c.Param("id"), req.Counterpart, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	RecordSubmission("repay")
	c.JSON(http.StatusCreated, gin.H{"entry_ref": ref})
}

// Status handles GET /loans/:id/status.
func (h *LoanHandler) Status(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		owner = identity.AddressFromCtx(c)
	}
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner query parameter or bearer token required"})
		return
	}

	st, err := h.svc.LoanStatus(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		writeError(c, err)
		return
	}

	RecordStatusCheck("loan", string(st))
	c.JSON(http.StatusOK, gin.H{
		"loan_id": c.Param("id"),
		"status":  st,
	})
}
