package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crediflow/crediflow/internal/finance"
	"github.com/crediflow/crediflow/internal/identity"
	"github.com/crediflow/crediflow/internal/record"
)

// InvoiceHandler exposes invoice submission, verification and status
// derivation over HTTP.
type InvoiceHandler struct {
	svc    *finance.Service
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewInvoiceHandler creates an InvoiceHandler.
func NewInvoiceHandler(svc *finance.Service, tokens *identity.TokenIssuer, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the invoice routes on the given router group.
func (h *InvoiceHandler) Register(rg *gin.RouterGroup) {
	inv := rg.Group("/invoices")
	{
		inv.POST("", identity.RequireAddress(h.tokens), h.Submit)
		inv.GET("/:id/status", identity.OptionalAddress(h.tokens), h.Status)
		inv.GET("/:id/verify", identity.OptionalAddress(h.tokens), h.Verify)
	}
}

// Submit handles POST /invoices — records a new invoice on the ledger on
// behalf of the authenticated address.
func (h *InvoiceHandler) Submit(c *gin.Context) {
	svc, err := h.svc.WithIdentity(identity.AddressFromCtx(c))
	if err != nil {
		writeError(c, err)
		return
	}

	var in record.InvoiceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed invoice body: " + err.Error()})
		return
	}

	rec, err := svc.SubmitInvoice(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}

	RecordSubmission("invoice")
	c.JSON(http.StatusCreated, rec)
}

// Status handles GET /invoices/:id/status. The history scope defaults to
// the authenticated address and may be overridden with ?owner=.
func (h *InvoiceHandler) Status(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		owner = identity.AddressFromCtx(c)
	}
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner query parameter or bearer token required"})
		return
	}

	st, err := h.svc.InvoiceStatus(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		writeError(c, err)
		return
	}

	RecordStatusCheck("invoice", string(st))
	c.JSON(http.StatusOK, gin.H{
		"invoice_id": c.Param("id"),
		"status":     st,
	})
}

// Verify handles GET /invoices/:id/verify — recomputes the content
// identifier from the stored payload. ?entry_ref= pins the lookup to a
// known entry instead of scanning recent history.
func (h *InvoiceHandler) Verify(c *gin.Context) {
	id := c.Param("id")

	if ref := c.Query("entry_ref"); ref != "" {
		res := h.svc.VerifyEntry(c.Request.Context(), ref, id)
		c.JSON(http.StatusOK, res)
		return
	}

	owner := c.Query("owner")
	if owner == "" {
		owner = identity.AddressFromCtx(c)
	}
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner query parameter, entry_ref or bearer token required"})
		return
	}

	res, err := h.svc.VerifyInvoice(c.Request.Context(), id, owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
