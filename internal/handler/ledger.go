package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crediflow/crediflow/internal/record"
)

// Introspector is the read-only ledger surface the introspection routes
// need, satisfied by both gateway implementations.
type Introspector interface {
	CapabilityVersion(ctx context.Context) (string, error)
	Fetch(ctx context.Context, entryRef string) ([]byte, error)
	Verify(ctx context.Context) error
}

// LedgerHandler exposes read-only HTTP endpoints for ledger introspection.
type LedgerHandler struct {
	gw     Introspector
	logger *zap.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(gw Introspector, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{gw: gw, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries/:ref", h.GetEntry)
	}
}

// Overview handles GET /ledger — reports the backing ledger's version.
func (h *LedgerHandler) Overview(c *gin.Context) {
	version, err := h.gw.CapabilityVersion(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger capability query", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unreachable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"capability_version": version})
}

// Verify handles GET /ledger/verify — walks the full hash chain and
// reports integrity.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.gw.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetEntry handles GET /ledger/entries/:ref — returns the stored payload,
// decoded when it parses as one of the known record types.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	ref := c.Param("ref")

	payload, err := h.gw.Fetch(c.Request.Context(), ref)
	if err != nil {
		h.logger.Error("ledger fetch", zap.String("ref", ref), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unreachable"})
		return
	}
	if payload == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}

	resp := gin.H{
		"entry_ref": ref,
		"payload":   string(payload),
	}
	if parsed, err := record.FromPayload(payload); err == nil {
		resp["type"] = parsed.Type
		resp["id"] = parsed.ID
	}
	c.JSON(http.StatusOK, resp)
}
