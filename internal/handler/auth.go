package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crediflow/crediflow/internal/identity"
	"github.com/crediflow/crediflow/internal/record"
)

// AuthHandler issues bearer tokens binding a caller to a ledger address.
//
// Token issuance does not prove control of the address; deployments that
// need that gate this route behind their own identity provider or disable
// it and mint tokens out of band.
type AuthHandler struct {
	tokens *identity.TokenIssuer
	ttl    time.Duration
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler. ttl is advisory and only echoed
// in responses; the issuer controls the actual token lifetime.
func NewAuthHandler(tokens *identity.TokenIssuer, ttl time.Duration, logger *zap.Logger) *AuthHandler {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &AuthHandler{tokens: tokens, ttl: ttl, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/token", h.IssueToken)
	}
}

type tokenRequest struct {
	Address string `json:"address" binding:"required"`
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	if err := record.ValidateAddress("address", req.Address); err != nil {
		writeError(c, err)
		return
	}

	token, err := h.tokens.Issue(req.Address)
	if err != nil {
		h.logger.Error("token issuance failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(h.ttl.Seconds()),
	})
}
