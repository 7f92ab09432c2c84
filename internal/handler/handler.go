// Package handler exposes the financing operations over HTTP using Gin.
// Handlers translate between the wire surface and the finance service;
// no business rules live here.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crediflow/crediflow/internal/finance"
	"github.com/crediflow/crediflow/internal/ledger"
	"github.com/crediflow/crediflow/internal/record"
)

// writeError maps a service error onto an HTTP status and JSON body.
func writeError(c *gin.Context, err error) {
	var (
		valErr  *record.ValidationError
		authErr *finance.AuthorizationError
		subErr  *ledger.SubmissionError
	)
	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error(), "field": valErr.Field})
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Error()})
	case errors.As(err, &subErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": subErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
