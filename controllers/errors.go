package controllers

import (
	"errors"
	"net/http"

	"Gin_postgres_redis_lending_engine/app"
	"Gin_postgres_redis_lending_engine/lending"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{lending.ErrTenantMismatch, http.StatusForbidden, "tenant_mismatch"},
	{lending.ErrUnauthorized, http.StatusForbidden, "forbidden"},
	{lending.ErrNotFound, http.StatusNotFound, "not_found"},
	{lending.ErrInsufficientAvailability, http.StatusConflict, "insufficient_availability"},
	{lending.ErrAlreadyReturned, http.StatusConflict, "already_returned"},
	{lending.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{lending.ErrBlacklistConflict, http.StatusConflict, "blacklist_conflict"},
	{lending.ErrApprovalRequired, http.StatusConflict, "approval_required"},
	{lending.ErrLendingLimitReached, http.StatusConflict, "lending_limit_reached"},
	{lending.ErrRenewalLimitReached, http.StatusConflict, "renewal_limit_reached"},
	{lending.ErrInvalidDueDate, http.StatusBadRequest, "invalid_due_date"},
	{lending.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{lending.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

// fail writes the HTTP form of an engine error. Anything unrecognized is
// logged and reported as a bare 500.
func (s *Srv) fail(c *gin.Context, err error) {
	var be *lending.BlacklistedError
	if errors.As(err, &be) {
		c.JSON(http.StatusConflict, app.H{
			"error":        "borrower_blacklisted",
			"message":      err.Error(),
			"blockedUntil": be.BlockedUntil,
		})
		return
	}
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			c.JSON(m.status, app.H{"error": m.code, "message": err.Error()})
			return
		}
	}
	_ = c.Error(err)
	s.Log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, app.H{"error": "internal_error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, app.H{"error": "invalid_input", "message": err.Error()})
}
