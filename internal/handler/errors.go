package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/metrics"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/response"
	"go.uber.org/zap"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrVenueNotFound, "VENUE_NOT_FOUND"},
	{domain.ErrSlotNotFound, "SLOT_NOT_FOUND"},
	{domain.ErrBookingNotFound, "BOOKING_NOT_FOUND"},
	{domain.ErrParticipantNotFound, "PARTICIPANT_NOT_FOUND"},
	{domain.ErrQRSecretNotFound, "QR_NOT_FOUND"},
	{domain.ErrSlotUnavailable, "SLOT_UNAVAILABLE"},
	{domain.ErrLockMismatch, "LOCK_MISMATCH"},
	{domain.ErrAlreadyParticipant, "ALREADY_PARTICIPANT"},
	{domain.ErrAlreadyPaid, "ALREADY_PAID"},
	{domain.ErrAlreadyCheckedIn, "ALREADY_CHECKED_IN"},
	{domain.ErrSlotAlreadyExists, "SLOT_EXISTS"},
	{domain.ErrSharesLocked, "SHARES_LOCKED"},
	{domain.ErrInvalidPaymentRef, "PAYMENT_REF_REQUIRED"},
	{domain.ErrHoldLost, "HOLD_LOST"},
	{domain.ErrBookingExpired, "EXPIRED"},
}

// handleError maps domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case domain.IsNotFoundError(err):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case domain.IsConflictError(err):
		status, code = http.StatusConflict, "CONFLICT"
	case domain.IsInvalidStateError(err):
		status, code = http.StatusConflict, "INVALID_STATE"
	case domain.IsExpiredError(err):
		status, code = http.StatusGone, "EXPIRED"
	case domain.IsValidationError(err):
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case domain.IsForbiddenError(err):
		status, code = http.StatusForbidden, "FORBIDDEN"
	default:
		metrics.RecordError(c.Request.Context(), code, c.FullPath())
		logger.Get().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.InternalError(c)
		return
	}

	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			code = ec.code
			break
		}
	}
	metrics.RecordError(c.Request.Context(), code, c.FullPath())
	response.Error(c, status, code, err.Error(), "")
}

// bindError reports a malformed request body
func bindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", err.Error())
}

// currentUser returns the authenticated user or writes 401
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return "", false
	}
	return userID, true
}
