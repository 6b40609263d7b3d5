package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/middleware"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// respondError maps domain errors to HTTP status codes. Anything unrecognised is a 500
// and is logged with the request path.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validation *models.ValidationError
		conflict   *models.SeatConflictError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": validation.Error(),
			"field":   validation.Field,
			"code":    "VALIDATION_FAILED",
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "seat_unavailable",
			"message": conflict.Error(),
			"trip_id": conflict.TripID,
			"seats":   conflict.Seats,
			"code":    "SEAT_UNAVAILABLE",
		})
	case errors.Is(err, models.ErrHoldExpired):
		abortWith(c, http.StatusGone, "hold_expired", err, "HOLD_EXPIRED")
	case errors.Is(err, models.ErrHoldConsumed):
		abortWith(c, http.StatusGone, "hold_consumed", err, "HOLD_CONSUMED")
	case errors.Is(err, models.ErrHoldNotFound),
		errors.Is(err, models.ErrTripNotFound),
		errors.Is(err, models.ErrBookingNotFound),
		errors.Is(err, models.ErrSettlementNotFound),
		errors.Is(err, models.ErrDisputeNotFound):
		abortWith(c, http.StatusNotFound, "not_found", err, "NOT_FOUND")
	case errors.Is(err, models.ErrInvalidTransition):
		abortWith(c, http.StatusConflict, "invalid_transition", err, "INVALID_TRANSITION")
	case errors.Is(err, models.ErrAlreadySettled):
		abortWith(c, http.StatusConflict, "already_settled", err, "ALREADY_SETTLED")
	case errors.Is(err, models.ErrTripExists):
		abortWith(c, http.StatusConflict, "trip_exists", err, "TRIP_EXISTS")
	case errors.Is(err, models.ErrTripBusy):
		abortWith(c, http.StatusConflict, "trip_busy", err, "TRIP_BUSY")
	case errors.Is(err, models.ErrSeatDiverged):
		abortWith(c, http.StatusConflict, "inventory_changed", err, "INVENTORY_CHANGED")
	case errors.Is(err, models.ErrInvalidSignature):
		abortWith(c, http.StatusUnauthorized, "invalid_signature", err, "INVALID_SIGNATURE")
	case errors.Is(err, models.ErrForbidden):
		abortWith(c, http.StatusForbidden, "forbidden", err, "FORBIDDEN")
	case errors.Is(err, models.ErrPnrExhausted):
		c.Header("Retry-After", "1")
		abortWith(c, http.StatusServiceUnavailable, "pnr_exhausted", err, "PNR_EXHAUSTED")
	case errors.Is(err, models.ErrTripHalted):
		abortWith(c, http.StatusLocked, "trip_halted", err, "TRIP_HALTED")
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An internal error occurred",
			"code":    "INTERNAL_ERROR",
		})
	}
}

func abortWith(c *gin.Context, status int, errCode string, err error, code string) {
	c.JSON(status, gin.H{
		"error":   errCode,
		"message": err.Error(),
		"code":    code,
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": err.Error(),
		"code":    "INVALID_REQUEST",
	})
}

// principal returns the authenticated caller or writes a 401
func principal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "User context not found",
			"code":    "MISSING_USER_CONTEXT",
		})
	}
	return p, ok
}

// uuidParam parses a path parameter or writes a 400
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid " + name,
			"code":    "INVALID_ID",
		})
		return uuid.Nil, false
	}
	return id, true
}
