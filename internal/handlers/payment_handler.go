package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// PaymentReconciler is implemented by services.PaymentService
type PaymentReconciler interface {
	ApplyCallback(ctx context.Context, req *models.PaymentCallbackRequest) (*models.PaymentCallbackAck, error)
	ListFlagged(ctx context.Context, p models.Principal, limit int) ([]models.Booking, error)
	ResolveFlag(ctx context.Context, p models.Principal, bookingID uuid.UUID) error
}

// PaymentHandler handles provider callbacks and the reconciliation queue
type PaymentHandler struct {
	payments PaymentReconciler
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments PaymentReconciler, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// Callback receives payment provider notifications. Once the signature checks out
// the response is always 200, including replays and flagged callbacks.
// @Summary Payment provider callback
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body models.PaymentCallbackRequest true "Signed callback"
// @Success 200 {object} models.PaymentCallbackAck
// @Failure 401 {object} map[string]interface{} "Invalid signature"
// @Router /api/v1/payments/callback [post]
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req models.PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ack, err := h.payments.ApplyCallback(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// ListFlagged returns bookings waiting for manual reconciliation
func (h *PaymentHandler) ListFlagged(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "limit must be a number",
			"code":    "INVALID_LIMIT",
		})
		return
	}

	bookings, err := h.payments.ListFlagged(c.Request.Context(), p, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// ResolveFlag clears the reconciliation flag after an operator handled it
func (h *PaymentHandler) ResolveFlag(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "bookingId")
	if !ok {
		return
	}

	if err := h.payments.ResolveFlag(c.Request.Context(), p, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking_id": id, "resolved": true})
}
