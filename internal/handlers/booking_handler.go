package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// BookingEngine is implemented by services.BookingService
type BookingEngine interface {
	Create(ctx context.Context, p models.Principal, req *models.CreateBookingRequest) (*models.Booking, error)
	Cancel(ctx context.Context, p models.Principal, req *models.CancelBookingRequest) (*models.Booking, error)
	Get(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Booking, error)
	GetByPNR(ctx context.Context, p models.Principal, pnr string) (*models.Booking, error)
}

// Refunder is implemented by services.PaymentService
type Refunder interface {
	Refund(ctx context.Context, p models.Principal, bookingID uuid.UUID) (*models.Booking, error)
}

// BookingHandler handles booking endpoints
type BookingHandler struct {
	bookings BookingEngine
	refunds  Refunder
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingEngine, refunds Refunder, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		refunds:  refunds,
		logger:   logger,
	}
}

// CreateBooking confirms a booking from a hold, or a manual counter booking
// @Summary Create booking
// @Description With hold_id the hold is consumed; without it agency staff book seats directly.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Booking details"
// @Success 201 {object} models.BookingResponse
// @Failure 409 {object} map[string]interface{} "Seat no longer available"
// @Failure 410 {object} map[string]interface{} "Hold expired or consumed"
// @Failure 503 {object} map[string]interface{} "Could not allocate a PNR, retry"
// @Security BearerAuth
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.bookings.Create(c.Request.Context(), p, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewBookingResponse(booking))
}

// CancelBooking cancels a CONFIRMED booking and frees its seats
// @Summary Cancel booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CancelBookingRequest true "Booking and reason"
// @Success 200 {object} models.BookingResponse
// @Failure 409 {object} map[string]interface{} "Booking not cancellable"
// @Security BearerAuth
// @Router /api/v1/bookings/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), p, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewBookingResponse(booking))
}

// GetBooking returns the full booking
func (h *BookingHandler) GetBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "bookingId")
	if !ok {
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// GetBookingByPNR looks a booking up by its reference
func (h *BookingHandler) GetBookingByPNR(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetByPNR(c.Request.Context(), p, c.Param("pnr"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// RefundBooking refunds a PAID booking
func (h *BookingHandler) RefundBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "bookingId")
	if !ok {
		return
	}

	booking, err := h.refunds.Refund(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewBookingResponse(booking))
}
