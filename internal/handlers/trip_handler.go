package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
	"github.com/smarttransit/seat-booking-engine/internal/services"
)

// TripInventory is the part of the seat inventory the trip endpoints drive
type TripInventory interface {
	ScheduleTrip(ctx context.Context, req *models.ScheduleTripRequest) (*models.Trip, error)
	ArchiveTrip(ctx context.Context, tripID string) error
	Availability(ctx context.Context, tripID string) (*models.SeatAvailability, error)
	Trip(ctx context.Context, tripID string) (*models.Trip, error)
}

// TripHandler handles trip inventory lifecycle endpoints
type TripHandler struct {
	inventory TripInventory
	audit     services.Auditor
	logger    *logrus.Logger
}

// NewTripHandler creates a new TripHandler
func NewTripHandler(inventory TripInventory, audit services.Auditor, logger *logrus.Logger) *TripHandler {
	return &TripHandler{
		inventory: inventory,
		audit:     audit,
		logger:    logger,
	}
}

// ScheduleTrip creates the seat inventory of a trip
// @Summary Schedule trip inventory
// @Tags Trips
// @Accept json
// @Produce json
// @Param request body models.ScheduleTripRequest true "Trip and seat catalog"
// @Success 201 {object} models.Trip
// @Failure 409 {object} map[string]interface{} "Trip already scheduled"
// @Security BearerAuth
// @Router /api/v1/trips [post]
func (h *TripHandler) ScheduleTrip(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.ScheduleTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !p.CanActForAgency(req.AgencyID) {
		respondError(c, h.logger, models.ErrForbidden)
		return
	}

	trip, err := h.inventory.ScheduleTrip(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.Record(c.Request.Context(), services.AuditEvent{
		UserID:     p.ActorID(),
		Action:     "trip_schedule",
		EntityType: "trip",
		EntityID:   trip.ID,
		After:      string(trip.Status),
		Details:    map[string]interface{}{"agency_id": trip.AgencyID, "capacity": len(req.Seats)},
	})
	c.JSON(http.StatusCreated, trip)
}

// GetSeats returns the seat map of a trip
// @Summary Trip seat availability
// @Tags Trips
// @Produce json
// @Param tripId path string true "Trip ID"
// @Success 200 {object} models.SeatAvailability
// @Failure 404 {object} map[string]interface{} "Trip not found"
// @Router /api/v1/trips/{tripId}/seats [get]
func (h *TripHandler) GetSeats(c *gin.Context) {
	avail, err := h.inventory.Availability(c.Request.Context(), c.Param("tripId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

// ArchiveTrip evicts a finished trip from the inventory
func (h *TripHandler) ArchiveTrip(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	tripID := c.Param("tripId")

	trip, err := h.inventory.Trip(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !p.CanActForAgency(trip.AgencyID) {
		respondError(c, h.logger, models.ErrForbidden)
		return
	}
	if err := h.inventory.ArchiveTrip(c.Request.Context(), tripID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.Record(c.Request.Context(), services.AuditEvent{
		UserID:     p.ActorID(),
		Action:     "trip_archive",
		EntityType: "trip",
		EntityID:   tripID,
		Before:     string(trip.Status),
		After:      string(models.TripArchived),
	})
	c.JSON(http.StatusOK, gin.H{"trip_id": tripID, "status": models.TripArchived})
}
