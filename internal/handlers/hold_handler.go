package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// HoldManager is implemented by services.HoldService
type HoldManager interface {
	CreateHold(ctx context.Context, p models.Principal, req *models.CreateHoldRequest) (*models.Hold, error)
	GetHold(ctx context.Context, p models.Principal, holdID uuid.UUID) (*models.Hold, error)
	Renew(ctx context.Context, p models.Principal, holdID uuid.UUID, req *models.RenewHoldRequest) (*models.Hold, error)
	Release(ctx context.Context, p models.Principal, holdID uuid.UUID) (*models.Hold, error)
}

// HoldHandler handles seat hold endpoints
type HoldHandler struct {
	holds  HoldManager
	logger *logrus.Logger
}

// NewHoldHandler creates a new HoldHandler
func NewHoldHandler(holds HoldManager, logger *logrus.Logger) *HoldHandler {
	return &HoldHandler{holds: holds, logger: logger}
}

// CreateHold reserves seats for a limited time
// @Summary Hold seats
// @Description Reserves every requested seat or none. Conflicts return the unavailable seats.
// @Tags Holds
// @Accept json
// @Produce json
// @Param request body models.CreateHoldRequest true "Trip and seats"
// @Success 201 {object} models.HoldResponse
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 409 {object} map[string]interface{} "Seat no longer available"
// @Security BearerAuth
// @Router /api/v1/holds [post]
func (h *HoldHandler) CreateHold(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.CreateHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	hold, err := h.holds.CreateHold(c.Request.Context(), p, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewHoldResponse(hold))
}

// GetHold returns a hold by id
func (h *HoldHandler) GetHold(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	holdID, ok := uuidParam(c, "holdId")
	if !ok {
		return
	}

	hold, err := h.holds.GetHold(c.Request.Context(), p, holdID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, hold)
}

// RenewHold pushes the expiry of an ACTIVE hold out
func (h *HoldHandler) RenewHold(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	holdID, ok := uuidParam(c, "holdId")
	if !ok {
		return
	}

	var req models.RenewHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	hold, err := h.holds.Renew(c.Request.Context(), p, holdID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewHoldResponse(hold))
}

// ReleaseHold gives the seats back before the hold expires
func (h *HoldHandler) ReleaseHold(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	holdID, ok := uuidParam(c, "holdId")
	if !ok {
		return
	}

	hold, err := h.holds.Release(c.Request.Context(), p, holdID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewHoldResponse(hold))
}
