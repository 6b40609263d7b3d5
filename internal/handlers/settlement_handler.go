package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// SettlementEngine is implemented by services.SettlementService
type SettlementEngine interface {
	ComputeForPeriod(ctx context.Context, p models.Principal, req *models.ComputeSettlementRequest) (*models.SettlementResult, error)
	UpdateStatus(ctx context.Context, p models.Principal, req *models.UpdateSettlementRequest) (*models.Settlement, error)
	Get(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Settlement, error)
}

// SettlementHandler handles agency settlement endpoints
type SettlementHandler struct {
	settlements SettlementEngine
	logger      *logrus.Logger
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(settlements SettlementEngine, logger *logrus.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger}
}

// Compute settles a closed period for one agency. A rerun returns the existing settlement with 200.
// @Summary Compute settlement
// @Tags Settlements
// @Accept json
// @Produce json
// @Param request body models.ComputeSettlementRequest true "Agency and period (YYYY-MM)"
// @Success 201 {object} models.Settlement
// @Success 200 {object} models.Settlement "Already computed"
// @Failure 409 {object} map[string]interface{} "Period already settled"
// @Security BearerAuth
// @Router /api/v1/settlements/compute [post]
func (h *SettlementHandler) Compute(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.ComputeSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.settlements.ComputeForPeriod(c.Request.Context(), p, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result.Settlement)
}

// Update moves a settlement to PROCESSING, PAID or FAILED
// @Summary Update settlement status
// @Tags Settlements
// @Accept json
// @Produce json
// @Param request body models.UpdateSettlementRequest true "Target status"
// @Success 200 {object} models.Settlement
// @Failure 409 {object} map[string]interface{} "Invalid transition"
// @Security BearerAuth
// @Router /api/v1/settlements [patch]
func (h *SettlementHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.UpdateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	settlement, err := h.settlements.UpdateStatus(c.Request.Context(), p, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

// Get returns one settlement
func (h *SettlementHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "settlementId")
	if !ok {
		return
	}

	settlement, err := h.settlements.Get(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}
