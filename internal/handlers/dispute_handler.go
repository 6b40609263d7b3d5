package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// DisputeWorkflow is implemented by services.DisputeService
type DisputeWorkflow interface {
	Open(ctx context.Context, p models.Principal, req *models.OpenDisputeRequest) (*models.Dispute, error)
	Update(ctx context.Context, p models.Principal, id uuid.UUID, req *models.UpdateDisputeRequest) (*models.Dispute, error)
	Get(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Dispute, error)
}

// DisputeHandler handles dispute endpoints
type DisputeHandler struct {
	disputes DisputeWorkflow
	logger   *logrus.Logger
}

// NewDisputeHandler creates a new DisputeHandler
func NewDisputeHandler(disputes DisputeWorkflow, logger *logrus.Logger) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, logger: logger}
}

// Open files a dispute against a booking
func (h *DisputeHandler) Open(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	dispute, err := h.disputes.Open(c.Request.Context(), p, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

// Update advances a dispute
func (h *DisputeHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "disputeId")
	if !ok {
		return
	}

	var req models.UpdateDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	dispute, err := h.disputes.Update(c.Request.Context(), p, id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

func (h *DisputeHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "disputeId")
	if !ok {
		return
	}

	dispute, err := h.disputes.Get(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}
