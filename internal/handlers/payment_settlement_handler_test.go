package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentCallbackHandler(t *testing.T) {
	payments := &stubPayments{apply: func(req *models.PaymentCallbackRequest) (*models.PaymentCallbackAck, error) {
		if req.Signature != "GOOD" {
			return nil, models.ErrInvalidSignature
		}
		return &models.PaymentCallbackAck{
			Acknowledged:  true,
			TransactionID: req.TransactionID,
			Outcome:       models.OutcomeApplied,
			PaymentStatus: models.PaymentPaid,
		}, nil
	}}
	h := NewPaymentHandler(payments, quietLogger())
	router := newRouter(nil)
	router.POST("/payments/callback", h.Callback)

	body := gin.H{"transaction_id": "TX-1", "reference": "K7Q2ZP", "status": "SUCCESS", "amount": 7000, "signature": "GOOD"}
	w := doJSON(t, router, "POST", "/payments/callback", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ack := decode(t, w)
	assert.Equal(t, true, ack["acknowledged"])
	assert.Equal(t, "APPLIED", ack["outcome"])

	body["signature"] = "FORGED"
	w = doJSON(t, router, "POST", "/payments/callback", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, "POST", "/payments/callback", gin.H{"transaction_id": "TX-2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconciliationQueueHandler(t *testing.T) {
	flagged := sampleBooking()
	flagged.ReconciliationFlag = true
	var gotLimit int
	payments := &stubPayments{
		listFlagged: func(p models.Principal, limit int) ([]models.Booking, error) {
			if !p.IsAdmin() {
				return nil, models.ErrForbidden
			}
			gotLimit = limit
			return []models.Booking{*flagged}, nil
		},
		resolve: func(p models.Principal, id uuid.UUID) error {
			if id != flagged.ID {
				return models.ErrBookingNotFound
			}
			return nil
		},
	}
	h := NewPaymentHandler(payments, quietLogger())
	route := func(p *models.Principal) *gin.Engine {
		router := newRouter(p)
		router.GET("/payments/flagged", h.ListFlagged)
		router.POST("/payments/flagged/:bookingId/resolve", h.ResolveFlag)
		return router
	}

	w := doJSON(t, route(adminPrincipal()), "GET", "/payments/flagged?limit=25", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
	assert.Equal(t, 25, gotLimit)

	w = doJSON(t, route(adminPrincipal()), "GET", "/payments/flagged?limit=lots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, route(staffPrincipal("agency-1")), "GET", "/payments/flagged", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, route(adminPrincipal()), "POST", "/payments/flagged/"+flagged.ID.String()+"/resolve", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, route(adminPrincipal()), "POST", "/payments/flagged/"+uuid.NewString()+"/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettlementHandler(t *testing.T) {
	settlement := &models.Settlement{
		ID:           uuid.New(),
		AgencyID:     "agency-1",
		Period:       "2025-03",
		GrossRevenue: 21000,
		PlatformFee:  2100,
		NetRevenue:   18900,
		FeeRateBps:   1000,
		Status:       models.SettlementPending,
	}
	created := true
	settlements := &stubSettlements{
		compute: func(_ models.Principal, req *models.ComputeSettlementRequest) (*models.SettlementResult, error) {
			if req.Period == "2025-02" {
				return nil, models.ErrAlreadySettled
			}
			result := &models.SettlementResult{Settlement: settlement, Created: created}
			created = false
			return result, nil
		},
		update: func(_ models.Principal, req *models.UpdateSettlementRequest) (*models.Settlement, error) {
			if req.Status == models.SettlementFailed {
				return nil, &models.TransitionError{Entity: "settlement", ID: req.SettlementID.String(), From: "PAID", To: "FAILED"}
			}
			out := *settlement
			out.Status = req.Status
			out.TransactionID = req.TransactionID
			return &out, nil
		},
		get: func(p models.Principal, id uuid.UUID) (*models.Settlement, error) {
			if !p.CanActForAgency(settlement.AgencyID) {
				return nil, models.ErrForbidden
			}
			return settlement, nil
		},
	}
	h := NewSettlementHandler(settlements, quietLogger())
	route := func(p *models.Principal) *gin.Engine {
		router := newRouter(p)
		router.POST("/settlements/compute", h.Compute)
		router.PATCH("/settlements", h.Update)
		router.GET("/settlements/:settlementId", h.Get)
		return router
	}
	router := route(adminPrincipal())

	w := doJSON(t, router, "POST", "/settlements/compute", gin.H{"agency_id": "agency-1", "period": "2025-03"})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2100), body["platform_fee"])
	assert.Equal(t, float64(18900), body["net_revenue"])

	w = doJSON(t, router, "POST", "/settlements/compute", gin.H{"agency_id": "agency-1", "period": "2025-03"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "POST", "/settlements/compute", gin.H{"agency_id": "agency-1", "period": "2025-02"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, "PATCH", "/settlements", gin.H{"settlement_id": settlement.ID, "status": "PAID", "transaction_id": "PAYOUT-7"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PAID", decode(t, w)["status"])

	w = doJSON(t, router, "PATCH", "/settlements", gin.H{"settlement_id": settlement.ID, "status": "FAILED"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, "PATCH", "/settlements", gin.H{"settlement_id": settlement.ID, "status": "PENDING"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, route(staffPrincipal("agency-1")), "GET", "/settlements/"+settlement.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, route(staffPrincipal("agency-2")), "GET", "/settlements/"+settlement.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDisputeHandler(t *testing.T) {
	disputeID := uuid.New()
	bookingID := uuid.New()
	disputes := &stubDisputes{
		open: func(_ models.Principal, req *models.OpenDisputeRequest) (*models.Dispute, error) {
			if req.AmountRequested > 7000 {
				return nil, models.NewValidationError("amount_requested", "must be between 0 and the booking total 7000")
			}
			return &models.Dispute{ID: disputeID, BookingID: req.BookingID, AmountRequested: req.AmountRequested, Status: models.DisputeOpen}, nil
		},
		update: func(p models.Principal, id uuid.UUID, req *models.UpdateDisputeRequest) (*models.Dispute, error) {
			if !p.IsAdmin() {
				return nil, models.ErrForbidden
			}
			return &models.Dispute{ID: id, BookingID: bookingID, Status: req.Status, Resolution: req.Resolution}, nil
		},
		get: func(_ models.Principal, id uuid.UUID) (*models.Dispute, error) {
			if id != disputeID {
				return nil, models.ErrDisputeNotFound
			}
			return &models.Dispute{ID: id, BookingID: bookingID, Status: models.DisputeOpen}, nil
		},
	}
	h := NewDisputeHandler(disputes, quietLogger())
	route := func(p *models.Principal) *gin.Engine {
		router := newRouter(p)
		router.POST("/disputes", h.Open)
		router.PATCH("/disputes/:disputeId", h.Update)
		router.GET("/disputes/:disputeId", h.Get)
		return router
	}
	owner := route(passengerPrincipal())

	w := doJSON(t, owner, "POST", "/disputes", gin.H{"booking_id": bookingID, "amount_requested": 3500, "reason": "bus never came"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "OPEN", decode(t, w)["status"])

	w = doJSON(t, owner, "POST", "/disputes", gin.H{"booking_id": bookingID, "amount_requested": 9000, "reason": "bus never came"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "amount_requested", decode(t, w)["field"])

	w = doJSON(t, owner, "PATCH", "/disputes/"+disputeID.String(), gin.H{"status": "RESOLVED"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, route(adminPrincipal()), "PATCH", "/disputes/"+disputeID.String(), gin.H{"status": "RESOLVED", "resolution": "refunded"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "refunded", decode(t, w)["resolution"])

	w = doJSON(t, route(adminPrincipal()), "PATCH", "/disputes/"+disputeID.String(), gin.H{"status": "OPEN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, owner, "GET", "/disputes/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
