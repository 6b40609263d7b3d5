package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

type stubBookings struct {
	create   func(p models.Principal, req *models.CreateBookingRequest) (*models.Booking, error)
	cancel   func(p models.Principal, req *models.CancelBookingRequest) (*models.Booking, error)
	get      func(p models.Principal, id uuid.UUID) (*models.Booking, error)
	getByPNR func(p models.Principal, pnr string) (*models.Booking, error)
}

func (s *stubBookings) Create(_ context.Context, p models.Principal, req *models.CreateBookingRequest) (*models.Booking, error) {
	return s.create(p, req)
}

func (s *stubBookings) Cancel(_ context.Context, p models.Principal, req *models.CancelBookingRequest) (*models.Booking, error) {
	return s.cancel(p, req)
}

func (s *stubBookings) Get(_ context.Context, p models.Principal, id uuid.UUID) (*models.Booking, error) {
	return s.get(p, id)
}

func (s *stubBookings) GetByPNR(_ context.Context, p models.Principal, pnr string) (*models.Booking, error) {
	return s.getByPNR(p, pnr)
}

type stubPayments struct {
	apply       func(req *models.PaymentCallbackRequest) (*models.PaymentCallbackAck, error)
	refund      func(p models.Principal, id uuid.UUID) (*models.Booking, error)
	listFlagged func(p models.Principal, limit int) ([]models.Booking, error)
	resolve     func(p models.Principal, id uuid.UUID) error
}

func (s *stubPayments) ApplyCallback(_ context.Context, req *models.PaymentCallbackRequest) (*models.PaymentCallbackAck, error) {
	return s.apply(req)
}

func (s *stubPayments) Refund(_ context.Context, p models.Principal, id uuid.UUID) (*models.Booking, error) {
	return s.refund(p, id)
}

func (s *stubPayments) ListFlagged(_ context.Context, p models.Principal, limit int) ([]models.Booking, error) {
	return s.listFlagged(p, limit)
}

func (s *stubPayments) ResolveFlag(_ context.Context, p models.Principal, id uuid.UUID) error {
	return s.resolve(p, id)
}

type stubSettlements struct {
	compute func(p models.Principal, req *models.ComputeSettlementRequest) (*models.SettlementResult, error)
	update  func(p models.Principal, req *models.UpdateSettlementRequest) (*models.Settlement, error)
	get     func(p models.Principal, id uuid.UUID) (*models.Settlement, error)
}

func (s *stubSettlements) ComputeForPeriod(_ context.Context, p models.Principal, req *models.ComputeSettlementRequest) (*models.SettlementResult, error) {
	return s.compute(p, req)
}

func (s *stubSettlements) UpdateStatus(_ context.Context, p models.Principal, req *models.UpdateSettlementRequest) (*models.Settlement, error) {
	return s.update(p, req)
}

func (s *stubSettlements) Get(_ context.Context, p models.Principal, id uuid.UUID) (*models.Settlement, error) {
	return s.get(p, id)
}

type stubDisputes struct {
	open   func(p models.Principal, req *models.OpenDisputeRequest) (*models.Dispute, error)
	update func(p models.Principal, id uuid.UUID, req *models.UpdateDisputeRequest) (*models.Dispute, error)
	get    func(p models.Principal, id uuid.UUID) (*models.Dispute, error)
}

func (s *stubDisputes) Open(_ context.Context, p models.Principal, req *models.OpenDisputeRequest) (*models.Dispute, error) {
	return s.open(p, req)
}

func (s *stubDisputes) Update(_ context.Context, p models.Principal, id uuid.UUID, req *models.UpdateDisputeRequest) (*models.Dispute, error) {
	return s.update(p, id, req)
}

func (s *stubDisputes) Get(_ context.Context, p models.Principal, id uuid.UUID) (*models.Dispute, error) {
	return s.get(p, id)
}
