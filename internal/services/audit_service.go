package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
	"github.com/smarttransit/seat-booking-engine/internal/utils"
)

// Auditor receives one record per state-changing call. Recording is best-effort:
// a failed write never fails the operation that produced it.
type Auditor interface {
	Record(ctx context.Context, event AuditEvent)
}

// AuditEvent represents a state change to be logged
type AuditEvent struct {
	UserID     *uuid.UUID             // nil for provider callbacks and background jobs
	Action     string                 // e.g. "hold_create", "booking_cancel", "settlement_update"
	EntityType string                 // hold, booking, payment, settlement, dispute, trip
	EntityID   string                 // id of the affected entity
	Before     string                 // status before the change, empty on create
	After      string                 // status after the change
	Details    map[string]interface{} // additional details as JSONB
}

type clientInfoKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// ContextWithClient attaches the caller's IP and user agent for audit records
func ContextWithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

func clientFromContext(ctx context.Context) clientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(clientInfo)
	return info
}

// AuditService writes audit events to the audit_logs table
type AuditService struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(db *sqlx.DB, logger *logrus.Logger) *AuditService {
	return &AuditService{
		db:     db,
		logger: logger,
	}
}

// Record implements Auditor
func (s *AuditService) Record(ctx context.Context, event AuditEvent) {
	client := clientFromContext(ctx)

	details := models.JSONB{}
	for k, v := range event.Details {
		details[k] = v
	}
	if event.Before != "" {
		details["before"] = event.Before
	}
	if event.After != "" {
		details["after"] = event.After
	}
	if client.userAgent != "" {
		details["device_info"] = utils.ParseUserAgent(client.userAgent)
	}

	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err := s.db.ExecContext(
		context.WithoutCancel(ctx),
		query,
		event.UserID,
		event.Action,
		event.EntityType,
		event.EntityID,
		client.ip,
		client.userAgent,
		details,
	)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":    event.Action,
			"entity_id": event.EntityID,
		}).Warn("Failed to write audit event")
	}
}

// LogAuditor writes audit events to the application log. Used when no database is wired.
type LogAuditor struct {
	logger *logrus.Logger
}

// NewLogAuditor creates a log-only auditor
func NewLogAuditor(logger *logrus.Logger) *LogAuditor {
	return &LogAuditor{logger: logger}
}

// Record implements Auditor
func (a *LogAuditor) Record(ctx context.Context, event AuditEvent) {
	client := clientFromContext(ctx)
	a.logger.WithFields(logrus.Fields{
		"audit":       true,
		"user_id":     event.UserID,
		"action":      event.Action,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"before":      event.Before,
		"after":       event.After,
		"ip":          client.ip,
	}).Info("Audit event")
}
