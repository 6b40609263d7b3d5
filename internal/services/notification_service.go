package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/models"
)

// Notifier tells passengers about booking changes. Calls return immediately;
// delivery failures never roll back the booking.
type Notifier interface {
	BookingConfirmed(ctx context.Context, booking *models.Booking)
	BookingCancelled(ctx context.Context, booking *models.Booking)
}

// Notification kinds
const (
	NotificationBookingConfirmed = "booking_confirmed"
	NotificationBookingCancelled = "booking_cancelled"
)

// Notification is one message for the delivery channel (SMS, WhatsApp, email)
type Notification struct {
	Kind      string
	BookingID uuid.UUID
	PNR       string
	Phone     string
	Message   string
}

// Sender delivers a notification synchronously
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the log instead of delivering them
type LogSender struct {
	logger *logrus.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender
func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.WithFields(logrus.Fields{
		"kind":       n.Kind,
		"booking_id": n.BookingID,
		"pnr":        n.PNR,
		"phone":      n.Phone,
	}).Info(n.Message)
	return nil
}

// AsyncNotifier dispatches every notification on its own goroutine
type AsyncNotifier struct {
	sender  Sender
	timeout time.Duration
	logger  *logrus.Logger
	wg      sync.WaitGroup
}

// NewAsyncNotifier wraps sender
func NewAsyncNotifier(sender Sender, timeout time.Duration, logger *logrus.Logger) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AsyncNotifier{sender: sender, timeout: timeout, logger: logger}
}

// BookingConfirmed implements Notifier
func (n *AsyncNotifier) BookingConfirmed(ctx context.Context, b *models.Booking) {
	n.dispatch(ctx, Notification{
		Kind:      NotificationBookingConfirmed,
		BookingID: b.ID,
		PNR:       b.PNR,
		Phone:     b.Contact.Phone,
		Message: fmt.Sprintf("Booking %s confirmed: trip %s, seats %v, total %d %s",
			b.PNR, b.TripID, b.SeatNumbers(), b.TotalAmount, b.Currency),
	})
}

// BookingCancelled implements Notifier
func (n *AsyncNotifier) BookingCancelled(ctx context.Context, b *models.Booking) {
	n.dispatch(ctx, Notification{
		Kind:      NotificationBookingCancelled,
		BookingID: b.ID,
		PNR:       b.PNR,
		Phone:     b.Contact.Phone,
		Message:   fmt.Sprintf("Booking %s on trip %s has been cancelled", b.PNR, b.TripID),
	})
}

// Wait blocks until every dispatched notification has finished
func (n *AsyncNotifier) Wait() {
	n.wg.Wait()
}

func (n *AsyncNotifier) dispatch(ctx context.Context, msg Notification) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.logger.WithFields(logrus.Fields{
					"kind":       msg.Kind,
					"booking_id": msg.BookingID,
					"panic":      r,
				}).Error("Notification sender panicked")
			}
		}()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		if err := n.sender.Send(sendCtx, msg); err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"kind":       msg.Kind,
				"booking_id": msg.BookingID,
			}).Warn("Failed to send notification")
		}
	}()
}
