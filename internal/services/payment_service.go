package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"booklib/internal/apperr"
	"booklib/internal/gateway"
	"booklib/internal/models"
	"booklib/internal/notify"
	"booklib/internal/repositories"
)

// PaymentService tracks settlement state independent of the lifecycle that
// created each payment.
type PaymentService interface {
	// HandleCheckoutSuccess confirms a session against the gateway and
	// transitions the matching payment to PAID. A slow customer can settle
	// a payment the sweeper already expired. Idempotent: a payment that is
	// already PAID is a no-op, not an error.
	HandleCheckoutSuccess(ctx context.Context, sessionID string) (*models.Payment, error)

	// HandleCheckoutCancel acknowledges a cancelled checkout; nothing
	// changes and the session stays open for a retry.
	HandleCheckoutCancel() string

	// ExpireStalePayments transitions every PENDING payment older than the
	// configured TTL (relative to now) to EXPIRED and returns the count.
	ExpireStalePayments(now time.Time) (int64, error)

	ListPayments(actor Actor, typ models.PaymentType, status models.PaymentStatus) ([]models.Payment, error)
	GetPayment(actor Actor, id uuid.UUID) (*models.Payment, error)
}

type paymentService struct {
	borrowingRepo repositories.BorrowingRepository
	paymentRepo   repositories.PaymentRepository
	checkout      gateway.CheckoutGateway
	notifier      notify.Notifier
	settings      Settings
}

func NewPaymentService(
	borrowingRepo repositories.BorrowingRepository,
	paymentRepo repositories.PaymentRepository,
	checkout gateway.CheckoutGateway,
	notifier notify.Notifier,
	settings Settings,
) PaymentService {
	return &paymentService{
		borrowingRepo: borrowingRepo,
		paymentRepo:   paymentRepo,
		checkout:      checkout,
		notifier:      notifier,
		settings:      settings,
	}
}

func (s *paymentService) HandleCheckoutSuccess(ctx context.Context, sessionID string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetBySessionID(nil, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrPaymentNotFound
		}
		return nil, err
	}

	// The gateway is authoritative; the redirect alone proves nothing.
	status, err := s.checkout.SessionStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if status != gateway.SessionPaid {
		log.Warnf("[WARN] HandleCheckoutSuccess: session %s not paid yet", sessionID)
		return nil, apperr.ErrPaymentNotComplete
	}

	changed, err := s.paymentRepo.MarkPaid(nil, payment.ID)
	if err != nil {
		return nil, err
	}
	payment.Status = models.PaymentStatusPaid

	if changed {
		log.Infof("[INFO] HandleCheckoutSuccess: payment %s settled (%s, %s)",
			payment.ID, payment.Type, payment.MoneyToPay)
		if borrowing, err := s.borrowingRepo.GetByID(nil, payment.BorrowingID); err == nil {
			s.notifier.Send(ctx, fmt.Sprintf("Payment received\n%s\n%s\n$%s (%s)",
				borrowing.User.Email, borrowing.Book.Title, payment.MoneyToPay, payment.Type))
		}
	}
	return payment, nil
}

func (s *paymentService) HandleCheckoutCancel() string {
	return "Payment was cancelled. You can retry later."
}

func (s *paymentService) ExpireStalePayments(now time.Time) (int64, error) {
	cutoff := now.Add(-s.settings.PaymentTTL)
	count, err := s.paymentRepo.ExpireStale(nil, cutoff)
	if err != nil {
		log.Errorf("[ERROR] ExpireStalePayments: %v", err)
		return 0, err
	}
	if count > 0 {
		log.Infof("[INFO] ExpireStalePayments: expired %d payment(s)", count)
	}
	return count, nil
}

func (s *paymentService) ListPayments(actor Actor, typ models.PaymentType, status models.PaymentStatus) ([]models.Payment, error) {
	filter := repositories.PaymentFilter{Type: typ, Status: status}
	if !actor.IsStaff {
		self := actor.UserID
		filter.UserID = &self
	}
	return s.paymentRepo.List(nil, filter)
}

func (s *paymentService) GetPayment(actor Actor, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrPaymentNotFound
		}
		return nil, err
	}
	if !actor.IsStaff {
		borrowing, err := s.borrowingRepo.GetByID(nil, payment.BorrowingID)
		if err != nil {
			return nil, err
		}
		if borrowing.UserID != actor.UserID {
			return nil, apperr.ErrPaymentNotFound
		}
	}
	return payment, nil
}
