package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"booklib/internal/apperr"
	"booklib/internal/gateway"
	"booklib/internal/models"
	"booklib/internal/notify"
	"booklib/internal/repositories"
)

// CreateBorrowingInput is the client's borrow request. ExpectedReturnDate
// nil means "the full borrow window".
type CreateBorrowingInput struct {
	BookID             uuid.UUID
	ExpectedReturnDate *time.Time
}

// BorrowingService owns the borrowing lifecycle: the borrow transition with
// its payment, and the return transition with its optional fine.
type BorrowingService interface {
	CreateBorrowing(ctx context.Context, actor Actor, input CreateBorrowingInput) (*models.Borrowing, error)
	ReturnBorrowing(ctx context.Context, actor Actor, borrowingID uuid.UUID) (*models.Borrowing, error)

	// CheckReturn is the dry-run: it reports whether ReturnBorrowing would
	// be allowed right now, without mutating anything.
	CheckReturn(actor Actor, borrowingID uuid.UUID) error

	ListBorrowings(actor Actor, userID *uuid.UUID, isActive *bool) ([]models.Borrowing, error)
	GetBorrowing(actor Actor, borrowingID uuid.UUID) (*models.Borrowing, error)
}

type borrowingService struct {
	db            *gorm.DB
	userRepo      repositories.UserRepository
	bookRepo      repositories.BookRepository
	borrowingRepo repositories.BorrowingRepository
	paymentRepo   repositories.PaymentRepository
	checkout      gateway.CheckoutGateway
	notifier      notify.Notifier
	settings      Settings
	now           func() time.Time
}

func NewBorrowingService(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	bookRepo repositories.BookRepository,
	borrowingRepo repositories.BorrowingRepository,
	paymentRepo repositories.PaymentRepository,
	checkout gateway.CheckoutGateway,
	notifier notify.Notifier,
	settings Settings,
) BorrowingService {
	return &borrowingService{
		db:            db,
		userRepo:      userRepo,
		bookRepo:      bookRepo,
		borrowingRepo: borrowingRepo,
		paymentRepo:   paymentRepo,
		checkout:      checkout,
		notifier:      notifier,
		settings:      settings,
		now:           time.Now,
	}
}

// CreateBorrowing implements the transactional borrow flow.
//
// Preconditions, first failure wins:
//  1. The user has no PENDING payment on any borrowing (global gate).
//  2. The book has inventory left.
//  3. expected_return_date is inside (today, today+window]; defaulted to
//     the end of the window when omitted.
//
// Then, atomically: reserve one copy, create the borrowing, open a checkout
// session for days × daily_fee and record the PENDING payment. A gateway
// failure rolls the whole block back — no decrement, no rows.
func (s *borrowingService) CreateBorrowing(ctx context.Context, actor Actor, input CreateBorrowingInput) (*models.Borrowing, error) {
	today := dateOnly(s.now())
	maxDate := today.AddDate(0, 0, s.settings.MaxBorrowDays)

	expected := maxDate
	if input.ExpectedReturnDate != nil {
		expected = dateOnly(*input.ExpectedReturnDate)
	}

	var result *models.Borrowing

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.userRepo.GetByID(tx, actor.UserID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.KindNotFound, "user not found")
			}
			return err
		}

		// 1. Global pending-payments gate, independent of the target book.
		pending, err := s.borrowingRepo.UserHasPendingPayments(tx, actor.UserID)
		if err != nil {
			return err
		}
		if pending {
			log.Warnf("[WARN] CreateBorrowing: user %s blocked by pending payments", actor.UserID)
			return apperr.ErrUnpaidPayments
		}

		book, err := s.bookRepo.GetByID(tx, input.BookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrBookNotFound
			}
			return err
		}

		// 2. Availability gate.
		if book.Inventory <= 0 {
			return apperr.ErrBookNotAvailable
		}

		// 3. Return-date window. Same-day is rejected too: zero borrow days
		// would price the payment at zero.
		if !expected.After(today) {
			return apperr.New(apperr.KindValidation, "return date must be later than today")
		}
		if expected.After(maxDate) {
			return apperr.New(apperr.KindValidation,
				fmt.Sprintf("max return date is %d days from today", s.settings.MaxBorrowDays))
		}

		// Reserve the copy with a conditional decrement; losing the race
		// against a concurrent borrow counts as unavailability.
		ok, err := s.bookRepo.ReserveCopy(tx, book.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrBookNotAvailable
		}

		borrowing := &models.Borrowing{
			UserID:             actor.UserID,
			BookID:             book.ID,
			BorrowDate:         today,
			ExpectedReturnDate: expected,
		}
		if err := s.borrowingRepo.Create(tx, borrowing); err != nil {
			log.Errorf("[ERROR] CreateBorrowing: failed to create borrowing: %v", err)
			return err
		}

		days := daysBetween(today, expected)
		amount := book.DailyFee.Mul(decimal.NewFromInt(int64(days)))

		session, err := s.checkout.OpenSession(ctx, gateway.SessionRequest{
			Amount:      toCents(amount),
			Currency:    s.settings.Currency,
			Name:        "Payment for: " + book.Title,
			Description: fmt.Sprintf("Borrowing until %s", expected.Format("2006-01-02")),
			SuccessURL:  s.settings.CheckoutSuccessURL,
			CancelURL:   s.settings.CheckoutCancelURL,
			Metadata: map[string]string{
				"borrowing_id": borrowing.ID.String(),
				"type":         string(models.PaymentTypePayment),
			},
		})
		if err != nil {
			// Rolls back the reservation and the borrowing row.
			log.Errorf("[ERROR] CreateBorrowing: checkout session failed for borrowing %s: %v", borrowing.ID, err)
			return err
		}

		payment := &models.Payment{
			Status:      models.PaymentStatusPending,
			Type:        models.PaymentTypePayment,
			BorrowingID: borrowing.ID,
			SessionURL:  session.URL,
			SessionID:   session.ID,
			MoneyToPay:  amount,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.paymentRepo.Create(tx, payment); err != nil {
			log.Errorf("[ERROR] CreateBorrowing: failed to create payment: %v", err)
			return err
		}

		borrowing.Payments = []models.Payment{*payment}
		result = borrowing
		log.Infof("[INFO] CreateBorrowing: borrowing %s created for user %s / book %q, due %s, to pay %s",
			borrowing.ID, actor.UserID, book.Title, expected.Format("2006-01-02"), amount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReturnBorrowing implements the transactional return flow.
//
// Steps (one transaction): permission check, double-return guard, set
// actual_return_date, release the copy, and — when overdue — repurpose the
// most relevant PAYMENT row into a PENDING FINE with a fresh checkout
// session. The return notification goes out after commit, best-effort.
func (s *borrowingService) ReturnBorrowing(ctx context.Context, actor Actor, borrowingID uuid.UUID) (*models.Borrowing, error) {
	var updated *models.Borrowing
	var notice string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		borrowing, err := s.borrowingRepo.GetByID(tx, borrowingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrBorrowingNotFound
			}
			return err
		}

		if !actor.canAccess(borrowing.UserID) {
			return apperr.ErrNotPermitted
		}
		if borrowing.ActualReturnDate != nil {
			log.Warnf("[WARN] ReturnBorrowing: borrowing %s already returned at %s",
				borrowingID, borrowing.ActualReturnDate.Format("2006-01-02"))
			return apperr.ErrAlreadyReturned
		}

		today := dateOnly(s.now())

		// Guarded update: a concurrent return may have won between the
		// read above and here.
		ok, err := s.borrowingRepo.MarkReturned(tx, borrowingID, today)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.KindConflict, "borrowing was returned concurrently")
		}

		if err := s.bookRepo.ReleaseCopy(tx, borrowing.BookID); err != nil {
			log.Errorf("[ERROR] ReturnBorrowing: failed to release copy for book %s: %v", borrowing.BookID, err)
			return err
		}

		expected := dateOnly(borrowing.ExpectedReturnDate)
		if today.After(expected) {
			if err := s.chargeFine(ctx, tx, borrowing, today, expected); err != nil {
				return err
			}
		}

		reloaded, err := s.borrowingRepo.GetByID(tx, borrowingID)
		if err != nil {
			return err
		}
		updated = reloaded

		notice = fmt.Sprintf("%s returned book: %s\nReturn date: %s",
			borrowing.User.Email, borrowing.Book.Title, today.Format("2006-01-02"))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, notice)

	log.Infof("[INFO] ReturnBorrowing: borrowing %s returned", borrowingID)
	return updated, nil
}

// chargeFine repurposes the located PAYMENT row into a FINE rather than
// creating a second row: prefer a PAID one, fall back to PENDING, skip
// entirely when neither exists.
func (s *borrowingService) chargeFine(ctx context.Context, tx *gorm.DB, borrowing *models.Borrowing, today, expected time.Time) error {
	payment, err := s.paymentRepo.FindFineCandidate(tx, borrowing.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[WARN] ReturnBorrowing: no payment to repurpose into a fine for borrowing %s", borrowing.ID)
			return nil
		}
		return err
	}

	overdueDays := daysBetween(expected, today)
	fine := borrowing.Book.DailyFee.
		Mul(decimal.NewFromInt(int64(overdueDays))).
		Mul(s.settings.FineMultiplier)

	session, err := s.checkout.OpenSession(ctx, gateway.SessionRequest{
		Amount:      toCents(fine),
		Currency:    s.settings.Currency,
		Name:        "Fine for: " + borrowing.Book.Title,
		Description: fmt.Sprintf("%d days overdue", overdueDays),
		SuccessURL:  s.settings.CheckoutSuccessURL,
		CancelURL:   s.settings.CheckoutCancelURL,
		Metadata: map[string]string{
			"borrowing_id": borrowing.ID.String(),
			"type":         string(models.PaymentTypeFine),
		},
	})
	if err != nil {
		log.Errorf("[ERROR] ReturnBorrowing: fine session failed for borrowing %s: %v", borrowing.ID, err)
		return err
	}

	payment.Type = models.PaymentTypeFine
	payment.Status = models.PaymentStatusPending
	payment.MoneyToPay = fine
	payment.SessionURL = session.URL
	payment.SessionID = session.ID
	if err := s.paymentRepo.Save(tx, payment); err != nil {
		return err
	}

	log.Infof("[INFO] ReturnBorrowing: fine of %s charged on borrowing %s (%d days overdue)",
		fine, borrowing.ID, overdueDays)
	return nil
}

func (s *borrowingService) CheckReturn(actor Actor, borrowingID uuid.UUID) error {
	borrowing, err := s.borrowingRepo.GetByID(nil, borrowingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrBorrowingNotFound
		}
		return err
	}
	if !actor.canAccess(borrowing.UserID) {
		return apperr.ErrNotPermitted
	}
	if borrowing.ActualReturnDate != nil {
		return apperr.ErrAlreadyReturned
	}
	return nil
}

// ListBorrowings applies the self-vs-staff visibility rule: non-staff
// always see their own borrowings only; staff see all and may narrow by
// user id.
func (s *borrowingService) ListBorrowings(actor Actor, userID *uuid.UUID, isActive *bool) ([]models.Borrowing, error) {
	filter := repositories.BorrowingFilter{IsActive: isActive}
	if actor.IsStaff {
		filter.UserID = userID
	} else {
		self := actor.UserID
		filter.UserID = &self
	}
	return s.borrowingRepo.List(nil, filter)
}

func (s *borrowingService) GetBorrowing(actor Actor, borrowingID uuid.UUID) (*models.Borrowing, error) {
	borrowing, err := s.borrowingRepo.GetByID(nil, borrowingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrBorrowingNotFound
		}
		return nil, err
	}
	// Non-owners get not-found rather than a permission hint.
	if !actor.canAccess(borrowing.UserID) {
		return nil, apperr.ErrBorrowingNotFound
	}
	return borrowing, nil
}
