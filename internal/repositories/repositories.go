package repositories

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklib/internal/models"
)

// Every method takes an optional *gorm.DB so service-layer transactions can
// pass their tx handle; nil falls back to the repository's own connection.

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	Update(db *gorm.DB, book *models.Book) error
	Delete(db *gorm.DB, id uuid.UUID) error

	// ReserveCopy atomically decrements inventory when a copy is available.
	// Returns false when inventory was already zero — the caller lost.
	ReserveCopy(db *gorm.DB, id uuid.UUID) (bool, error)

	// ReleaseCopy atomically returns one copy to the shelf.
	ReleaseCopy(db *gorm.DB, id uuid.UUID) error
}

// BorrowingFilter narrows List; nil fields mean "any".
type BorrowingFilter struct {
	UserID   *uuid.UUID
	IsActive *bool
}

type BorrowingRepository interface {
	Create(db *gorm.DB, borrowing *models.Borrowing) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error)
	List(db *gorm.DB, filter BorrowingFilter) ([]models.Borrowing, error)

	// MarkReturned sets actual_return_date only when it is still null.
	// Returns false when another return already won.
	MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time) (bool, error)

	// UserHasPendingPayments reports whether any payment on any of the
	// user's borrowings is still PENDING.
	UserHasPendingPayments(db *gorm.DB, userID uuid.UUID) (bool, error)
}

// PaymentFilter narrows List; zero values mean "any". UserID restricts to
// payments owned (via borrowing) by that user.
type PaymentFilter struct {
	UserID *uuid.UUID
	Type   models.PaymentType
	Status models.PaymentStatus
}

type PaymentRepository interface {
	Create(db *gorm.DB, payment *models.Payment) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Payment, error)
	GetBySessionID(db *gorm.DB, sessionID string) (*models.Payment, error)
	List(db *gorm.DB, filter PaymentFilter) ([]models.Payment, error)
	Save(db *gorm.DB, payment *models.Payment) error

	// FindFineCandidate locates the PAYMENT-type payment to repurpose into
	// a fine: a PAID one when present, otherwise a PENDING one, otherwise
	// gorm.ErrRecordNotFound.
	FindFineCandidate(db *gorm.DB, borrowingID uuid.UUID) (*models.Payment, error)

	// MarkPaid transitions any not-yet-PAID payment to PAID; a confirmed
	// session settles even a payment the sweeper already expired. Returns
	// false when the payment was already PAID (idempotent no-op for the
	// caller).
	MarkPaid(db *gorm.DB, id uuid.UUID) (bool, error)

	// ExpireStale bulk-transitions PENDING payments created before cutoff
	// to EXPIRED and returns how many rows changed.
	ExpireStale(db *gorm.DB, cutoff time.Time) (int64, error)
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Order("title").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) Update(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", book.ID).
		Updates(map[string]interface{}{
			"title":     book.Title,
			"author":    book.Author,
			"cover":     book.Cover,
			"daily_fee": book.DailyFee,
		}).Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Book{}, "id = ?", id).Error
}

func (r *bookRepository) ReserveCopy(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	// Conditional decrement: under concurrent borrows of the last copy
	// exactly one UPDATE matches the inventory > 0 predicate.
	res := db.Model(&models.Book{}).
		Where("id = ? AND inventory > 0", id).
		UpdateColumn("inventory", gorm.Expr("inventory - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) ReleaseCopy(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", id).
		UpdateColumn("inventory", gorm.Expr("inventory + 1")).
		Error
}

type borrowingRepository struct {
	db *gorm.DB
}

func NewBorrowingRepository(db *gorm.DB) BorrowingRepository {
	return &borrowingRepository{db: db}
}

func (r *borrowingRepository) Create(db *gorm.DB, borrowing *models.Borrowing) error {
	if db == nil {
		db = r.db
	}
	return db.Create(borrowing).Error
}

func (r *borrowingRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var borrowing models.Borrowing
	err := db.
		Preload("User").
		Preload("Book").
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("payments.created_at DESC")
		}).
		First(&borrowing, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &borrowing, nil
}

func (r *borrowingRepository) List(db *gorm.DB, filter BorrowingFilter) ([]models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Borrowing{}).
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("payments.created_at DESC")
		})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.IsActive != nil {
		if *filter.IsActive {
			q = q.Where("actual_return_date IS NULL")
		} else {
			q = q.Where("actual_return_date IS NOT NULL")
		}
	}
	var borrowings []models.Borrowing
	if err := q.Order("borrow_date DESC").Find(&borrowings).Error; err != nil {
		return nil, err
	}
	return borrowings, nil
}

func (r *borrowingRepository) MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Borrowing{}).
		Where("id = ? AND actual_return_date IS NULL", id).
		Update("actual_return_date", returnedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *borrowingRepository) UserHasPendingPayments(db *gorm.DB, userID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.Payment{}).
		Joins("JOIN borrowings ON borrowings.id = payments.borrowing_id").
		Where("borrowings.user_id = ? AND payments.status = ?", userID, models.PaymentStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(db *gorm.DB, payment *models.Payment) error {
	if db == nil {
		db = r.db
	}
	return db.Create(payment).Error
}

func (r *paymentRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Payment, error) {
	if db == nil {
		db = r.db
	}
	var payment models.Payment
	if err := db.First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetBySessionID(db *gorm.DB, sessionID string) (*models.Payment, error) {
	if db == nil {
		db = r.db
	}
	var payment models.Payment
	if err := db.First(&payment, "session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) List(db *gorm.DB, filter PaymentFilter) ([]models.Payment, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Payment{})
	if filter.UserID != nil {
		q = q.Joins("JOIN borrowings ON borrowings.id = payments.borrowing_id").
			Where("borrowings.user_id = ?", *filter.UserID)
	}
	if filter.Type != "" {
		q = q.Where("payments.type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("payments.status = ?", filter.Status)
	}
	var payments []models.Payment
	if err := q.Order("payments.created_at DESC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) Save(db *gorm.DB, payment *models.Payment) error {
	if db == nil {
		db = r.db
	}
	return db.Save(payment).Error
}

func (r *paymentRepository) FindFineCandidate(db *gorm.DB, borrowingID uuid.UUID) (*models.Payment, error) {
	if db == nil {
		db = r.db
	}
	// Prefer a settled payment; fall back to a pending one.
	for _, status := range []models.PaymentStatus{models.PaymentStatusPaid, models.PaymentStatusPending} {
		var payment models.Payment
		err := db.
			Where("borrowing_id = ? AND type = ? AND status = ?",
				borrowingID, models.PaymentTypePayment, status).
			Order("created_at DESC").
			First(&payment).Error
		if err == nil {
			return &payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *paymentRepository) MarkPaid(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Payment{}).
		Where("id = ? AND status <> ?", id, models.PaymentStatusPaid).
		Update("status", models.PaymentStatusPaid)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *paymentRepository) ExpireStale(db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	// Status-guarded predicate: each row transitions at most once, so the
	// sweep is safe to run concurrently with itself.
	res := db.Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, cutoff).
		Update("status", models.PaymentStatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
