package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BookCover string

const (
	BookCoverHard BookCover = "HARD"
	BookCoverSoft BookCover = "SOFT"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusExpired PaymentStatus = "EXPIRED"
)

type PaymentType string

const (
	PaymentTypePayment PaymentType = "PAYMENT"
	PaymentTypeFine    PaymentType = "FINE"
)

// User is the local projection of the external identity provider: just
// enough to own borrowings and to authorize self-vs-staff queries.
type User struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email   string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	IsStaff bool      `gorm:"not null;default:false" json:"is_staff"`
}

type Book struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string          `gorm:"size:255;not null" json:"title"`
	Author    string          `gorm:"size:255;not null" json:"author"`
	Cover     BookCover       `gorm:"size:20;not null;default:SOFT" json:"cover"`
	Inventory int             `gorm:"not null;check:inventory >= 0" json:"inventory"`
	DailyFee  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"daily_fee"`
}

type Borrowing struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User   User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	BookID uuid.UUID `gorm:"type:uuid;not null;index" json:"book_id"`
	Book   Book      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	// Dates carry calendar-day granularity; timestamps are truncated to
	// midnight UTC before they are stored.
	BorrowDate         time.Time  `gorm:"not null" json:"borrow_date"`
	ExpectedReturnDate time.Time  `gorm:"not null" json:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date"`

	// Most recent first.
	Payments []Payment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"payments,omitempty"`
}

// Active reports whether the book is still out.
func (b *Borrowing) Active() bool {
	return b.ActualReturnDate == nil
}

type Payment struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Status      PaymentStatus   `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	Type        PaymentType     `gorm:"size:20;not null;default:PAYMENT" json:"type"`
	BorrowingID uuid.UUID       `gorm:"type:uuid;not null;index" json:"borrowing_id"`
	SessionURL  string          `gorm:"size:2048;not null" json:"session_url"`
	SessionID   string          `gorm:"size:255;not null;index" json:"session_id"`
	MoneyToPay  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"money_to_pay"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// BeforeCreate hooks assign UUIDs client-side so the same models work on
// Postgres and on the sqlite driver used in tests.

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (b *Book) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *Borrowing) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (p *Payment) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}
