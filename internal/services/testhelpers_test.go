package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"booklib/internal/gateway"
	"booklib/internal/models"
	"booklib/internal/repositories"
)

// recordingNotifier captures messages so tests can assert the best-effort
// notifications without a network.
type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type fixture struct {
	db         *gorm.DB
	users      repositories.UserRepository
	books      repositories.BookRepository
	borrowings repositories.BorrowingRepository
	payments   repositories.PaymentRepository
	checkout   *gateway.Fake
	notifier   *recordingNotifier
	settings   Settings
	borrowSvc  BorrowingService
	paySvc     PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Book{}, &models.Borrowing{}, &models.Payment{}))

	f := &fixture{
		db:         db,
		users:      repositories.NewUserRepository(db),
		books:      repositories.NewBookRepository(db),
		borrowings: repositories.NewBorrowingRepository(db),
		payments:   repositories.NewPaymentRepository(db),
		checkout:   gateway.NewFake(),
		notifier:   &recordingNotifier{},
		settings: Settings{
			FineMultiplier:     decimal.NewFromFloat(1.5),
			MaxBorrowDays:      60,
			PaymentTTL:         time.Hour,
			Currency:           "usd",
			CheckoutSuccessURL: "https://app.test/payments/success?session_id={CHECKOUT_SESSION_ID}",
			CheckoutCancelURL:  "https://app.test/payments/cancel",
		},
	}
	f.borrowSvc = NewBorrowingService(
		db, f.users, f.books, f.borrowings, f.payments, f.checkout, f.notifier, f.settings)
	f.paySvc = NewPaymentService(
		f.borrowings, f.payments, f.checkout, f.notifier, f.settings)
	return f
}

func (f *fixture) createUser(t *testing.T, email string, staff bool) *models.User {
	t.Helper()
	user := &models.User{Email: email, IsStaff: staff}
	require.NoError(t, f.users.Create(nil, user))
	return user
}

func (f *fixture) createBook(t *testing.T, title string, inventory int, dailyFee int64) *models.Book {
	t.Helper()
	book := &models.Book{
		Title:     title,
		Author:    "Author",
		Cover:     models.BookCoverHard,
		Inventory: inventory,
		DailyFee:  decimal.NewFromInt(dailyFee),
	}
	require.NoError(t, f.books.Create(nil, book))
	return book
}

// seedBorrowing inserts a borrowing directly, bypassing the service gates,
// so tests can construct overdue and historical states.
func (f *fixture) seedBorrowing(t *testing.T, userID, bookID uuid.UUID, borrowDate, expected time.Time) *models.Borrowing {
	t.Helper()
	borrowing := &models.Borrowing{
		UserID:             userID,
		BookID:             bookID,
		BorrowDate:         borrowDate,
		ExpectedReturnDate: expected,
	}
	require.NoError(t, f.borrowings.Create(nil, borrowing))
	return borrowing
}

func (f *fixture) seedPayment(t *testing.T, borrowingID uuid.UUID, status models.PaymentStatus, typ models.PaymentType, amount int64, createdAt time.Time) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		Status:      status,
		Type:        typ,
		BorrowingID: borrowingID,
		SessionURL:  "https://checkout.test/seeded",
		SessionID:   "cs_seeded_" + uuid.NewString(),
		MoneyToPay:  decimal.NewFromInt(amount),
		CreatedAt:   createdAt,
	}
	require.NoError(t, f.payments.Create(nil, payment))
	return payment
}

func (f *fixture) bookInventory(t *testing.T, id uuid.UUID) int {
	t.Helper()
	book, err := f.books.GetByID(nil, id)
	require.NoError(t, err)
	return book.Inventory
}

func today() time.Time {
	return dateOnly(time.Now())
}
