package services

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"booklib/internal/apperr"
	"booklib/internal/models"
	"booklib/internal/repositories"
)

// BookInput is the staff-facing book payload for create and update.
type BookInput struct {
	Title     string
	Author    string
	Cover     models.BookCover
	Inventory int
	DailyFee  decimal.Decimal
}

// CatalogService owns the book inventory. Reads are public; writes are
// gated to staff at the handler layer.
type CatalogService interface {
	CreateBook(input BookInput) (*models.Book, error)
	ListBooks() ([]models.Book, error)
	GetBook(id uuid.UUID) (*models.Book, error)
	UpdateBook(id uuid.UUID, input BookInput) (*models.Book, error)
	DeleteBook(id uuid.UUID) error
}

type catalogService struct {
	bookRepo repositories.BookRepository
}

func NewCatalogService(bookRepo repositories.BookRepository) CatalogService {
	return &catalogService{bookRepo: bookRepo}
}

func validateBookInput(input BookInput) error {
	if input.Title == "" {
		return apperr.New(apperr.KindValidation, "title is required")
	}
	if input.Author == "" {
		return apperr.New(apperr.KindValidation, "author is required")
	}
	if input.Cover != models.BookCoverHard && input.Cover != models.BookCoverSoft {
		return apperr.New(apperr.KindValidation, "cover must be HARD or SOFT")
	}
	if input.Inventory < 0 {
		return apperr.New(apperr.KindValidation, "inventory cannot be negative")
	}
	if !input.DailyFee.IsPositive() {
		return apperr.New(apperr.KindValidation, "daily fee must be positive")
	}
	return nil
}

func (s *catalogService) CreateBook(input BookInput) (*models.Book, error) {
	if err := validateBookInput(input); err != nil {
		return nil, err
	}
	book := &models.Book{
		Title:     input.Title,
		Author:    input.Author,
		Cover:     input.Cover,
		Inventory: input.Inventory,
		DailyFee:  input.DailyFee,
	}
	if err := s.bookRepo.Create(nil, book); err != nil {
		return nil, err
	}
	log.Infof("[INFO] CreateBook: created %q (id=%s) with %d copies", book.Title, book.ID, book.Inventory)
	return book, nil
}

func (s *catalogService) ListBooks() ([]models.Book, error) {
	return s.bookRepo.List(nil)
}

func (s *catalogService) GetBook(id uuid.UUID) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

// UpdateBook edits the descriptive fields only; inventory moves exclusively
// through the borrow/return flow.
func (s *catalogService) UpdateBook(id uuid.UUID, input BookInput) (*models.Book, error) {
	if err := validateBookInput(input); err != nil {
		return nil, err
	}
	book, err := s.GetBook(id)
	if err != nil {
		return nil, err
	}
	book.Title = input.Title
	book.Author = input.Author
	book.Cover = input.Cover
	book.DailyFee = input.DailyFee
	if err := s.bookRepo.Update(nil, book); err != nil {
		return nil, err
	}
	return book, nil
}

func (s *catalogService) DeleteBook(id uuid.UUID) error {
	if _, err := s.GetBook(id); err != nil {
		return err
	}
	return s.bookRepo.Delete(nil, id)
}
