package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"booklib/internal/apperr"
	"booklib/internal/middleware"
	"booklib/internal/models"
	"booklib/internal/services"
)

const dateLayout = "2006-01-02"

type API struct {
	borrowings services.BorrowingService
	payments   services.PaymentService
	catalog    services.CatalogService
}

func RegisterRoutes(r *gin.Engine, borrowings services.BorrowingService, payments services.PaymentService, catalog services.CatalogService) {
	h := &API{borrowings: borrowings, payments: payments, catalog: catalog}

	r.Use(middleware.Identity())

	// Catalog: world-readable, staff-writable.
	r.GET("/books", h.listBooks)
	r.GET("/books/:id", h.getBook)
	staff := r.Group("/", middleware.RequireStaff())
	staff.POST("/books", h.createBook)
	staff.PUT("/books/:id", h.updateBook)
	staff.DELETE("/books/:id", h.deleteBook)

	// Borrowing lifecycle.
	authed := r.Group("/", middleware.RequireUser())
	authed.POST("/borrowings", h.createBorrowing)
	authed.GET("/borrowings", h.listBorrowings)
	authed.GET("/borrowings/:id", h.getBorrowing)
	authed.GET("/borrowings/:id/return", h.checkReturn)
	authed.POST("/borrowings/:id/return", h.returnBorrowing)

	// Payment ledger.
	authed.GET("/payments", h.listPayments)
	authed.GET("/payments/:id", h.getPayment)

	// Public gateway callbacks.
	r.GET("/payments/success", h.checkoutSuccess)
	r.GET("/payments/cancel", h.checkoutCancel)

	// Internal trigger mirroring the cron sweep.
	staff.POST("/internal/payments/expire", h.expirePayments)
}

// respondError translates the core error taxonomy to stable HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindPrecondition:
		status = http.StatusBadRequest
	case apperr.KindPermission:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindGatewayUnavailable:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// ─── Borrowings ───────────────────────────────────────────────────────────────

type createBorrowingRequest struct {
	BookID             string `json:"book_id" binding:"required,uuid"`
	ExpectedReturnDate string `json:"expected_return_date"`
}

func (h *API) createBorrowing(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req createBorrowingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bookID, err := uuid.Parse(req.BookID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	input := services.CreateBorrowingInput{BookID: bookID}
	if req.ExpectedReturnDate != "" {
		d, err := time.Parse(dateLayout, req.ExpectedReturnDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expected_return_date must be YYYY-MM-DD"})
			return
		}
		input.ExpectedReturnDate = &d
	}

	borrowing, err := h.borrowings.CreateBorrowing(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, borrowing)
}

func (h *API) listBorrowings(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		userID = &id
	}

	var isActive *bool
	switch strings.ToLower(c.Query("is_active")) {
	case "true":
		v := true
		isActive = &v
	case "false":
		v := false
		isActive = &v
	}

	borrowings, err := h.borrowings.ListBorrowings(actor, userID, isActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowings)
}

func (h *API) getBorrowing(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	borrowing, err := h.borrowings.GetBorrowing(actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

func (h *API) checkReturn(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.borrowings.CheckReturn(actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "You can return the book"})
}

func (h *API) returnBorrowing(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	borrowing, err := h.borrowings.ReturnBorrowing(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowing)
}

// ─── Payments ─────────────────────────────────────────────────────────────────

func (h *API) listPayments(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	payments, err := h.payments.ListPayments(actor,
		models.PaymentType(c.Query("type")),
		models.PaymentStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (h *API) getPayment(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	payment, err := h.payments.GetPayment(actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *API) checkoutSuccess(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	if _, err := h.payments.HandleCheckoutSuccess(c.Request.Context(), sessionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment completed successfully!"})
}

func (h *API) checkoutCancel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": h.payments.HandleCheckoutCancel()})
}

func (h *API) expirePayments(c *gin.Context) {
	count, err := h.payments.ExpireStalePayments(time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": count})
}

// ─── Books ────────────────────────────────────────────────────────────────────

type bookRequest struct {
	Title     string          `json:"title" binding:"required"`
	Author    string          `json:"author" binding:"required"`
	Cover     string          `json:"cover"`
	Inventory int             `json:"inventory" binding:"min=0"`
	DailyFee  decimal.Decimal `json:"daily_fee"`
}

func (r bookRequest) toInput() services.BookInput {
	cover := models.BookCover(r.Cover)
	if r.Cover == "" {
		cover = models.BookCoverSoft
	}
	return services.BookInput{
		Title:     r.Title,
		Author:    r.Author,
		Cover:     cover,
		Inventory: r.Inventory,
		DailyFee:  r.DailyFee,
	}
}

func (h *API) createBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	book, err := h.catalog.CreateBook(req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *API) listBooks(c *gin.Context) {
	books, err := h.catalog.ListBooks()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *API) getBook(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	book, err := h.catalog.GetBook(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *API) updateBook(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	book, err := h.catalog.UpdateBook(id, req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *API) deleteBook(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.catalog.DeleteBook(id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
