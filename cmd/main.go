package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"booklib/internal/config"
	"booklib/internal/gateway"
	"booklib/internal/handlers"
	"booklib/internal/notify"
	"booklib/internal/repositories"
	"booklib/internal/services"
	"booklib/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get generic DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	borrowingRepo := repositories.NewBorrowingRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)

	checkout := gateway.NewStripeGateway(cfg.Stripe.SecretKey)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		notifier = notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
	}

	settings := services.Settings{
		FineMultiplier:     decimal.NewFromFloat(cfg.FineMultiplier),
		MaxBorrowDays:      cfg.MaxBorrowDays,
		PaymentTTL:         cfg.PaymentTTL,
		Currency:           "usd",
		CheckoutSuccessURL: cfg.Stripe.SuccessURL,
		CheckoutCancelURL:  cfg.Stripe.CancelURL,
	}

	borrowingService := services.NewBorrowingService(
		db, userRepo, bookRepo, borrowingRepo, paymentRepo, checkout, notifier, settings)
	paymentService := services.NewPaymentService(
		borrowingRepo, paymentRepo, checkout, notifier, settings)
	catalogService := services.NewCatalogService(bookRepo)

	sw := sweeper.New(paymentService, cfg.SweepSchedule)
	if err := sw.Start(); err != nil {
		log.Fatalf("failed to start payment sweeper: %v", err)
	}
	defer sw.Stop()

	router := gin.Default()
	handlers.RegisterRoutes(router, borrowingService, paymentService, catalogService)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Infof("Starting server on %s", cfg.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
