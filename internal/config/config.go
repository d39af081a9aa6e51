package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config carries everything the process reads from the environment.
// A .env file is honored when present (local development); real deployments
// set the variables directly.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	ServerAddr  string `env:"SERVER_ADDR,default=:8080"`

	// FineMultiplier scales the daily fee for overdue returns.
	FineMultiplier float64 `env:"FINE_MULTIPLIER,default=2"`

	// PaymentTTL is how long a PENDING payment may sit before the sweeper
	// expires it.
	PaymentTTL time.Duration `env:"PAYMENT_TTL,default=1h"`

	// MaxBorrowDays bounds expected_return_date and is the default window
	// when the client omits it.
	MaxBorrowDays int `env:"MAX_BORROW_DAYS,default=60"`

	// SweepSchedule is a cron spec for the payment-expiry sweeper.
	SweepSchedule string `env:"SWEEP_SCHEDULE,default=@every 1h"`

	Stripe   StripeConfig
	Telegram TelegramConfig
}

type StripeConfig struct {
	SecretKey  string `env:"STRIPE_SECRET_KEY,required"`
	SuccessURL string `env:"CHECKOUT_SUCCESS_URL,required"`
	CancelURL  string `env:"CHECKOUT_CANCEL_URL,required"`
}

type TelegramConfig struct {
	Token  string `env:"TELEGRAM_TOKEN"`
	ChatID string `env:"TELEGRAM_CHAT_ID"`
}

// Load reads .env (if any) and decodes the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.FineMultiplier <= 0 {
		return nil, fmt.Errorf("FINE_MULTIPLIER must be positive, got %v", cfg.FineMultiplier)
	}
	if cfg.MaxBorrowDays <= 0 {
		return nil, fmt.Errorf("MAX_BORROW_DAYS must be positive, got %d", cfg.MaxBorrowDays)
	}
	return &cfg, nil
}
