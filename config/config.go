package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Cashfree CashfreeConfig
	Credits  CreditsConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	FrontendURL  string
	BackendURL   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// CashfreeConfig holds gateway credentials. When AppID or SecretKey is empty the
// gateway is treated as unconfigured and purchases fall back to the manual flow.
type CashfreeConfig struct {
	AppID       string
	SecretKey   string
	BaseURL     string // optional override; otherwise sandbox/production is picked from Server.Env
	Timeout     time.Duration
	UPIID       string
	BankDetails string
}

type CreditsConfig struct {
	SignupBonus int64 // free credits granted on registration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getenv("PORT", "4000"),
			Env:          getenv("APP_ENV", "development"),
			FrontendURL:  getenv("FRONTEND_URL", "http://localhost:5173"),
			BackendURL:   getenv("BACKEND_URL", "http://localhost:4000"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             getenv("MYSQL_DSN", "imagify:imagify@tcp(localhost:3306)/imagify?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			Secret: getenv("JWT_SECRET", "change-me-in-production"),
			Expiry: 72 * time.Hour,
			Issuer: "imagify",
		},
		Cashfree: CashfreeConfig{
			AppID:       os.Getenv("CASHFREE_APP_ID"),
			SecretKey:   os.Getenv("CASHFREE_SECRET_KEY"),
			BaseURL:     os.Getenv("CASHFREE_BASE_URL"),
			Timeout:     15 * time.Second,
			UPIID:       getenv("UPI_ID", "your-upi-id@paytm"),
			BankDetails: getenv("BANK_DETAILS", "Contact support for bank details"),
		},
		Credits: CreditsConfig{
			SignupBonus: getenvInt64("SIGNUP_BONUS_CREDITS", 5),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
