package config

import (
	"os"
	"strconv"
	"time"

	"drops/internal/models"
)

// Config holds the engine's runtime settings.
type Config struct {
	Addr           string
	EscrowAccount  string
	FeeReceiver    string
	AdminAddress   string
	PlatformFeeBps int
	PayoutMode     models.PayoutMode
	OracleDelay    time.Duration
	StrandedAfter  time.Duration
}

// FromEnv reads DROPS_* environment variables (with defaults).
func FromEnv() Config {
	mode := models.PayoutTiered
	if getEnv("DROPS_PAYOUT_MODE", "tiered") == string(models.PayoutEqual) {
		mode = models.PayoutEqual
	}
	return Config{
		Addr:           getEnv("DROPS_ADDR", ":8080"),
		EscrowAccount:  getEnv("DROPS_ESCROW_ACCOUNT", "escrow"),
		FeeReceiver:    getEnv("DROPS_FEE_RECEIVER", "platform"),
		AdminAddress:   getEnv("DROPS_ADMIN_ADDRESS", "admin"),
		PlatformFeeBps: getEnvAsInt("DROPS_PLATFORM_FEE_BPS", 250),
		PayoutMode:     mode,
		OracleDelay:    time.Duration(getEnvAsInt("DROPS_ORACLE_DELAY_MS", 2000)) * time.Millisecond,
		StrandedAfter:  time.Duration(getEnvAsInt("DROPS_STRANDED_AFTER_MIN", 10)) * time.Minute,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
