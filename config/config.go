package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds every tunable policy in one place so that tolerance windows,
// rates and limits are never repeated as magic constants.
type Config struct {
	Host string
	Port string

	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBAutoMigrate bool

	RedisAddr     string
	RedisPassword string

	TonConfigURL     string // liteserver global config
	TreasuryAddress  string
	TreasuryMnemonic string // dev backend; production proxies to an external custodian
	JettonMaster     string
	JettonDecimals   int
	ConfirmAttempts  int
	ConfirmInterval  time.Duration

	BimPerTon    decimal.Decimal
	BimPerJetton decimal.Decimal

	DepositTolerance decimal.Decimal
	IntentExpiry     time.Duration

	MinTonWithdrawal    decimal.Decimal
	MinJettonWithdrawal decimal.Decimal
	DailyTonCap         decimal.Decimal
	DailyJettonCap      decimal.Decimal

	ReferralPercent    decimal.Decimal
	ReferralActiveDays int

	PayoutWorkers        int
	DepositWorkers       int
	MaxJobAttempts       int
	RetryBackoffBase     time.Duration
	DepositScanInterval  time.Duration
	IntentSweepInterval  time.Duration
	ReaderBatchSize      int

	AdminJWTSecret string
	WebhookSecret  string
	WebhookMaxSkew time.Duration

	MintNotifyURL string
}

func Load() *Config {
	return &Config{
		Host: getEnv("HOST", "127.0.0.1"),
		Port: getEnv("PORT", "3000"),

		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", ""),
		DBName:        getEnv("DB_NAME", "bimbridge"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		TonConfigURL:     getEnv("TON_CONFIG_URL", "https://ton.org/global.config.json"),
		TreasuryAddress:  getEnv("TREASURY_ADDRESS", ""),
		TreasuryMnemonic: getEnv("TREASURY_MNEMONIC", ""),
		JettonMaster:     getEnv("JETTON_MASTER_ADDRESS", ""),
		JettonDecimals:   getEnvInt("JETTON_DECIMALS", 9),
		ConfirmAttempts:  getEnvInt("CONFIRM_ATTEMPTS", 20),
		ConfirmInterval:  getEnvDuration("CONFIRM_INTERVAL", 3*time.Second),

		BimPerTon:    getEnvDecimal("BIM_PER_TON", "200"),
		BimPerJetton: getEnvDecimal("BIM_PER_JETTON", "1"),

		DepositTolerance: getEnvDecimal("DEPOSIT_TOLERANCE", "0.001"),
		IntentExpiry:     getEnvDuration("INTENT_EXPIRY", 24*time.Hour),

		MinTonWithdrawal:    getEnvDecimal("MIN_TON_WITHDRAWAL", "0.1"),
		MinJettonWithdrawal: getEnvDecimal("MIN_JETTON_WITHDRAWAL", "10"),
		DailyTonCap:         getEnvDecimal("DAILY_TON_CAP", "10"),
		DailyJettonCap:      getEnvDecimal("DAILY_JETTON_CAP", "1000"),

		ReferralPercent:    getEnvDecimal("REFERRAL_PERCENT", "5"),
		ReferralActiveDays: getEnvInt("REFERRAL_ACTIVE_DAYS", 365),

		PayoutWorkers:       getEnvInt("PAYOUT_WORKERS", 2),
		DepositWorkers:      getEnvInt("DEPOSIT_WORKERS", 8),
		MaxJobAttempts:      getEnvInt("MAX_JOB_ATTEMPTS", 5),
		RetryBackoffBase:    getEnvDuration("RETRY_BACKOFF_BASE", 5*time.Second),
		DepositScanInterval: getEnvDuration("DEPOSIT_SCAN_INTERVAL", 30*time.Second),
		IntentSweepInterval: getEnvDuration("INTENT_SWEEP_INTERVAL", 10*time.Minute),
		ReaderBatchSize:     getEnvInt("READER_BATCH_SIZE", 50),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		WebhookMaxSkew: getEnvDuration("WEBHOOK_MAX_SKEW", 5*time.Minute),

		MintNotifyURL: getEnv("MINT_NOTIFY_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
