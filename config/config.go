package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"portfolio-enginev1/internal/portfolio"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Listeners
	HTTPAddr    string
	MetricsAddr string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisEnabled  bool
	SQLitePath    string
	KeepSnapshots int

	// Engine defaults
	HeatmapCeiling      float64
	PledgeHaircutPct    float64
	PledgeAnnualRatePct float64
	PledgeDays          int

	// Alerts (0 disables the day-change check)
	AlertDayChangePct   float64
	AlertWebhookURL     string
	AlertTelegramToken  string
	AlertTelegramChatID string

	// Broker sync, robfig/cron spec with a seconds field
	SyncSchedule string
	// Extra exchange holidays, comma-separated YYYY-MM-DD
	MarketHolidays string

	LogLevel string
}

// BrokerConfig holds Angel One SmartAPI credentials. Only brokersync needs it.
type BrokerConfig struct {
	BaseURL    string
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", true),
		SQLitePath:    getEnv("SQLITE_PATH", "data/portfolio.db"),
		KeepSnapshots: getEnvInt("KEEP_SNAPSHOTS", 20),

		HeatmapCeiling:      getEnvFloat("HEATMAP_CEILING", portfolio.DefaultIntensityCeiling),
		PledgeHaircutPct:    getEnvFloat("PLEDGE_HAIRCUT_PCT", 10),
		PledgeAnnualRatePct: getEnvFloat("PLEDGE_ANNUAL_RATE_PCT", 8.5),
		PledgeDays:          getEnvInt("PLEDGE_DAYS", 30),

		AlertDayChangePct:   getEnvFloat("ALERT_DAY_CHANGE_PCT", 3),
		AlertWebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
		AlertTelegramToken:  getEnv("ALERT_TELEGRAM_TOKEN", ""),
		AlertTelegramChatID: getEnv("ALERT_TELEGRAM_CHAT_ID", ""),

		// Every 15 minutes through the NSE session, weekdays.
		SyncSchedule:   getEnv("SYNC_SCHEDULE", "0 */15 9-15 * * 1-5"),
		MarketHolidays: getEnv("MARKET_HOLIDAYS", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// PledgeRates returns the configured pledge defaults.
func (c *Config) PledgeRates() portfolio.PledgeRates {
	return portfolio.PledgeRates{
		HaircutRate: c.PledgeHaircutPct,
		AnnualRate:  c.PledgeAnnualRatePct,
		Days:        c.PledgeDays,
	}
}

// LoadBroker reads the ANGEL_* credentials. All but the base URL are required.
func LoadBroker() (*BrokerConfig, error) {
	_ = godotenv.Load()

	bc := &BrokerConfig{
		BaseURL:    getEnv("ANGEL_BASE_URL", "https://apiconnect.angelone.in"),
		APIKey:     os.Getenv("ANGEL_API_KEY"),
		ClientCode: os.Getenv("ANGEL_CLIENT_CODE"),
		Password:   os.Getenv("ANGEL_PASSWORD"),
		TOTPSecret: os.Getenv("ANGEL_TOTP_SECRET"),
	}

	var missing []string
	for key, v := range map[string]string{
		"ANGEL_API_KEY":     bc.APIKey,
		"ANGEL_CLIENT_CODE": bc.ClientCode,
		"ANGEL_PASSWORD":    bc.Password,
		"ANGEL_TOTP_SECRET": bc.TOTPSecret,
	} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("config: required env vars not set: %s", strings.Join(missing, ", "))
	}
	return bc, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
