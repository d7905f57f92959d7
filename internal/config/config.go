// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// storage selection, the business limits of the FREE and PRO tiers, premium
// durations, per-country prices and observability switches.
//
// Business constants are carried in QuotaConfig, PremiumConfig and Prices and
// injected into the services; nothing in the service layer reads the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StorageConfig selects the database and the optional Redis instance.
type StorageConfig struct {
	Driver      string // DB_DRIVER: sqlite|postgres
	DBPath      string // DB_PATH for sqlite
	DatabaseURL string // DATABASE_URL for postgres
	RedisURL    string // REDIS_URL, empty disables Redis
}

// TierLimits are the daily allowances of one tier.
type TierLimits struct {
	AdsPerDay    int
	PhotosPerDay int
	PinsPerDay   int // PRO only; FREE pins are governed by the cooldown
}

// QuotaConfig holds the FREE and PRO allowances.
type QuotaConfig struct {
	Free            TierLimits
	Pro             TierLimits
	FreePinCooldown time.Duration // one pin per cooldown for FREE
	PinDuration     time.Duration // how long a pin stays on top
}

// PremiumConfig holds premium grant durations and the female-bonus rule.
type PremiumConfig struct {
	TrialDuration   time.Duration
	ToggleDuration  time.Duration
	ReferralReward  time.Duration
	BonusDuration   time.Duration
	BonusGender     domain.Gender // first-ad gender that earns the bonus
	RevokingGender  domain.Gender // later-ad gender that contradicts it
	StatusCacheTTL  time.Duration
	StatusCacheSize int
	UserTokenSecret string
	ReferenceOffset time.Duration // "today" is computed in UTC+offset
}

// Price is the monthly PRO price in one country.
type Price struct {
	Amount   decimal.Decimal
	Currency string // ISO code
	Symbol   string
}

// Prices maps an upper-case country code to its price; "*" is the fallback.
type Prices map[string]Price

// For returns the price of country, or the fallback.
func (p Prices) For(country string) Price {
	if pr, ok := p[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return pr
	}
	return p["*"]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes
	DefaultLocale  string // ru|en|kk

	// Storage
	Storage StorageConfig

	// Business rules
	Quota   QuotaConfig
	Premium PremiumConfig
	Prices  Prices

	// Telegram
	TelegramBotToken string        // TELEGRAM_BOT_TOKEN, enables init-data auth
	InitDataMaxAge   time.Duration // TELEGRAM_INITDATA_MAX_AGE

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Background jobs
	SweepSchedule string // cron spec for the premium expiry sweeper

	// Observability
	OTEL OTELConfig
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding the real environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),
		DefaultLocale:  strings.ToLower(getenv("DEFAULT_LOCALE", "ru")),

		Storage: StorageConfig{
			Driver:      strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DBPath:      getenv("DB_PATH", "app.db"),
			DatabaseURL: getenv("DATABASE_URL", ""),
			RedisURL:    getenv("REDIS_URL", ""),
		},

		Quota: QuotaConfig{
			Free: TierLimits{
				AdsPerDay:    getint("FREE_ADS_PER_DAY", 1),
				PhotosPerDay: getint("FREE_PHOTOS_PER_DAY", 5),
			},
			Pro: TierLimits{
				AdsPerDay:    getint("PRO_ADS_PER_DAY", 3),
				PhotosPerDay: getint("PRO_PHOTOS_PER_DAY", 999999),
				PinsPerDay:   getint("PRO_PINS_PER_DAY", 3),
			},
			FreePinCooldown: getdur("FREE_PIN_COOLDOWN", 72*time.Hour),
			PinDuration:     getdur("PIN_DURATION", time.Hour),
		},

		Premium: PremiumConfig{
			TrialDuration:   getdur("TRIAL_DURATION", 7*time.Hour),
			ToggleDuration:  getdur("TOGGLE_PREMIUM_DURATION", 30*24*time.Hour),
			ReferralReward:  getdur("REFERRAL_REWARD_DURATION", 30*24*time.Hour),
			BonusDuration:   getdur("FEMALE_BONUS_DURATION", 365*24*time.Hour),
			StatusCacheTTL:  getdur("STATUS_CACHE_TTL", 30*time.Second),
			StatusCacheSize: getint("STATUS_CACHE_SIZE", 10000),
			UserTokenSecret: getenv("USER_TOKEN_SECRET", ""),
			ReferenceOffset: getdur("REFERENCE_UTC_OFFSET", domain.DefaultReferenceOffset),
		},

		// Telegram
		TelegramBotToken: getenv("TELEGRAM_BOT_TOKEN", ""),
		InitDataMaxAge:   getdur("TELEGRAM_INITDATA_MAX_AGE", 24*time.Hour),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		SweepSchedule: getenv("SWEEP_SCHEDULE", "@every 10m"),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-anon-ads-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	var ok bool
	if cfg.Premium.BonusGender, ok = domain.ParseGender(getenv("FEMALE_BONUS_GENDER", "female")); !ok {
		return cfg, errors.New("FEMALE_BONUS_GENDER must be one of: female, male, other")
	}
	if cfg.Premium.RevokingGender, ok = domain.ParseGender(getenv("FEMALE_BONUS_REVOKING_GENDER", "male")); !ok {
		return cfg, errors.New("FEMALE_BONUS_REVOKING_GENDER must be one of: female, male, other")
	}

	prices, err := parsePrices(getenv("PRICES", "KZ:499:KZT:₸,RU:99:RUB:₽,*:2:USD:$"))
	if err != nil {
		return cfg, err
	}
	cfg.Prices = prices

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Storage.Driver == "postgresql" {
		cfg.Storage.Driver = "postgres"
	}
	switch cfg.DefaultLocale {
	case "ru", "en", "kk":
	default:
		cfg.DefaultLocale = "ru"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if err := validateQuota(cfg.Quota); err != nil {
		return cfg, err
	}
	if err := validatePremium(cfg.Premium); err != nil {
		return cfg, err
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.InitDataMaxAge < 0 {
		return cfg, errors.New("TELEGRAM_INITDATA_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func validateQuota(q QuotaConfig) error {
	if q.Free.AdsPerDay < 0 || q.Free.PhotosPerDay < 0 || q.Pro.AdsPerDay < 0 || q.Pro.PhotosPerDay < 0 || q.Pro.PinsPerDay < 0 {
		return errors.New("tier limits must be >= 0")
	}
	if q.FreePinCooldown <= 0 || q.PinDuration <= 0 {
		return errors.New("FREE_PIN_COOLDOWN and PIN_DURATION must be positive durations")
	}
	return nil
}

func validatePremium(p PremiumConfig) error {
	if p.TrialDuration <= 0 || p.ToggleDuration <= 0 || p.ReferralReward <= 0 || p.BonusDuration <= 0 {
		return errors.New("premium durations must be positive")
	}
	if p.BonusGender == p.RevokingGender {
		return errors.New("FEMALE_BONUS_GENDER and FEMALE_BONUS_REVOKING_GENDER must differ")
	}
	if p.StatusCacheTTL < 0 || p.StatusCacheSize < 0 {
		return errors.New("STATUS_CACHE_TTL and STATUS_CACHE_SIZE must be >= 0")
	}
	if p.ReferenceOffset <= -24*time.Hour || p.ReferenceOffset >= 24*time.Hour {
		return errors.New("REFERENCE_UTC_OFFSET must be within (-24h, 24h)")
	}
	return nil
}

// parsePrices reads "CC:amount:ISO:symbol" entries separated by commas.
// The symbol is optional. A "*" entry is required as the fallback.
func parsePrices(s string) (Prices, error) {
	out := Prices{}
	for _, entry := range splitCSV(s) {
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("PRICES entry %q must be CC:amount:ISO[:symbol]", entry)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil || amount.IsNegative() {
			return nil, fmt.Errorf("PRICES entry %q has an invalid amount", entry)
		}
		p := Price{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(parts[2]))}
		if len(parts) == 4 {
			p.Symbol = strings.TrimSpace(parts[3])
		}
		out[strings.ToUpper(strings.TrimSpace(parts[0]))] = p
	}
	if _, ok := out["*"]; !ok {
		return nil, errors.New("PRICES must contain a '*' fallback entry")
	}
	return out, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
