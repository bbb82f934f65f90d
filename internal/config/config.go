package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	HTTPAddr        string
	AppMode         string
	StorageDriver   string
	DBDSN           string
	RedisURL        string
	SignupStateTTL  time.Duration
	AttemptIssuer   string
	AttemptSecret   string
	AttemptTTL      time.Duration
	InternalToken   string
	CORSOrigins     []string
	ArtifactDir     string
	SMTP            SMTPConfig
	Account         AccountDefaults
	CredentialTries int
	RateLimitRPS    float64
	RateLimitBurst  int
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port != ""
}

type AccountDefaults struct {
	StartingBalance decimal.Decimal
	Leverage        int
	Currency        string
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	var c Config
	var missing []string

	c.HTTPAddr = getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.AppMode = strings.ToLower(strings.TrimSpace(getenv("APP_MODE")))
	if c.AppMode == "" {
		c.AppMode = "development"
	}
	if c.AppMode != "development" && c.AppMode != "production" {
		return c, errors.New("invalid APP_MODE: use development or production")
	}

	c.StorageDriver = strings.ToLower(strings.TrimSpace(getenv("STORAGE_DRIVER")))
	if c.StorageDriver == "" {
		c.StorageDriver = StorageDriverPostgres
	}
	switch c.StorageDriver {
	case StorageDriverPostgres:
		c.DBDSN = getenv("DB_DSN")
		if c.DBDSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case StorageDriverMemory:
		if c.AppMode == "production" {
			return c, errors.New("STORAGE_DRIVER=memory is not allowed in production")
		}
	default:
		return c, errors.New("invalid STORAGE_DRIVER: use postgres or memory")
	}

	c.RedisURL = strings.TrimSpace(getenv("REDIS_URL"))
	ttl, err := durationEnv(getenv, "SIGNUP_STATE_TTL", 0)
	if err != nil {
		return c, err
	}
	c.SignupStateTTL = ttl

	c.AttemptIssuer = getenv("ATTEMPT_ISSUER")
	if c.AttemptIssuer == "" {
		c.AttemptIssuer = "onboarding"
	}
	c.AttemptSecret = getenv("ATTEMPT_SECRET")
	if c.AttemptSecret == "" {
		missing = append(missing, "ATTEMPT_SECRET")
	}
	attemptTTL, err := durationEnv(getenv, "ATTEMPT_TTL", 72*time.Hour)
	if err != nil {
		return c, err
	}
	c.AttemptTTL = attemptTTL

	c.InternalToken = getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}

	c.CORSOrigins = splitList(getenv("CORS_ORIGINS"))
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	c.ArtifactDir = getenv("ARTIFACT_DIR")
	if c.ArtifactDir == "" {
		c.ArtifactDir = "./data/artifacts"
	}

	c.SMTP = SMTPConfig{
		Host:     strings.TrimSpace(getenv("SMTP_HOST")),
		Port:     strings.TrimSpace(getenv("SMTP_PORT")),
		User:     getenv("SMTP_USER"),
		Password: getenv("SMTP_PASS"),
		From:     getenv("MAIL_FROM"),
	}
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.User
	}
	if c.AppMode == "production" && !c.SMTP.Enabled() {
		missing = append(missing, "SMTP_HOST", "SMTP_PORT")
	}

	balanceRaw := strings.TrimSpace(getenv("ACCOUNT_STARTING_BALANCE"))
	if balanceRaw == "" {
		balanceRaw = "0"
	}
	balance, err := decimal.NewFromString(balanceRaw)
	if err != nil {
		return c, errors.New("invalid ACCOUNT_STARTING_BALANCE")
	}
	if balance.IsNegative() {
		return c, errors.New("ACCOUNT_STARTING_BALANCE must not be negative")
	}
	c.Account.StartingBalance = balance
	leverage, err := intEnv(getenv, "ACCOUNT_DEFAULT_LEVERAGE", 100)
	if err != nil {
		return c, err
	}
	c.Account.Leverage = leverage
	c.Account.Currency = strings.ToUpper(strings.TrimSpace(getenv("ACCOUNT_CURRENCY")))
	if c.Account.Currency == "" {
		c.Account.Currency = "USD"
	}

	tries, err := intEnv(getenv, "CREDENTIAL_MAX_ATTEMPTS", 5)
	if err != nil {
		return c, err
	}
	if tries < 1 {
		return c, errors.New("CREDENTIAL_MAX_ATTEMPTS must be at least 1")
	}
	c.CredentialTries = tries

	rps := strings.TrimSpace(getenv("RATE_LIMIT_RPS"))
	if rps == "" {
		c.RateLimitRPS = 10
	} else {
		v, err := strconv.ParseFloat(rps, 64)
		if err != nil || v <= 0 {
			return c, errors.New("invalid RATE_LIMIT_RPS")
		}
		c.RateLimitRPS = v
	}
	burst, err := intEnv(getenv, "RATE_LIMIT_BURST", 30)
	if err != nil {
		return c, err
	}
	c.RateLimitBurst = burst

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func durationEnv(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func intEnv(getenv func(string) string, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
