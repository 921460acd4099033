// Package config loads process settings from the environment, an optional
// .env file and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kidwon/lifetree-app-api/db"
)

type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR,default=:8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	DBMaxConns    int    `env:"DB_MAX_CONNS,default=16"`
	DBTxIsolation string `env:"DB_TX_ISOLATION,default=read committed"`

	JWTSecret   string        `env:"JWT_SECRET"`
	JWTIssuer   string        `env:"JWT_ISSUER,default=lifetree"`
	JWTAudience string        `env:"JWT_AUDIENCE,default=lifetree-app"`
	JWTTTL      time.Duration `env:"JWT_TTL,default=24h"`

	ChallengeTTL       time.Duration `env:"AUTH_CHALLENGE_TTL,default=5m"`
	ChallengeCacheSize int           `env:"AUTH_CHALLENGE_CACHE_SIZE,default=10000"`
	PasskeyRPID        string        `env:"PASSKEY_RP_ID,default=localhost"`
	PasskeyRPName      string        `env:"PASSKEY_RP_NAME,default=LifeTree"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	AdminEmails        string        `env:"ADMIN_EMAILS"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	OutboxRelayInterval time.Duration `env:"OUTBOX_RELAY_INTERVAL,default=5s"`
	OutboxBatchSize     int           `env:"OUTBOX_BATCH_SIZE,default=50"`
	OutboxMaxAttempts   int           `env:"OUTBOX_MAX_ATTEMPTS,default=5"`

	ApplyRatePerSecond float64 `env:"APPLY_RATE_PER_SECOND,default=5"`
	ApplyRateBurst     int     `env:"APPLY_RATE_BURST,default=10"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
}

// Load reads .env (if present), then the flat YAML file at path (if path is
// set), then decodes the environment. Neither file overrides a variable that
// is already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	if path != "" {
		if err := overlayYAML(path); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: decode env: %w", err)
	}
	return cfg, nil
}

// overlayYAML exports every top-level key of the file whose variable is unset.
func overlayYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	for key, value := range values {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(value)); err != nil {
			return fmt.Errorf("config: export %s: %w", name, err)
		}
	}
	return nil
}

// Isolation returns the parsed transaction isolation level.
func (c Config) Isolation() pgx.TxIsoLevel {
	level, err := db.ParseIsolation(c.DBTxIsolation)
	if err != nil {
		return pgx.ReadCommitted
	}
	return level
}

// AdminEmailList splits ADMIN_EMAILS on commas.
func (c Config) AdminEmailList() []string {
	var out []string
	for _, e := range strings.Split(c.AdminEmails, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks the settings the server cannot start without. The database
// URL is only required for the postgres store.
func (c Config) Validate(requireDatabase bool) error {
	var problems []string
	if strings.TrimSpace(c.JWTSecret) == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if requireDatabase && c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if _, err := db.ParseIsolation(c.DBTxIsolation); err != nil {
		problems = append(problems, err.Error())
	}
	if c.JWTTTL <= 0 {
		problems = append(problems, "JWT_TTL must be positive")
	}
	if c.OutboxRelayInterval <= 0 {
		problems = append(problems, "OUTBOX_RELAY_INTERVAL must be positive")
	}
	if c.ApplyRatePerSecond <= 0 || c.ApplyRateBurst <= 0 {
		problems = append(problems, "APPLY_RATE_PER_SECOND and APPLY_RATE_BURST must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
