// Package config loads server and CLI settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":50051"`

	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"`
	DBDSN    string `env:"DB_DSN" envDefault:"root:root@tcp(localhost:3306)/inventory?parseTime=true"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	BlobURL       string `env:"BLOB_URL" envDefault:"file:///var/lib/easy-inventory/photos?create_dir=true"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	JWTSecret     string        `env:"JWT_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	CookieName    string        `env:"COOKIE_NAME" envDefault:"inventory_session"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"false"`
	// CORSOrigins is empty by default, which serves same-origin callers only.
	CORSOrigins   []string      `env:"CORS_ORIGINS" envSeparator:","`

	ReportDir  string `env:"REPORT_DIR" envDefault:"reports"`
	ReportIcon string `env:"REPORT_ICON"`

	MaxPhotoBytes    int64         `env:"MAX_PHOTO_BYTES" envDefault:"10485760"`
	CleanupWorkers   int           `env:"CLEANUP_WORKERS" envDefault:"4"`
	CleanupQueueSize int           `env:"CLEANUP_QUEUE_SIZE" envDefault:"1000"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	OTelEndpoint string `env:"OTEL_ENDPOINT" envDefault:"http://localhost:4318"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
}

const envPrefix = "INVENTORY_"

// Load reads .env files (if present) into the process environment, then
// parses INVENTORY_* variables. Variables already set are not overridden.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: envPrefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	}
	if c.CleanupWorkers < 1 {
		return errors.New("config: CLEANUP_WORKERS must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("config: SWEEP_INTERVAL must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	return nil
}
