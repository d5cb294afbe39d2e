// Package config loads process settings from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"

	"github.com/anarcoiris/FaceGUI/internal/clients"
)

// Face holds the default face resource.
type Face struct {
	Endpoint          string        `env:"FACE_ENDPOINT"`
	AuthMode          string        `env:"FACE_AUTH_MODE" envDefault:"ApiKey"`
	Key               string        `env:"FACE_KEY"`
	TrainPollInterval time.Duration `env:"FACE_TRAIN_POLL_INTERVAL" envDefault:"5s"`
	ProbeTestURL      string        `env:"FACE_PROBE_TEST_URL"`
	ProbeFallbackURL  string        `env:"FACE_PROBE_FALLBACK_URL"`
}

// Blob configures the S3-compatible image store.
type Blob struct {
	Bucket    string `env:"BLOB_BUCKET"`
	Region    string `env:"BLOB_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"BLOB_ENDPOINT"`
	AccessKey string `env:"BLOB_ACCESS_KEY"`
	SecretKey string `env:"BLOB_SECRET_KEY"`
	Prefix    string `env:"BLOB_PREFIX" envDefault:"faces/"`
}

// Enabled reports whether a bucket is configured.
func (b Blob) Enabled() bool {
	return b.Bucket != ""
}

// Config is the full process configuration.
type Config struct {
	Face Face
	Blob Blob

	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"dev-secret"`
	JWTAudience     string        `env:"JWT_AUDIENCE"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	DatabaseDriver  string        `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseDSN     string        `env:"DATABASE_DSN" envDefault:"facegui.sqlite"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	ProbeCacheTTL   time.Duration `env:"PROBE_CACHE_TTL" envDefault:"10m"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(&cfg.Face); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.Blob); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FaceConfiguration returns the default face configuration. It is not
// validated here; the client factory does that when the configuration is used.
func (c *Config) FaceConfiguration() clients.Configuration {
	return clients.Configuration{
		Endpoint: c.Face.Endpoint,
		AuthMode: clients.AuthMode(c.Face.AuthMode),
		Key:      c.Face.Key,
	}
}
