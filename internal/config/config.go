package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from NONNA_ prefixed environment variables,
// e.g. NONNA_PORT, NONNA_JWT_SECRET, NONNA_BLOB_BACKEND.
type Config struct {
	Port      int    `envconfig:"PORT" default:"8000"`
	DBPath    string `envconfig:"DB_PATH" default:"nonna.db"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	BaseURL   string `envconfig:"BASE_URL" default:"http://localhost:8000"`

	JWTSecret  string        `envconfig:"JWT_SECRET"`
	AccessTTL  time.Duration `envconfig:"ACCESS_TTL" default:"1h"`
	RefreshTTL time.Duration `envconfig:"REFRESH_TTL" default:"168h"`

	// LoginLimit is the number of login attempts per client IP per LoginWindow.
	LoginLimit  int           `envconfig:"LOGIN_LIMIT" default:"10"`
	LoginWindow time.Duration `envconfig:"LOGIN_WINDOW" default:"1m"`

	// BlobBackend is "disk" or "s3".
	BlobBackend    string `envconfig:"BLOB_BACKEND" default:"disk"`
	MediaDir       string `envconfig:"MEDIA_DIR" default:"media"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"20971520"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	// S3PublicURL prefixes object keys in returned URLs. Defaults to
	// endpoint/bucket.
	S3PublicURL string `envconfig:"S3_PUBLIC_URL"`

	// PostmarkToken enables membership and share notices when set.
	PostmarkToken string `envconfig:"POSTMARK_TOKEN"`
	EmailFrom     string `envconfig:"EMAIL_FROM" default:"nonna@localhost"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads the environment without validating it. Commands that only
// touch the database use it so they do not need a JWT secret.
func Parse() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("NONNA", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("NONNA_JWT_SECRET is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid NONNA_PORT: %d", c.Port)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	switch strings.ToLower(c.BlobBackend) {
	case "disk":
		if c.MediaDir == "" {
			return fmt.Errorf("NONNA_MEDIA_DIR is required for the disk blob backend")
		}
	case "s3":
		if c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("NONNA_S3_BUCKET, NONNA_S3_ACCESS_KEY and NONNA_S3_SECRET_KEY are required for the s3 blob backend")
		}
	default:
		return fmt.Errorf("unsupported NONNA_BLOB_BACKEND: %s", c.BlobBackend)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
