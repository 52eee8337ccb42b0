package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"VERSION" default:"dev"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	DatabaseURL   string `envconfig:"DATABASE_URL" default:""`
	MongoURI      string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"project_management"`

	RedisURL string        `envconfig:"REDIS_URL" default:""`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	CloudinaryCloudName string `envconfig:"CLOUDINARY_CLOUD_NAME" default:""`
	CloudinaryAPIKey    string `envconfig:"CLOUDINARY_API_KEY" default:""`
	CloudinaryAPISecret string `envconfig:"CLOUDINARY_API_SECRET" default:""`

	MediaFolder        string        `envconfig:"MEDIA_FOLDER" default:"company-logos"`
	MediaLocalDir      string        `envconfig:"MEDIA_LOCAL_DIR" default:"uploads/media"`
	MediaPublicBaseURL string        `envconfig:"MEDIA_PUBLIC_BASE_URL" default:"http://localhost:8080/media"`
	MediaUploadTimeout time.Duration `envconfig:"MEDIA_UPLOAD_TIMEOUT" default:"30s"`

	UploadTempDir           string `envconfig:"UPLOAD_TEMP_DIR" default:"uploads/temp"`
	MaxLogoBytes            int64  `envconfig:"MAX_LOGO_BYTES" default:"5242880"`
	CompensateOrphanedLogos bool   `envconfig:"COMPENSATE_ORPHANED_LOGOS" default:"true"`

	// APIKeyHash is a bcrypt hash. When set, write endpoints require a
	// matching X-API-Key header.
	APIKeyHash string `envconfig:"API_KEY_HASH" default:""`
}

// CloudinaryEnabled reports whether all Cloudinary credentials are present.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration from environment variables into a Config struct.
// Each env file that exists is loaded first; variables already present in
// the environment take precedence over file values.
func Load(envFiles ...string) (*Config, error) {
	for _, path := range envFiles {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("checking env file %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_DRIVER is postgres")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required when STORAGE_DRIVER is mongo")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q (want %q or %q)", c.StorageDriver, DriverPostgres, DriverMongo)
	}

	if c.MaxLogoBytes <= 0 {
		return errors.New("MAX_LOGO_BYTES must be positive")
	}
	return nil
}
