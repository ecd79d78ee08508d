package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Redis      RedisConfig      `yaml:"redis"`
	PubSub     PubSubConfig     `yaml:"pubsub"`
	Batch      BatchConfig      `yaml:"batch"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      int      `yaml:"rate_limit"` // requests per minute per client
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // postgres, sqlite
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	ApplicationName  string        `yaml:"application_name"`
}

type StorageConfig struct {
	Provider   string      `yaml:"provider"` // minio, gcs
	Bucket     string      `yaml:"bucket"`
	ExpireDays int         `yaml:"expire_days"`
	Minio      MinioConfig `yaml:"minio"`
	GCS        GCSConfig   `yaml:"gcs"`
}

type MinioConfig struct {
	Endpoint       string `yaml:"endpoint"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	AdminAccessKey string `yaml:"admin_access_key"`
	AdminSecretKey string `yaml:"admin_secret_key"`
	UseSSL         bool   `yaml:"use_ssl"`
}

type GCSConfig struct {
	CredentialsFile      string `yaml:"credentials_file"`
	AdminCredentialsFile string `yaml:"admin_credentials_file"`
	PublicBaseURL        string `yaml:"public_base_url"`
}

type ExtractionConfig struct {
	APIURL         string        `yaml:"api_url"`
	APIToken       string        `yaml:"api_token"`
	ModelVersion   string        `yaml:"model_version"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxAttempts    int           `yaml:"max_attempts"`
	ReleaseTimeout time.Duration `yaml:"release_timeout"`
}

type NormalizerConfig struct {
	PhoneRegion string `yaml:"phone_region"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type PubSubConfig struct {
	ProjectID       string `yaml:"project_id"`
	Topic           string `yaml:"topic"`
	CredentialsFile string `yaml:"credentials_file"`
}

type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// Load reads the YAML file at path, applies defaults and then overlays
// environment variables. A .env file in the working directory is loaded first
// when present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 120
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 32
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "contracts.db"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MaxConnLifetime == 0 {
		c.Database.MaxConnLifetime = time.Hour
	}
	if c.Database.ApplicationName == "" {
		c.Database.ApplicationName = "contractledger"
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = "minio"
	}
	if c.Storage.ExpireDays == 0 {
		c.Storage.ExpireDays = 7
	}
	if c.Extraction.ModelVersion == "" {
		c.Extraction.ModelVersion = "vlm"
	}
	if c.Extraction.PollInterval == 0 {
		c.Extraction.PollInterval = time.Second
	}
	if c.Extraction.MaxAttempts == 0 {
		c.Extraction.MaxAttempts = 60
	}
	if c.Extraction.ReleaseTimeout == 0 {
		c.Extraction.ReleaseTimeout = 10 * time.Second
	}
	if c.Normalizer.PhoneRegion == "" {
		c.Normalizer.PhoneRegion = "US"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Second
	}
	if c.Batch.Workers == 0 {
		c.Batch.Workers = 4
	}
}

// applyEnv lets the environment override secrets and connection settings.
func (c *Config) applyEnv() {
	envString("PORT", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	})
	envString("LOG_LEVEL", func(v string) { c.Log.Level = v })
	envString("DATABASE_DRIVER", func(v string) { c.Database.Driver = v })
	envString("DATABASE_URL", func(v string) { c.Database.DSN = v })
	envString("STORAGE_PROVIDER", func(v string) { c.Storage.Provider = v })
	envString("STORAGE_BUCKET", func(v string) { c.Storage.Bucket = v })
	envString("MINIO_ACCESS_KEY", func(v string) { c.Storage.Minio.AccessKey = v })
	envString("MINIO_SECRET_KEY", func(v string) { c.Storage.Minio.SecretKey = v })
	envString("MINIO_ADMIN_ACCESS_KEY", func(v string) { c.Storage.Minio.AdminAccessKey = v })
	envString("MINIO_ADMIN_SECRET_KEY", func(v string) { c.Storage.Minio.AdminSecretKey = v })
	envString("GOOGLE_APPLICATION_CREDENTIALS", func(v string) { c.Storage.GCS.CredentialsFile = v })
	envString("EXTRACTION_API_URL", func(v string) { c.Extraction.APIURL = v })
	envString("EXTRACTION_API_TOKEN", func(v string) { c.Extraction.APIToken = v })
	envString("REDIS_ADDRESS", func(v string) { c.Redis.Addr = v })
	envString("REDIS_PASSWORD", func(v string) { c.Redis.Password = v })
	envString("PUBSUB_PROJECT_ID", func(v string) { c.PubSub.ProjectID = v })
	envString("PUBSUB_TOPIC", func(v string) { c.PubSub.Topic = v })
}

func envString(key string, set func(string)) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		set(v)
	}
}

// Validate reports every missing or invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	switch c.Storage.Provider {
	case "minio":
		if c.Storage.Minio.Endpoint == "" {
			errs = append(errs, errors.New("storage.minio.endpoint is required"))
		}
	case "gcs":
	default:
		errs = append(errs, fmt.Errorf("storage.provider: unsupported %q", c.Storage.Provider))
	}

	if c.Extraction.APIURL == "" {
		errs = append(errs, errors.New("extraction.api_url is required"))
	}
	if c.Extraction.MaxAttempts < 1 {
		errs = append(errs, errors.New("extraction.max_attempts must be positive"))
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id is required when a topic is set"))
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, errors.New("batch.workers must be positive"))
	}

	return errors.Join(errs...)
}
