package app

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validator "gopkg.in/go-playground/validator.v9"
)

// Config is shared by the edge and the worker.
type Config struct {
	Env                 string        `validate:"required"`
	LogLevel            string        `validate:"oneof=debug info warn error"`
	LogFormat           string        `validate:"oneof=json text"`
	ShutdownGracePeriod time.Duration `validate:"gt=0"`

	// ScriptsDir is the template root.
	ScriptsDir string `validate:"required"`

	// StorageRoot is only read by the fs driver.
	StorageDriver    string `validate:"oneof=fs memory"`
	StorageRoot      string
	PayloadContainer string `validate:"required"`
	OutputContainer  string `validate:"required"`

	QueueDriver string `validate:"oneof=redis memory"`
	RedisURL    string
	QueueName   string `validate:"required"`

	// DataDriver and DataDSN open the handle handed to data plugins. An
	// empty DSN means plugins get no handle.
	DataDriver string `validate:"oneof=pgx sqlite"`
	DataDSN    string

	FetchConcurrency int `validate:"min=1"`

	Blob BlobConfig
}

// BlobConfig is the client-credentials grant used by plugins that read
// from blob storage. An empty TokenURL means anonymous access.
type BlobConfig struct {
	TokenURL     string `validate:"omitempty,url"`
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// EdgeConfig configures cmd/edge.
type EdgeConfig struct {
	Config

	Port     int           `validate:"min=1,max=65535"`
	CacheTTL time.Duration `validate:"gt=0"`

	// LinkSecret is the decoded HMAC_SECRET_B64. When unset a random
	// secret is generated, so links only verify on the edge that issued
	// them.
	LinkSecret []byte

	Auth0Domain    string
	Auth0Audience  string
	AzureTenantID  string
	AzureAudience  string
	IssuersFile    string
	JWKSTTL        time.Duration `validate:"gt=0"`
	JWKSTimeout    time.Duration `validate:"gt=0"`
	RequiredScope  string
	RequiredRole   string
	TokenLeeway    time.Duration `validate:"gte=0"`
	CompressMinLen int           `validate:"gte=0"`
}

// WorkerConfig configures cmd/worker.
type WorkerConfig struct {
	Config

	Concurrency     int           `validate:"min=1"`
	MaxDelivery     int           `validate:"min=1"`
	AuditTable      string        `validate:"required"`
	AuditDriver     string        `validate:"oneof=sqlite postgres"`
	AuditDSN        string        `validate:"required"`
	LockDuration    time.Duration `validate:"gt=0"`
	MaxLockRenewal  time.Duration `validate:"gte=0"`
	ReapSchedule    string        `validate:"required"`
	ReceiveWait     time.Duration `validate:"gt=0"`
	RenderTimeout   time.Duration `validate:"gte=0"`
	ChromePath      string
	ChromeNoSandbox bool
	HealthPort      int `validate:"min=1,max=65535"`
}

func loadConfig() Config {
	return Config{
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		ScriptsDir:          getEnvOrDefault("SCRIPTS_DIR", "/opt/app/scripts"),
		StorageDriver:       getEnvOrDefault("STORAGE_DRIVER", "fs"),
		StorageRoot:         getEnvOrDefault("STORAGE_ROOT", "./data"),
		PayloadContainer:    getEnvOrDefault("PAYLOAD_CONTAINER", "pdfpayloads"),
		OutputContainer:     getEnvOrDefault("OUTPUT_CONTAINER", "pdfs"),
		QueueDriver:         getEnvOrDefault("QUEUE_DRIVER", "redis"),
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		QueueName:           getEnvOrDefault("SB_QUEUE", "pdf-jobs"),
		DataDriver:          getEnvOrDefault("REPORT_DATA_DRIVER", "pgx"),
		DataDSN:             os.Getenv("REPORT_DATA_DSN"),
		FetchConcurrency:    getEnvIntOrDefault("FETCH_CONCURRENCY", 4),
		Blob: BlobConfig{
			TokenURL:     os.Getenv("BLOB_TOKEN_URL"),
			ClientID:     os.Getenv("BLOB_CLIENT_ID"),
			ClientSecret: os.Getenv("BLOB_CLIENT_SECRET"),
			Scopes:       splitList(getEnvOrDefault("BLOB_SCOPES", "https://storage.azure.com/.default")),
		},
	}
}

// LoadEdgeConfig reads the edge configuration from the environment.
func LoadEdgeConfig() (EdgeConfig, error) {
	cfg := EdgeConfig{
		Config:         loadConfig(),
		Port:           getEnvIntOrDefault("PORT", 8080),
		CacheTTL:       time.Duration(getEnvIntOrDefault("PDF_CACHE_TTL", 30)) * time.Second,
		Auth0Domain:    os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:  getEnvOrDefault("AUTH0_AUDIENCE", os.Getenv("AUTH0_API_AUDIENCE")),
		AzureTenantID:  os.Getenv("AZURE_TENANT_ID"),
		AzureAudience:  getEnvOrDefault("AZURE_AD_AUDIENCE", os.Getenv("AZ_AUDIENCE")),
		IssuersFile:    os.Getenv("AUTH_ISSUERS_FILE"),
		JWKSTTL:        getEnvDurationOrDefault("JWKS_TTL", 12*time.Hour),
		JWKSTimeout:    getEnvDurationOrDefault("JWKS_TIMEOUT", 3*time.Second),
		RequiredScope:  os.Getenv("REQUIRED_SCOPE"),
		RequiredRole:   os.Getenv("REQUIRED_ROLE"),
		TokenLeeway:    getEnvDurationOrDefault("TOKEN_LEEWAY", 30*time.Second),
		CompressMinLen: getEnvIntOrDefault("COMPRESS_MIN_SIZE", 1024),
	}

	if raw := os.Getenv("HMAC_SECRET_B64"); raw != "" {
		secret, err := decodeSecret(raw)
		if err != nil {
			return EdgeConfig{}, fmt.Errorf("HMAC_SECRET_B64: %w", err)
		}
		cfg.LinkSecret = secret
	}
	return cfg, nil
}

// LoadWorkerConfig reads the worker configuration from the environment.
func LoadWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Config:          loadConfig(),
		Concurrency:     getEnvIntOrDefault("WORKER_CONCURRENCY", 3),
		MaxDelivery:     getEnvIntOrDefault("MAX_DELIVERY", 5),
		AuditTable:      getEnvOrDefault("PDF_AUDIT_TABLE", "PdfLog"),
		AuditDriver:     getEnvOrDefault("AUDIT_DRIVER", "sqlite"),
		AuditDSN:        getEnvOrDefault("AUDIT_DSN", "audit.db"),
		LockDuration:    getEnvDurationOrDefault("LOCK_DURATION", 60*time.Second),
		MaxLockRenewal:  getEnvDurationOrDefault("MAX_LOCK_RENEWAL", 10*time.Minute),
		ReapSchedule:    getEnvOrDefault("REAP_SCHEDULE", "@every 30s"),
		ReceiveWait:     getEnvDurationOrDefault("RECEIVE_WAIT", 5*time.Second),
		RenderTimeout:   getEnvDurationOrDefault("RENDER_TIMEOUT", 2*time.Minute),
		ChromePath:      os.Getenv("CHROME_PATH"),
		ChromeNoSandbox: getEnvBoolOrDefault("CHROME_NO_SANDBOX", false),
		HealthPort:      getEnvIntOrDefault("HEALTH_PORT", 8081),
	}
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules the tags
// cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.StorageDriver == "fs" && c.StorageRoot == "" {
		return fmt.Errorf("invalid config: STORAGE_ROOT is required for the fs driver")
	}
	if c.QueueDriver == "redis" && c.RedisURL == "" {
		return fmt.Errorf("invalid config: REDIS_URL is required for the redis driver")
	}
	if c.Blob.TokenURL != "" && c.Blob.ClientID == "" {
		return fmt.Errorf("invalid config: BLOB_CLIENT_ID is required with BLOB_TOKEN_URL")
	}
	return nil
}

func (c EdgeConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Auth0Domain == "" && c.AzureTenantID == "" && c.IssuersFile == "" {
		return fmt.Errorf("invalid config: no token issuer configured (AUTH0_DOMAIN, AZURE_TENANT_ID or AUTH_ISSUERS_FILE)")
	}
	return nil
}

func (c WorkerConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// decodeSecret accepts URL-safe base64 with or without padding.
func decodeSecret(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	secret, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		secret, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil {
		return nil, err
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("secret must be at least 16 bytes, got %d", len(secret))
	}
	return secret, nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
