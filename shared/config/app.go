package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AppConfig is the process configuration, built once at startup and passed
// explicitly to every component
type AppConfig struct {
	Environment string
	LogLevel    string
	LogFormat   string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	SMTP     SMTPConfig
	Storage  StorageConfig
	Docx     DocxConfig
	Public   PublicConfig

	CORSOrigins           []string
	AppURL                string
	AmendmentNotifyEmails []string
	KafkaBroker           string

	// BoardRoster lists the federation board followed by standing guests;
	// the first BoardSize entries are board members
	BoardRoster []string
	BoardSize   int
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// JWTConfig holds the token signing settings
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// SMTPConfig holds the outgoing mail settings
type SMTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromEmail string
	FromName  string
}

// Missing lists the settings that must be set before mail can be sent
func (c SMTPConfig) Missing() []string {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if c.User == "" {
		missing = append(missing, "SMTP_USER")
	}
	if c.Password == "" {
		missing = append(missing, "SMTP_PASSWORD")
	}
	return missing
}

// Configured reports whether mail can be sent
func (c SMTPConfig) Configured() bool {
	return len(c.Missing()) == 0
}

// Sender returns the envelope sender, falling back to the login user
func (c SMTPConfig) Sender() string {
	if c.FromEmail != "" {
		return c.FromEmail
	}
	return c.User
}

// StorageConfig selects where uploads and generated documents are kept
type StorageConfig struct {
	Backend     string
	UploadDir   string
	TemplateDir string
	S3Bucket    string
	S3Prefix    string
	AWSRegion   string
	S3Endpoint  string
}

// DocxConfig is the character formatting applied to generated agenda text
type DocxConfig struct {
	Font   string
	SizePt int
	Style  string
}

// PublicConfig drives the unauthenticated event submission
type PublicConfig struct {
	SubmitterUserID *uuid.UUID
	DefaultTenantID *uuid.UUID
}

// Load reads the configuration from the environment
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		SMTP: SMTPConfig{
			Host:      os.Getenv("SMTP_HOST"),
			User:      os.Getenv("SMTP_USER"),
			Password:  os.Getenv("SMTP_PASSWORD"),
			FromEmail: os.Getenv("SMTP_FROM_EMAIL"),
			FromName:  getEnv("SMTP_FROM_NAME", "JuLis Schleswig-Holstein"),
		},
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			UploadDir:   getEnv("UPLOAD_DIR", "./data/uploads"),
			TemplateDir: getEnv("TEMPLATE_DIR", "./templates"),
			S3Bucket:    os.Getenv("S3_BUCKET"),
			S3Prefix:    os.Getenv("S3_PREFIX"),
			AWSRegion:   getEnv("AWS_REGION", "eu-central-1"),
			S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		},
		Docx: DocxConfig{
			Font:  os.Getenv("DOCX_TAGESORDNUNG_FONT"),
			Style: os.Getenv("DOCX_TAGESORDNUNG_STYLE"),
		},
		CORSOrigins:           splitList(getEnv("CORS_ORIGINS", "http://localhost:5173"), ","),
		AppURL:                strings.TrimRight(getEnv("APP_URL", "http://localhost:5173"), "/"),
		AmendmentNotifyEmails: splitList(os.Getenv("DOCUMENT_AMENDMENT_NOTIFY_EMAILS"), ","),
		KafkaBroker:           os.Getenv("KAFKA_BROKER"),
		BoardRoster:           splitList(os.Getenv("BOARD_ROSTER"), ";"),
	}

	var err error
	if cfg.Database, err = loadDatabaseConfig(); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.SMTP.Port, err = getEnvInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.Docx.SizePt, err = getEnvInt("DOCX_TAGESORDNUNG_SIZE", 0); err != nil {
		return nil, err
	}
	if cfg.BoardSize, err = getEnvInt("BOARD_SIZE", len(cfg.BoardRoster)); err != nil {
		return nil, err
	}

	minutes, err := getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	cfg.JWT = JWTConfig{
		Secret:         os.Getenv("JWT_SECRET_KEY"),
		AccessTokenTTL: time.Duration(minutes) * time.Minute,
	}
	if cfg.JWT.Secret == "" {
		if cfg.Environment == "production" {
			return nil, fmt.Errorf("JWT_SECRET_KEY must be set in production")
		}
		logrus.Warn("JWT_SECRET_KEY not set, using insecure development secret")
		cfg.JWT.Secret = "dev-secret-change-me"
	}

	if cfg.Public.SubmitterUserID, err = getEnvUUID("PUBLIC_SUBMITTER_USER_ID"); err != nil {
		return nil, err
	}
	if cfg.Public.DefaultTenantID, err = getEnvUUID("PUBLIC_DEFAULT_TENANT_ID"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Port returns the listen port of a service from <NAME>_SERVICE_PORT
func Port(service, defaultPort string) string {
	return getEnv(strings.ToUpper(service)+"_SERVICE_PORT", defaultPort)
}

// SetupLogging configures the global logrus logger
func SetupLogging(cfg *AppConfig) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvUUID(key string) (*uuid.UUID, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &id, nil
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
