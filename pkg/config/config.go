// Package config loads portal configuration from environment variables,
// with an optional YAML file overlay for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Identity      IdentityConfig      `yaml:"identity"`
	Mail          MailConfig          `yaml:"mail"`
	Redis         RedisConfig         `yaml:"redis"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Policy        PolicyConfig        `yaml:"policy"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	HealthPort      string        `yaml:"health_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds access record store configuration.
// Driver is "postgres" in production; "sqlite3" serves local development.
type DatabaseConfig struct {
	Driver      string        `yaml:"driver"`
	URL         string        `yaml:"url"`
	TrainingURL string        `yaml:"training_url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DirectoryConfig holds enterprise directory (LDAP) configuration
type DirectoryConfig struct {
	URL      string        `yaml:"url"`
	BindDN   string        `yaml:"bind_dn"`
	BindPass string        `yaml:"bind_pass"`
	BaseDN   string        `yaml:"base_dn"`
	Timeout  time.Duration `yaml:"timeout"`
}

// IdentityConfig holds identity provider configuration.
// Provider selects "cas", "oidc", or "saml".
type IdentityConfig struct {
	Provider string `yaml:"provider"`

	CASBaseURL string `yaml:"cas_base_url"`
	ServiceURL string `yaml:"service_url"`

	OIDCIssuer       string `yaml:"oidc_issuer"`
	OIDCClientID     string `yaml:"oidc_client_id"`
	OIDCClientSecret string `yaml:"oidc_client_secret"`
	OIDCRedirectURL  string `yaml:"oidc_redirect_url"`

	SAMLMetadataURL string `yaml:"saml_metadata_url"`
	SAMLIDPSSOURL   string `yaml:"saml_idp_sso_url"`
	SAMLIDPIssuer   string `yaml:"saml_idp_issuer"`
	SAMLSPIssuer    string `yaml:"saml_sp_issuer"`
	SAMLACSURL      string `yaml:"saml_acs_url"`
	SAMLIDPCertPEM  string `yaml:"saml_idp_cert_pem"`

	// TicketCacheSize bounds the single-use ticket replay guard
	TicketCacheSize int           `yaml:"ticket_cache_size"`
	TicketCacheTTL  time.Duration `yaml:"ticket_cache_ttl"`
}

// MailConfig holds SMTP notifier configuration
type MailConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	From        string        `yaml:"from"`
	AdminBox    string        `yaml:"admin_box"`
	PortalURL   string        `yaml:"portal_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	DisableSend bool          `yaml:"disable_send"`
}

// RedisConfig holds the rate limiter backing store configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ArchiveConfig holds S3 agreement archive configuration
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// PolicyConfig holds qualification policy knobs
type PolicyConfig struct {
	// ExcludedJobCodes lists job codes that disqualify faculty from
	// sponsoring, swappable without recompilation.
	ExcludedJobCodes []string `yaml:"excluded_job_codes"`
	// ExclusionFile, when set, is watched for runtime updates to the list
	ExclusionFile string `yaml:"exclusion_file"`
}

// JobsConfig holds scheduled job configuration
type JobsConfig struct {
	Enabled            bool   `yaml:"enabled"`
	ExpirationSchedule string `yaml:"expiration_schedule"`
	ReminderSchedule   string `yaml:"reminder_schedule"`
	ReminderAfterDays  int    `yaml:"reminder_after_days"`
}

// ObservabilityConfig holds logging/metrics/tracing settings
type ObservabilityConfig struct {
	LogLevel           string `yaml:"log_level"`
	MetricsEnabled     bool   `yaml:"metrics_enabled"`
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// LoadConfig loads configuration from the environment. When
// HERON_CONFIG_FILE names a YAML file it is loaded first and environment
// variables override it.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("HERON_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			HealthPort:      "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "postgres",
			MaxConns: 20,
			MinConns: 2,
			Timeout:  10 * time.Second,
		},
		Directory: DirectoryConfig{Timeout: 10 * time.Second},
		Identity: IdentityConfig{
			Provider:        "cas",
			TicketCacheSize: 4096,
			TicketCacheTTL:  5 * time.Minute,
		},
		Mail: MailConfig{
			Port:       587,
			From:       "heron-admin@kumc.edu",
			AdminBox:   "heron-admin@kumc.edu",
			Timeout:    15 * time.Second,
			MaxRetries: 3,
			RetryDelay: 5 * time.Second,
		},
		Policy: PolicyConfig{ExcludedJobCodes: []string{"24600"}},
		Jobs: JobsConfig{
			ExpirationSchedule: "@daily",
			ReminderSchedule:   "0 8 * * MON",
			ReminderAfterDays:  14,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "heron-portal",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "HERON_HOST")
	setString(&cfg.Server.Port, "HERON_PORT")
	setString(&cfg.Server.HealthPort, "HERON_HEALTH_PORT")
	setDuration(&cfg.Server.ReadTimeout, "HERON_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "HERON_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "HERON_IDLE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "HERON_SHUTDOWN_TIMEOUT")

	setString(&cfg.Database.Driver, "HERON_DB_DRIVER")
	setString(&cfg.Database.URL, "HERON_DB_URL")
	setString(&cfg.Database.TrainingURL, "HERON_TRAINING_DB_URL")
	setInt(&cfg.Database.MaxConns, "HERON_DB_MAX_CONNS")
	setInt(&cfg.Database.MinConns, "HERON_DB_MIN_CONNS")
	setDuration(&cfg.Database.Timeout, "HERON_DB_TIMEOUT")

	setString(&cfg.Directory.URL, "HERON_LDAP_URL")
	setString(&cfg.Directory.BindDN, "HERON_LDAP_BIND_DN")
	setString(&cfg.Directory.BindPass, "HERON_LDAP_BIND_PASS")
	setString(&cfg.Directory.BaseDN, "HERON_LDAP_BASE_DN")
	setDuration(&cfg.Directory.Timeout, "HERON_LDAP_TIMEOUT")

	setString(&cfg.Identity.Provider, "HERON_IDENTITY_PROVIDER")
	setString(&cfg.Identity.CASBaseURL, "HERON_CAS_BASE_URL")
	setString(&cfg.Identity.ServiceURL, "HERON_SERVICE_URL")
	setString(&cfg.Identity.OIDCIssuer, "HERON_OIDC_ISSUER")
	setString(&cfg.Identity.OIDCClientID, "HERON_OIDC_CLIENT_ID")
	setString(&cfg.Identity.OIDCClientSecret, "HERON_OIDC_CLIENT_SECRET")
	setString(&cfg.Identity.OIDCRedirectURL, "HERON_OIDC_REDIRECT_URL")
	setString(&cfg.Identity.SAMLIDPSSOURL, "HERON_SAML_IDP_SSO_URL")
	setString(&cfg.Identity.SAMLIDPIssuer, "HERON_SAML_IDP_ISSUER")
	setString(&cfg.Identity.SAMLSPIssuer, "HERON_SAML_SP_ISSUER")
	setString(&cfg.Identity.SAMLACSURL, "HERON_SAML_ACS_URL")
	setString(&cfg.Identity.SAMLIDPCertPEM, "HERON_SAML_IDP_CERT_PEM")
	setInt(&cfg.Identity.TicketCacheSize, "HERON_TICKET_CACHE_SIZE")
	setDuration(&cfg.Identity.TicketCacheTTL, "HERON_TICKET_CACHE_TTL")

	setString(&cfg.Mail.Host, "HERON_SMTP_HOST")
	setInt(&cfg.Mail.Port, "HERON_SMTP_PORT")
	setString(&cfg.Mail.Username, "HERON_SMTP_USERNAME")
	setString(&cfg.Mail.Password, "HERON_SMTP_PASSWORD")
	setString(&cfg.Mail.From, "HERON_MAIL_FROM")
	setString(&cfg.Mail.AdminBox, "HERON_MAIL_ADMIN")
	setString(&cfg.Mail.PortalURL, "HERON_PORTAL_URL")
	setDuration(&cfg.Mail.Timeout, "HERON_MAIL_TIMEOUT")
	setInt(&cfg.Mail.MaxRetries, "HERON_MAIL_MAX_RETRIES")
	setDuration(&cfg.Mail.RetryDelay, "HERON_MAIL_RETRY_DELAY")
	setBool(&cfg.Mail.DisableSend, "HERON_MAIL_DISABLE")

	setBool(&cfg.Redis.Enabled, "HERON_REDIS_ENABLED")
	setString(&cfg.Redis.Addr, "HERON_REDIS_ADDR")
	setString(&cfg.Redis.Password, "HERON_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HERON_REDIS_DB")

	setBool(&cfg.Archive.Enabled, "HERON_ARCHIVE_ENABLED")
	setString(&cfg.Archive.Endpoint, "HERON_ARCHIVE_S3_ENDPOINT")
	setString(&cfg.Archive.Region, "HERON_ARCHIVE_S3_REGION")
	setString(&cfg.Archive.Bucket, "HERON_ARCHIVE_S3_BUCKET")
	setString(&cfg.Archive.AccessKey, "HERON_ARCHIVE_S3_ACCESS_KEY")
	setString(&cfg.Archive.SecretKey, "HERON_ARCHIVE_S3_SECRET_KEY")
	setBool(&cfg.Archive.PathStyle, "HERON_ARCHIVE_S3_PATH_STYLE")

	if codes := os.Getenv("HERON_EXCLUDED_JOB_CODES"); codes != "" {
		cfg.Policy.ExcludedJobCodes = splitAndTrim(codes)
	}
	setString(&cfg.Policy.ExclusionFile, "HERON_EXCLUSION_FILE")

	setBool(&cfg.Jobs.Enabled, "HERON_JOBS_ENABLED")
	setString(&cfg.Jobs.ExpirationSchedule, "HERON_JOBS_EXPIRATION_SCHEDULE")
	setString(&cfg.Jobs.ReminderSchedule, "HERON_JOBS_REMINDER_SCHEDULE")
	setInt(&cfg.Jobs.ReminderAfterDays, "HERON_JOBS_REMINDER_AFTER_DAYS")

	setString(&cfg.Observability.LogLevel, "HERON_LOG_LEVEL")
	setBool(&cfg.Observability.MetricsEnabled, "HERON_METRICS_ENABLED")
	setBool(&cfg.Observability.OTelEnabled, "HERON_OTEL_ENABLED")
	setString(&cfg.Observability.OTelEndpoint, "HERON_OTEL_ENDPOINT")
	setString(&cfg.Observability.OTelServiceName, "HERON_OTEL_SERVICE_NAME")
	setString(&cfg.Observability.OTelServiceVersion, "HERON_OTEL_SERVICE_VERSION")
	setBool(&cfg.Observability.OTelInsecure, "HERON_OTEL_INSECURE")
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Identity.Provider {
	case "cas":
		if c.Identity.CASBaseURL == "" || c.Identity.ServiceURL == "" {
			return fmt.Errorf("CAS base URL and service URL are required for the cas provider")
		}
	case "oidc":
		if c.Identity.OIDCIssuer == "" || c.Identity.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer and client id are required for the oidc provider")
		}
	case "saml":
		if c.Identity.SAMLIDPSSOURL == "" || c.Identity.SAMLACSURL == "" {
			return fmt.Errorf("SAML IdP SSO URL and ACS URL are required for the saml provider")
		}
	default:
		return fmt.Errorf("invalid identity provider: %s (must be cas, oidc, or saml)", c.Identity.Provider)
	}

	if len(c.Policy.ExcludedJobCodes) == 0 && c.Policy.ExclusionFile == "" {
		return fmt.Errorf("at least one excluded job code or an exclusion file is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required when the agreement archive is enabled")
	}
	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OTel endpoint is required when OTel is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
