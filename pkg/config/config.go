package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/keystone-auth/pkg/httputil"
	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/websso"
)

// Config holds all application configuration
type Config struct {
	Identity IdentityConfig
	WebSSO   WebSSOConfig
	Web      WebConfig
	Cache    CacheConfig
	Session  SessionConfig
	Server   ServerConfig

	Observability ObservabilityConfig

	// SettingsFile names the YAML file holding the reloadable settings
	SettingsFile string

	// Settings holds the structured settings at load time; Watcher
	// replaces them on file changes.
	Settings *AuthSettings
}

// IdentityConfig describes how to reach the identity service
type IdentityConfig struct {
	AuthURL       string
	APIVersion    string
	Insecure      bool
	CACertFile    string
	TokenMargin   time.Duration
	MultiDomain   bool
	DefaultDomain string
	HTTPTimeout   time.Duration

	version identity.Version
}

// WebSSOConfig holds the scalar WebSSO settings
type WebSSOConfig struct {
	Enabled       bool
	InitialChoice string
}

// WebConfig holds the URLs the auth views redirect between
type WebConfig struct {
	Webroot          string
	LoginURL         string
	LoginRedirectURL string
	SecureCookies    bool
}

// CacheConfig sizes the authorized-projects cache
type CacheConfig struct {
	ProjectCacheSize int
	ProjectCacheTTL  time.Duration
	// RedisURL enables the shared project cache and login throttle
	RedisURL string
}

// Session store drivers
const (
	SessionDriverMemory   = "memory"
	SessionDriverPostgres = "postgres"
	SessionDriverSQLite   = "sqlite3"
)

// SessionConfig selects the example host's session store
type SessionConfig struct {
	Driver string
	// DSN is the database/sql data source for the SQL drivers
	DSN        string
	TTL        time.Duration
	MaxEntries int
	// CleanupSchedule is the cron spec for pruning expired SQL sessions
	CleanupSchedule string
}

// ServerConfig holds the example host's HTTP server settings
type ServerConfig struct {
	Addr            string
	LoginRateLimit  int
	ShutdownTimeout time.Duration
	// TrustedProxies may set X-Forwarded-For and X-Real-IP
	TrustedProxies httputil.TrustedProxies
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from the environment and, when
// KEYSTONE_SETTINGS_FILE is set, the YAML settings file. Environment
// values win over the file for every scalar.
func LoadConfig() (*Config, error) {
	proxies, err := httputil.ParseTrustedProxies(getEnv("KEYSTONE_TRUSTED_PROXIES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Identity:      loadIdentityConfig(),
		WebSSO:        loadWebSSOConfig(),
		Web:           loadWebConfig(),
		Cache:         loadCacheConfig(),
		Session:       loadSessionConfig(),
		Server:        loadServerConfig(),
		Observability: loadObservabilityConfig(),
		SettingsFile:  getEnv("KEYSTONE_SETTINGS_FILE", ""),
	}
	cfg.Server.TrustedProxies = proxies

	settings := &AuthSettings{}
	if cfg.SettingsFile != "" {
		file, err := LoadSettingsFile(cfg.SettingsFile)
		if err != nil {
			return nil, err
		}
		settings = file.AuthSettings()
	}
	if err := applyEnvSettings(settings); err != nil {
		return nil, err
	}
	cfg.Settings = settings

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		AuthURL:       getEnv("KEYSTONE_URL", "http://localhost:5000/v3"),
		APIVersion:    getEnv("KEYSTONE_API_VERSION", "2.0"),
		Insecure:      getEnvBool("KEYSTONE_SSL_NO_VERIFY", false),
		CACertFile:    getEnv("KEYSTONE_SSL_CACERT", ""),
		TokenMargin:   time.Duration(getEnvInt("KEYSTONE_TOKEN_TIMEOUT_MARGIN", 0)) * time.Second,
		MultiDomain:   getEnvBool("KEYSTONE_MULTIDOMAIN_SUPPORT", false),
		DefaultDomain: getEnv("KEYSTONE_DEFAULT_DOMAIN", "Default"),
		HTTPTimeout:   getEnvDuration("KEYSTONE_HTTP_TIMEOUT", 30*time.Second),
	}
}

func loadWebSSOConfig() WebSSOConfig {
	return WebSSOConfig{
		Enabled:       getEnvBool("KEYSTONE_WEBSSO_ENABLED", false),
		InitialChoice: getEnv("KEYSTONE_WEBSSO_INITIAL_CHOICE", websso.CredentialsChoice),
	}
}

func loadWebConfig() WebConfig {
	return WebConfig{
		Webroot:          getEnv("KEYSTONE_WEBROOT", "/"),
		LoginURL:         getEnv("KEYSTONE_LOGIN_URL", "/auth/login/"),
		LoginRedirectURL: getEnv("KEYSTONE_LOGIN_REDIRECT_URL", "/"),
		SecureCookies:    getEnvBool("KEYSTONE_SECURE_COOKIES", false),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		ProjectCacheSize: getEnvInt("KEYSTONE_PROJECT_CACHE_SIZE", 1024),
		ProjectCacheTTL:  getEnvDuration("KEYSTONE_PROJECT_CACHE_TTL", 5*time.Minute),
		RedisURL:         getEnv("KEYSTONE_REDIS_URL", ""),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Driver:          strings.ToLower(getEnv("KEYSTONE_SESSION_DRIVER", SessionDriverMemory)),
		DSN:             getEnv("KEYSTONE_SESSION_DSN", ""),
		TTL:             getEnvDuration("KEYSTONE_SESSION_TTL", 12*time.Hour),
		MaxEntries:      getEnvInt("KEYSTONE_SESSION_MAX", 10000),
		CleanupSchedule: getEnv("KEYSTONE_SESSION_CLEANUP_SCHEDULE", "@every 15m"),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            getEnv("KEYSTONE_LISTEN_ADDR", ":8080"),
		LoginRateLimit:  getEnvInt("KEYSTONE_LOGIN_RATE_LIMIT", 10),
		ShutdownTimeout: getEnvDuration("KEYSTONE_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("KEYSTONE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("KEYSTONE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("KEYSTONE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("KEYSTONE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("KEYSTONE_OTEL_SERVICE_NAME", "keystone-auth"),
		OTelServiceVersion: getEnv("KEYSTONE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("KEYSTONE_OTEL_INSECURE", true),
	}
}

// applyEnvSettings overlays the list-valued environment settings
func applyEnvSettings(s *AuthSettings) error {
	if raw := getEnv("KEYSTONE_WEBSSO_IDP_MAPPING", ""); raw != "" {
		mapping, err := websso.ParseMapping(raw)
		if err != nil {
			return err
		}
		s.WebSSOMapping = mapping
	}
	if raw := getEnv("KEYSTONE_WEBSSO_CHOICES", ""); raw != "" {
		choices, err := websso.ParseChoices(raw)
		if err != nil {
			return err
		}
		s.WebSSOChoices = choices
	}
	if raw := getEnv("KEYSTONE_AVAILABLE_REGIONS", ""); raw != "" {
		regions, err := ParseRegions(raw)
		if err != nil {
			return err
		}
		s.AvailableRegions = regions
	}
	return nil
}

// Validate checks the configuration and resolves the identity API version
func (c *Config) Validate() error {
	version, err := identity.ParseVersion(c.Identity.APIVersion)
	if err != nil {
		return err
	}
	c.Identity.version = version

	if c.Identity.AuthURL == "" {
		return fmt.Errorf("identity URL is required")
	}
	if c.Identity.TokenMargin < 0 {
		return fmt.Errorf("token timeout margin must not be negative")
	}
	if c.Cache.ProjectCacheSize <= 0 {
		return fmt.Errorf("project cache size must be positive")
	}
	switch c.Session.Driver {
	case SessionDriverMemory:
	case SessionDriverPostgres, SessionDriverSQLite:
		if c.Session.DSN == "" {
			return fmt.Errorf("session DSN is required for the %s driver", c.Session.Driver)
		}
	default:
		return fmt.Errorf("unknown session driver %q", c.Session.Driver)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Server.LoginRateLimit < 0 {
		return fmt.Errorf("login rate limit must not be negative")
	}
	if c.Settings != nil {
		if err := c.Settings.Validate(); err != nil {
			return err
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// IdentityVersion is the identity API version resolved by Validate
func (c *Config) IdentityVersion() identity.Version {
	if c.Identity.version == 0 {
		if v, err := identity.ParseVersion(c.Identity.APIVersion); err == nil {
			return v
		}
		return identity.V2
	}
	return c.Identity.version
}

// WebSSOEnabled reports whether WebSSO is on. It needs identity v3.
func (c *Config) WebSSOEnabled() bool {
	return c.WebSSO.Enabled && c.IdentityVersion().AtLeast3()
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
