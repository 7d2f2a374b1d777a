package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "SATISFACTION"
	defaultKioskAddress      = "127.0.0.1:8090"
	defaultDashboardAddress  = "0.0.0.0:8080"
	defaultDatabasePath      = "kiosk.db"
	defaultLogLevel          = "info"
	defaultLogEncoding       = "json"
	defaultRemoteBackend     = BackendPostgREST
	defaultRemoteTable       = "feedback"
	defaultRemoteTimeout     = 8 * time.Second
	defaultFlushInterval     = 30 * time.Second
	defaultSummaryInterval   = 15 * time.Second
	defaultProbeInterval     = 10 * time.Second
	defaultTimezone          = "Local"
	defaultCookieName        = "admin_session"
	defaultTokenTTL          = 8 * time.Hour
	defaultCacheTTL          = 5 * time.Second
	defaultCacheSize         = 256
	defaultBreakerFailures   = 5
	defaultBreakerOpenPeriod = 30 * time.Second
)

const (
	// BackendPostgREST talks to a hosted PostgREST/Supabase project over HTTP.
	BackendPostgREST = "postgrest"
	// BackendPostgres connects directly to the Postgres database.
	BackendPostgres = "postgres"
)

// Mode selects which subcommand the configuration is validated for.
type Mode string

const (
	ModeKiosk     Mode = "kiosk"
	ModeDashboard Mode = "dashboard"
)

// RemoteConfig describes how to reach the hosted feedback store.
type RemoteConfig struct {
	Backend         string
	URL             string
	APIKey          string
	PostgresDSN     string
	Table           string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerOpen     time.Duration
	EnsureSchema    bool
}

// SyncConfig holds the kiosk timer intervals.
type SyncConfig struct {
	FlushInterval   time.Duration
	SummaryInterval time.Duration
	ProbeInterval   time.Duration
}

// AdminConfig holds dashboard access settings.
type AdminConfig struct {
	SigningSecret string
	CookieName    string
	TokenTTL      time.Duration
	Emails        []string
	EmailDomain   string
	AllowOrigins  []string
	SecureCookies bool
}

// AppConfig captures runtime configuration for both subcommands.
type AppConfig struct {
	KioskAddress     string
	DashboardAddress string
	DatabasePath     string
	LogLevel         string
	LogEncoding      string
	Timezone         string
	CacheTTL         time.Duration
	CacheSize        int
	Remote           RemoteConfig
	Sync             SyncConfig
	Admin            AdminConfig
}

// Location resolves the configured timezone, falling back to the host zone.
func (c AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("kiosk.address", defaultKioskAddress)
	configViper.SetDefault("dashboard.address", defaultDashboardAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("timezone", defaultTimezone)
	configViper.SetDefault("remote.backend", defaultRemoteBackend)
	configViper.SetDefault("remote.table", defaultRemoteTable)
	configViper.SetDefault("remote.timeout", defaultRemoteTimeout)
	configViper.SetDefault("remote.breaker_failures", defaultBreakerFailures)
	configViper.SetDefault("remote.breaker_open", defaultBreakerOpenPeriod)
	configViper.SetDefault("sync.flush_interval", defaultFlushInterval)
	configViper.SetDefault("sync.summary_interval", defaultSummaryInterval)
	configViper.SetDefault("sync.probe_interval", defaultProbeInterval)
	configViper.SetDefault("admin.cookie_name", defaultCookieName)
	configViper.SetDefault("admin.token_ttl", defaultTokenTTL)
	configViper.SetDefault("analytics.cache_ttl", defaultCacheTTL)
	configViper.SetDefault("analytics.cache_size", defaultCacheSize)
}

// Load parses runtime configuration from viper and validates it for the given mode.
func Load(configViper *viper.Viper, mode Mode) (AppConfig, error) {
	cfg := AppConfig{
		KioskAddress:     configViper.GetString("kiosk.address"),
		DashboardAddress: configViper.GetString("dashboard.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		LogEncoding:      configViper.GetString("log.encoding"),
		Timezone:         configViper.GetString("timezone"),
		CacheTTL:         configViper.GetDuration("analytics.cache_ttl"),
		CacheSize:        configViper.GetInt("analytics.cache_size"),
		Remote: RemoteConfig{
			Backend:         strings.ToLower(strings.TrimSpace(configViper.GetString("remote.backend"))),
			URL:             strings.TrimRight(configViper.GetString("remote.url"), "/"),
			APIKey:          configViper.GetString("remote.api_key"),
			PostgresDSN:     configViper.GetString("remote.postgres_dsn"),
			Table:           configViper.GetString("remote.table"),
			Timeout:         configViper.GetDuration("remote.timeout"),
			BreakerFailures: configViper.GetUint32("remote.breaker_failures"),
			BreakerOpen:     configViper.GetDuration("remote.breaker_open"),
			EnsureSchema:    configViper.GetBool("remote.ensure_schema"),
		},
		Sync: SyncConfig{
			FlushInterval:   configViper.GetDuration("sync.flush_interval"),
			SummaryInterval: configViper.GetDuration("sync.summary_interval"),
			ProbeInterval:   configViper.GetDuration("sync.probe_interval"),
		},
		Admin: AdminConfig{
			SigningSecret: configViper.GetString("admin.signing_secret"),
			CookieName:    configViper.GetString("admin.cookie_name"),
			TokenTTL:      configViper.GetDuration("admin.token_ttl"),
			Emails:        splitList(configViper.GetString("admin.emails")),
			EmailDomain:   strings.ToLower(strings.TrimSpace(configViper.GetString("admin.email_domain"))),
			AllowOrigins:  splitList(configViper.GetString("admin.allow_origins")),
			SecureCookies: configViper.GetBool("admin.secure_cookies"),
		},
	}

	if err := cfg.validate(mode); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate(mode Mode) error {
	switch c.Remote.Backend {
	case BackendPostgREST:
		if strings.TrimSpace(c.Remote.URL) == "" {
			return fmt.Errorf("remote.url is required for the %s backend", BackendPostgREST)
		}
		if strings.TrimSpace(c.Remote.APIKey) == "" {
			return fmt.Errorf("remote.api_key is required for the %s backend", BackendPostgREST)
		}
	case BackendPostgres:
		if strings.TrimSpace(c.Remote.PostgresDSN) == "" {
			return fmt.Errorf("remote.postgres_dsn is required for the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("remote.backend %q is not supported", c.Remote.Backend)
	}
	if strings.TrimSpace(c.Remote.Table) == "" {
		return fmt.Errorf("remote.table is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	switch mode {
	case ModeKiosk:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
		if c.Sync.FlushInterval <= 0 || c.Sync.SummaryInterval <= 0 || c.Sync.ProbeInterval <= 0 {
			return fmt.Errorf("sync intervals must be positive")
		}
	case ModeDashboard:
		if strings.TrimSpace(c.Admin.SigningSecret) == "" {
			return fmt.Errorf("admin.signing_secret is required")
		}
		if strings.TrimSpace(c.Admin.CookieName) == "" {
			return fmt.Errorf("admin.cookie_name is required")
		}
		if c.Remote.Backend == BackendPostgres {
			return fmt.Errorf("dashboard login requires the %s backend", BackendPostgREST)
		}
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
