// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ERPLOGIN_STORE_BACKEND.
const EnvPrefix = "ERPLOGIN"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Network() NetworkConfig
	Portal() PortalConfig
	Mailbox() MailboxConfig
	Login() LoginConfig
	Session() SessionConfig
	Store() StoreConfig
	Browser() BrowserConfig

	SetStoreBackend(string)
	SetBrowserHeadless(bool)
	SetLoggerLevel(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	NetworkCfg NetworkConfig `mapstructure:"network" yaml:"network"`
	PortalCfg  PortalConfig  `mapstructure:"portal" yaml:"portal"`
	MailboxCfg MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	LoginCfg   LoginConfig   `mapstructure:"login" yaml:"login"`
	SessionCfg SessionConfig `mapstructure:"session" yaml:"session"`
	StoreCfg   StoreConfig   `mapstructure:"store" yaml:"store"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Network() NetworkConfig { return c.NetworkCfg }
func (c *Config) Portal() PortalConfig   { return c.PortalCfg }
func (c *Config) Mailbox() MailboxConfig { return c.MailboxCfg }
func (c *Config) Login() LoginConfig     { return c.LoginCfg }
func (c *Config) Session() SessionConfig { return c.SessionCfg }
func (c *Config) Store() StoreConfig     { return c.StoreCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetStoreBackend(b string)  { c.StoreCfg.Backend = b }
func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetLoggerLevel(l string)   { c.LoggerCfg.Level = l }

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// NetworkConfig tunes the HTTP client used to reach the portal.
type NetworkConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	KeepAlive         time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`
	IdleConnTimeout   time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	Proxy             ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
}

// ProxyConfig routes portal traffic through an HTTP proxy.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// PortalConfig locates the ERP portal.
type PortalConfig struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	UserAgent    string `mapstructure:"user_agent" yaml:"user_agent"`
	MaxRedirects int    `mapstructure:"max_redirects" yaml:"max_redirects"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// MailboxConfig configures the Gmail adapter and the OTP search.
type MailboxConfig struct {
	Query        string        `mapstructure:"query" yaml:"query"`
	MaxResults   int           `mapstructure:"max_results" yaml:"max_results"`
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	ClientID     string        `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string        `mapstructure:"client_secret" yaml:"client_secret"`
	AuthURL      string        `mapstructure:"auth_url" yaml:"auth_url"`
	TokenURL     string        `mapstructure:"token_url" yaml:"token_url"`
	RetryMax     int           `mapstructure:"retry_max" yaml:"retry_max"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoginConfig holds the retry constants of a login run.
type LoginConfig struct {
	MaxOTPAttempts int           `mapstructure:"max_otp_attempts" yaml:"max_otp_attempts"`
	OTPBackoff     time.Duration `mapstructure:"otp_backoff" yaml:"otp_backoff"`
	PollAttempts   int           `mapstructure:"poll_attempts" yaml:"poll_attempts"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SessionConfig controls how long a saved ERP session is trusted.
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// BrowserConfig controls the browser opened on an authenticated session.
type BrowserConfig struct {
	ExecPath string        `mapstructure:"exec_path" yaml:"exec_path"`
	Headless bool          `mapstructure:"headless" yaml:"headless"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig returns a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "erplogin")
	v.SetDefault("logger.log_file", "~/.erplogin/erplogin.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.dial_timeout", "10s")
	v.SetDefault("network.keep_alive", "30s")
	v.SetDefault("network.idle_conn_timeout", "90s")
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.requests_per_second", 2.0)
	v.SetDefault("network.burst", 4)
	v.SetDefault("network.proxy.enabled", false)

	// -- Portal --
	v.SetDefault("portal.base_url", "https://erp.iitkgp.ac.in")
	v.SetDefault("portal.max_redirects", 10)
	v.SetDefault("portal.max_body_bytes", 4<<20)

	// -- Mailbox --
	v.SetDefault("mailbox.query", "from:erpkgp@adm.iitkgp.ac.in")
	v.SetDefault("mailbox.max_results", 5)
	v.SetDefault("mailbox.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("mailbox.auth_url", "https://accounts.google.com/o/oauth2/auth")
	v.SetDefault("mailbox.retry_max", 3)
	v.SetDefault("mailbox.timeout", "20s")

	// -- Login --
	v.SetDefault("login.max_otp_attempts", 10)
	v.SetDefault("login.otp_backoff", "5s")
	v.SetDefault("login.poll_attempts", 10)
	v.SetDefault("login.poll_interval", "5s")
	v.SetDefault("login.timeout", "10m")

	// -- Session --
	v.SetDefault("session.ttl", "10m")

	// -- Store --
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", "~/.erplogin/state.db")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.timeout", "30s")
}

// NewConfigFromViper unmarshals, expands and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are usually supplied through the environment rather than the file.
	_ = v.BindEnv("store.dsn", EnvPrefix+"_STORE_DSN")
	_ = v.BindEnv("mailbox.client_secret", EnvPrefix+"_MAILBOX_CLIENT_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LoggerCfg.LogFile, &c.StoreCfg.Path} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.PortalCfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("portal.base_url must be an absolute URL")
	}
	if c.LoginCfg.MaxOTPAttempts <= 0 {
		return fmt.Errorf("login.max_otp_attempts must be a positive integer")
	}
	if c.LoginCfg.PollAttempts <= 0 {
		return fmt.Errorf("login.poll_attempts must be a positive integer")
	}
	if c.LoginCfg.OTPBackoff < 0 || c.LoginCfg.PollInterval < 0 {
		return fmt.Errorf("login.otp_backoff and login.poll_interval must not be negative")
	}
	if c.SessionCfg.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.MailboxCfg.MaxResults <= 0 {
		return fmt.Errorf("mailbox.max_results must be a positive integer")
	}
	if c.NetworkCfg.RequestsPerSecond < 0 {
		return fmt.Errorf("network.requests_per_second must not be negative")
	}
	if c.NetworkCfg.Proxy.Enabled && c.NetworkCfg.Proxy.Address == "" {
		return fmt.Errorf("network.proxy.address is required when the proxy is enabled")
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the store configuration.
func (s *StoreConfig) Validate() error {
	switch strings.ToLower(s.Backend) {
	case "memory":
	case "sqlite", "":
		if s.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend (or set %s_STORE_DSN)", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown store.backend %q", s.Backend)
	}
	return nil
}
