// Package config loads runtime settings from defaults, an optional config
// file, and GIGMARKET_* environment variables.
package config

import (
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the full runtime configuration.
type Config struct {
	Addr               string        `mapstructure:"addr"`
	WebDir             string        `mapstructure:"web_dir"`
	DatabaseURL        string        `mapstructure:"database_url"`
	Environment        string        `mapstructure:"environment"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	LogJSON            bool          `mapstructure:"log_json"`
	LogLevel           string        `mapstructure:"log_level"`
	LoginRatePerMinute int           `mapstructure:"login_rate_per_minute"`
	CleanupSchedule    string        `mapstructure:"cleanup_schedule"`
	OIDC               OIDCConfig    `mapstructure:"oidc"`
}

// OIDCConfig configures optional single sign-on.
type OIDCConfig struct {
	Issuer       string `mapstructure:"issuer"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// Enabled reports whether enough is configured to offer SSO.
func (o OIDCConfig) Enabled() bool {
	return o.Issuer != "" && o.ClientID != ""
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("web_dir", "web")
	v.SetDefault("database_url", "")
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("session_ttl", "24h")
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("login_rate_per_minute", 10)
	v.SetDefault("cleanup_schedule", "0 * * * *")
	v.SetDefault("oidc.issuer", "")
	v.SetDefault("oidc.client_id", "")
	v.SetDefault("oidc.client_secret", "")
	v.SetDefault("oidc.redirect_url", "")
}

// NewViper builds a viper instance with env binding and defaults. When
// configFile is non-empty it is read as well.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("GIGMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional name used by hosting platforms.
	if err := v.BindEnv("database_url", "GIGMARKET_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, err
	}

	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	}
	return v, nil
}

// Load reads .env (if present) and returns the validated configuration.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper unmarshals and validates configuration from v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.Environment != EnvDevelopment && cfg.Environment != EnvProduction {
		return nil, errors.Newf("environment must be %q or %q, got %q", EnvDevelopment, EnvProduction, cfg.Environment)
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("session_ttl must be positive")
	}
	return &cfg, nil
}

// CookiePolicy is the set of attributes every session cookie is written
// with. Clearing a cookie must reuse the same policy or browsers keep it.
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
}

// Cookies returns the session cookie policy for the environment.
func (c *Config) Cookies() CookiePolicy {
	if c.Environment == EnvProduction {
		return CookiePolicy{Secure: true, SameSite: http.SameSiteNoneMode}
	}
	return CookiePolicy{Secure: false, SameSite: http.SameSiteLaxMode}
}
