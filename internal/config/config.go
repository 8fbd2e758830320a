// Package config loads and validates agent config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds agent configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN; empty runs the agent on in-memory state only.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// IdleTimeout is the standard-scope idle timeout (e.g. "30m").
	IdleTimeout string `mapstructure:"IDLE_TIMEOUT"`
	// WarningThreshold is how long before idle expiry the warning shows (e.g. "2m"). Must be shorter than IdleTimeout.
	WarningThreshold string `mapstructure:"WARNING_THRESHOLD"`
	// AbsoluteLifetime is the standard-scope session ceiling (e.g. "12h").
	AbsoluteLifetime string `mapstructure:"ABSOLUTE_LIFETIME"`
	// ElevatedIdleTimeout is the idle timeout for elevated-privilege scopes (e.g. "15m").
	ElevatedIdleTimeout string `mapstructure:"ELEVATED_IDLE_TIMEOUT"`
	// ElevatedWarningThreshold is the warning threshold for elevated-privilege scopes.
	ElevatedWarningThreshold string `mapstructure:"ELEVATED_WARNING_THRESHOLD"`
	// ElevatedAbsoluteLifetime is the session ceiling for elevated-privilege scopes (e.g. "8h").
	ElevatedAbsoluteLifetime string `mapstructure:"ELEVATED_ABSOLUTE_LIFETIME"`
	// ActivityThrottle is the minimum interval between accepted interaction signals (e.g. "5s").
	ActivityThrottle string `mapstructure:"ACTIVITY_THROTTLE"`
	// PostAuthGrace is the window after interactive sign-in during which no timers are armed (e.g. "30s").
	PostAuthGrace string `mapstructure:"POST_AUTH_GRACE"`
	// StorePollInterval is how often Postgres-backed agents poll the shared state keys (e.g. "2s").
	StorePollInterval string `mapstructure:"STORE_POLL_INTERVAL"`
	// RoutesFile is the path to the YAML navigation forest (default routes.yaml).
	RoutesFile string `mapstructure:"ROUTES_FILE"`
	// WatchRoutes when true reloads RoutesFile on change.
	WatchRoutes bool `mapstructure:"WATCH_ROUTES"`
	// AuthSignOutURL is the auth provider endpoint the agent posts sign-outs to.
	AuthSignOutURL string `mapstructure:"AUTH_SIGNOUT_URL"`
	// SignInURL is the portal sign-in page the agent redirects to after logout.
	SignInURL string `mapstructure:"SIGNIN_URL"`
	// JWTPublicKey is the PEM-encoded public key (RSA or ECDSA) used to verify access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the expected iss claim (e.g. "rcp-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim (e.g. "rcp-portal").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// Workstation is the workstation identifier stamped on audit records; hostname when empty.
	Workstation string `mapstructure:"WORKSTATION"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("IDLE_TIMEOUT", "30m")
	v.SetDefault("WARNING_THRESHOLD", "2m")
	v.SetDefault("ABSOLUTE_LIFETIME", "12h")
	v.SetDefault("ELEVATED_IDLE_TIMEOUT", "15m")
	v.SetDefault("ELEVATED_WARNING_THRESHOLD", "2m")
	v.SetDefault("ELEVATED_ABSOLUTE_LIFETIME", "8h")
	v.SetDefault("ACTIVITY_THROTTLE", "5s")
	v.SetDefault("POST_AUTH_GRACE", "30s")
	v.SetDefault("STORE_POLL_INTERVAL", "2s")
	v.SetDefault("ROUTES_FILE", "routes.yaml")
	v.SetDefault("WATCH_ROUTES", false)
	v.SetDefault("AUTH_SIGNOUT_URL", "")
	v.SetDefault("SIGNIN_URL", "/sign-in")
	v.SetDefault("JWT_ISSUER", "rcp-auth")
	v.SetDefault("JWT_AUDIENCE", "rcp-portal")
	v.SetDefault("WORKSTATION", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.SignInURL == "" {
		return nil, errors.New("config: SIGNIN_URL must be set")
	}
	if w := cfg.WarningThresholdDuration(); w >= cfg.IdleTimeoutDuration() {
		return nil, errors.New("config: WARNING_THRESHOLD must be shorter than IDLE_TIMEOUT")
	}
	if w := cfg.ElevatedWarningThresholdDuration(); w >= cfg.ElevatedIdleTimeoutDuration() {
		return nil, errors.New("config: ELEVATED_WARNING_THRESHOLD must be shorter than ELEVATED_IDLE_TIMEOUT")
	}

	return &cfg, nil
}

// IdleTimeoutDuration parses IdleTimeout. Returns 30m if unset or invalid.
func (c *Config) IdleTimeoutDuration() time.Duration {
	return parseDuration(c.IdleTimeout, 30*time.Minute)
}

// WarningThresholdDuration parses WarningThreshold. Returns 2m if unset or invalid.
func (c *Config) WarningThresholdDuration() time.Duration {
	return parseDuration(c.WarningThreshold, 2*time.Minute)
}

// AbsoluteLifetimeDuration parses AbsoluteLifetime. Returns 12h if unset or invalid.
func (c *Config) AbsoluteLifetimeDuration() time.Duration {
	return parseDuration(c.AbsoluteLifetime, 12*time.Hour)
}

// ElevatedIdleTimeoutDuration parses ElevatedIdleTimeout. Returns 15m if unset or invalid.
func (c *Config) ElevatedIdleTimeoutDuration() time.Duration {
	return parseDuration(c.ElevatedIdleTimeout, 15*time.Minute)
}

// ElevatedWarningThresholdDuration parses ElevatedWarningThreshold. Returns 2m if unset or invalid.
func (c *Config) ElevatedWarningThresholdDuration() time.Duration {
	return parseDuration(c.ElevatedWarningThreshold, 2*time.Minute)
}

// ElevatedAbsoluteLifetimeDuration parses ElevatedAbsoluteLifetime. Returns 8h if unset or invalid.
func (c *Config) ElevatedAbsoluteLifetimeDuration() time.Duration {
	return parseDuration(c.ElevatedAbsoluteLifetime, 8*time.Hour)
}

// ActivityThrottleDuration parses ActivityThrottle. Returns 5s if unset or invalid.
func (c *Config) ActivityThrottleDuration() time.Duration {
	return parseDuration(c.ActivityThrottle, 5*time.Second)
}

// PostAuthGraceDuration parses PostAuthGrace. Returns 30s if unset or invalid.
func (c *Config) PostAuthGraceDuration() time.Duration {
	return parseDuration(c.PostAuthGrace, 30*time.Second)
}

// StorePollIntervalDuration parses StorePollInterval. Returns 2s if unset or invalid.
func (c *Config) StorePollIntervalDuration() time.Duration {
	return parseDuration(c.StorePollInterval, 2*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
