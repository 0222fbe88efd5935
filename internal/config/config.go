// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is resolved in layers: built-in defaults, then the optional YAML
// file, then environment variables. Later layers win.
type Config struct {
	App          AppConfig          `koanf:"app"`
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Redis        RedisConfig        `koanf:"redis"`
	Token        TokenConfig        `koanf:"token"`
	Referral     ReferralConfig     `koanf:"referral"`
	OAuth        OAuthConfig        `koanf:"oauth"`
	Integrations IntegrationsConfig `koanf:"integrations"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit"`
	CORS         CORSConfig         `koanf:"cors"`
	Log          LogConfig          `koanf:"log"`
	Otel         OtelConfig         `koanf:"otel"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	TxAttempts      int           `koanf:"tx_attempts"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

// TokenConfig drives session issuance: ES256 access tokens plus opaque
// refresh tokens.
type TokenConfig struct {
	SigningKeyPath string        `koanf:"signing_key_path"`
	PublicKeyPath  string        `koanf:"public_key_path"`
	AccessTTL      time.Duration `koanf:"access_ttl"`
	RefreshTTL     time.Duration `koanf:"refresh_ttl"`
	Issuer         string        `koanf:"issuer"`
	Audience       string        `koanf:"audience"`
}

// ReferralConfig tunes the referral code lifecycle.
type ReferralConfig struct {
	CodeLength            int           `koanf:"code_length"`
	MaxGenerationAttempts int           `koanf:"max_generation_attempts"`
	CodeCacheTTL          time.Duration `koanf:"code_cache_ttl"`
	StatsCacheTTL         time.Duration `koanf:"stats_cache_ttl"`
	RecentLimit           int           `koanf:"recent_limit"`
	OperationTimeout      time.Duration `koanf:"operation_timeout"`
	DefaultCodeTTL        time.Duration `koanf:"default_code_ttl"`
	SingleUse             bool          `koanf:"single_use"`
	RegisterRateLimit     int           `koanf:"register_rate_limit"`
}

type OAuthConfig struct {
	Google GoogleOAuthConfig `koanf:"google"`
}

type GoogleOAuthConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURL  string `koanf:"redirect_url"`
}

func (g GoogleOAuthConfig) Enabled() bool {
	return g.ClientID != ""
}

type IntegrationsConfig struct {
	EmailHunter EmailHunterConfig `koanf:"emailhunter"`
	Clearbit    ClearbitConfig    `koanf:"clearbit"`
}

type EmailHunterConfig struct {
	Enabled bool          `koanf:"enabled"`
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type ClearbitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	APIKey   string        `koanf:"api_key"`
	BaseURL  string        `koanf:"base_url"`
	Timeout  time.Duration `koanf:"timeout"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

var (
	loaded   *Config
	loadErr  error
	loadOnce sync.Once
)

// Load resolves the configuration once per process. configPath may be
// empty.
func Load(configPath string) (*Config, error) {
	loadOnce.Do(func() {
		loaded, loadErr = load(configPath)
	})
	return loaded, loadErr
}

func load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: dotenv: %w", err)
	}

	k := koanf.New(".")

	for section, values := range defaults {
		for key, value := range values {
			if err := k.Set(section+"."+key, value); err != nil {
				return nil, fmt.Errorf("config: default %s.%s: %w", section, key, err)
			}
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &c, nil
}

var defaults = map[string]map[string]any{
	"app": {
		"name":        "Referral Service",
		"version":     "1.0.0",
		"environment": "development",
	},
	"server": {
		"host":             "0.0.0.0",
		"port":             8080,
		"read_timeout":     "30s",
		"write_timeout":    "30s",
		"idle_timeout":     "120s",
		"shutdown_timeout": "15s",
	},
	"database": {
		"max_open_conns":     25,
		"max_idle_conns":     5,
		"conn_max_lifetime":  "1h",
		"conn_max_idle_time": "30m",
		"auto_migrate":       false,
		"tx_attempts":        3,
	},
	"redis": {
		"pool_size":      10,
		"min_idle_conns": 5,
	},
	"token": {
		"signing_key_path": "keys/private.pem",
		"public_key_path":  "keys/public.pem",
		"access_ttl":       "15m",
		"refresh_ttl":      "168h",
		"issuer":           "refresh-system",
		"audience":         "refresh-system-api",
	},
	"referral": {
		"code_length":             8,
		"max_generation_attempts": 10,
		"code_cache_ttl":          "24h",
		"stats_cache_ttl":         "1h",
		"recent_limit":            5,
		"operation_timeout":       "5s",
		"default_code_ttl":        "168h",
		"single_use":              false,
		"register_rate_limit":     10,
	},
	"integrations": {
		"emailhunter.enabled":  false,
		"emailhunter.base_url": "https://api.hunter.io/v2/email-verifier",
		"emailhunter.timeout":  "5s",
		"clearbit.enabled":     false,
		"clearbit.base_url":    "https://person.clearbit.com/v2/people/find",
		"clearbit.timeout":     "3s",
		"clearbit.cache_ttl":   "24h",
	},
	"rate_limit": {
		"requests": 100,
		"window":   "1m",
		"burst":    20,
	},
	"cors": {
		"allowed_origins":   []string{"http://localhost:3000"},
		"allowed_methods":   []string{"GET", "POST", "DELETE", "OPTIONS"},
		"allowed_headers":   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		"allow_credentials": true,
		"max_age":           300,
	},
	"log": {
		"level":  "info",
		"format": "json",
	},
	"otel": {
		"enabled":      false,
		"insecure":     true,
		"sample_rate":  0.1,
		"service_name": "refresh-system",
	},
}

// envAliases maps variables whose names do not follow the SECTION_KEY rule.
var envAliases = map[string]string{
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"GOOGLE_OAUTH2_CLIENT_ID":     "oauth.google.client_id",
	"GOOGLE_OAUTH2_CLIENT_SECRET": "oauth.google.client_secret",
	"GOOGLE_OAUTH2_REDIRECT_URL":  "oauth.google.redirect_url",
	"EMAILHUNTER_ENABLED":         "integrations.emailhunter.enabled",
	"EMAILHUNTER_API_KEY":         "integrations.emailhunter.api_key",
	"CLEARBIT_ENABLED":            "integrations.clearbit.enabled",
	"CLEARBIT_API_KEY":            "integrations.clearbit.api_key",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
}

// envKey maps SECTION_KEY variables onto section.key when the section is
// known, so REFERRAL_CODE_LENGTH sets referral.code_length. Anything else
// is ignored.
func envKey(name string) string {
	if key, ok := envAliases[name]; ok {
		return key
	}

	lower := strings.ToLower(name)
	for section := range defaults {
		if rest, ok := strings.CutPrefix(lower, section+"_"); ok && rest != "" {
			return section + "." + rest
		}
	}
	return ""
}

type rule struct {
	broken bool
	msg    string
}

func (c *Config) validate() error {
	rules := []rule{
		{c.Database.URL == "", "DATABASE_URL is required"},
		{c.Redis.URL == "", "REDIS_URL is required"},
		{c.Token.SigningKeyPath == "", "TOKEN_SIGNING_KEY_PATH is required"},
		{c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0, "token ttls must be positive"},
		{c.Server.ReadTimeout <= 0, "server.read_timeout must be positive"},
		{c.Server.WriteTimeout <= 0, "server.write_timeout must be positive"},
		{c.Database.TxAttempts < 1, "database.tx_attempts must be at least 1"},
		{c.CORS.AllowCredentials && containsWildcard(c.CORS.AllowedOrigins),
			"cors: wildcard origin cannot be combined with credentials"},
		{c.IsProduction() && c.Otel.Enabled && c.Otel.Insecure,
			"OTEL_INSECURE must be false in production"},
		{c.Integrations.EmailHunter.Enabled && c.Integrations.EmailHunter.APIKey == "",
			"EMAILHUNTER_API_KEY is required when emailhunter is enabled"},
		{c.Integrations.Clearbit.Enabled && c.Integrations.Clearbit.APIKey == "",
			"CLEARBIT_API_KEY is required when clearbit is enabled"},
	}

	for _, r := range rules {
		if r.broken {
			return errors.New(r.msg)
		}
	}

	return validateReferral(c.Referral)
}

func validateReferral(r ReferralConfig) error {
	switch {
	case r.CodeLength < 4 || r.CodeLength > 50:
		return errors.New("referral.code_length must be between 4 and 50")
	case r.MaxGenerationAttempts < 1:
		return errors.New("referral.max_generation_attempts must be at least 1")
	case r.CodeCacheTTL <= 0 || r.StatsCacheTTL <= 0:
		return errors.New("referral cache ttls must be positive")
	case r.RecentLimit < 1:
		return errors.New("referral.recent_limit must be at least 1")
	case r.OperationTimeout <= 0:
		return errors.New("referral.operation_timeout must be positive")
	case r.DefaultCodeTTL <= 0:
		return errors.New("referral.default_code_ttl must be positive")
	}
	return nil
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
