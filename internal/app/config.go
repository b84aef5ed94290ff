package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/llm"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CAFE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CAFE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis URL for sessions and rate limits; in-memory when empty (CAFE_REDIS_URL or REDIS_URL)" flag:"redis-url"`

	JWTSecret   string        `usage:"HMAC secret for session tokens" flag:"jwt-secret"`
	TokenTTL    time.Duration `default:"720h" usage:"Session token lifetime" flag:"token-ttl"`
	SessionTTL  time.Duration `default:"24h" usage:"Cart session lifetime" flag:"session-ttl"`
	AdminEmails string        `usage:"Comma separated admin emails" flag:"admin-emails"`
	OwnerEmails string        `usage:"Comma separated owner emails" flag:"owner-emails"`
	// ExposeLoginCodes returns login codes in API responses. Development only.
	ExposeLoginCodes bool `default:"false" usage:"Return login codes in responses (development only)" flag:"expose-login-codes"`

	UPI       UPIConfig
	Assistant llm.Config
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// UPIConfig names the account receiving UPI payments.
type UPIConfig struct {
	VPA  string `default:"yumyard@upi" usage:"UPI virtual payment address"`
	Name string `default:"Yum Yard Cafe" usage:"UPI payee name"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"120" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// Roles returns the admin and owner allow-lists.
func (c *Config) Roles() *customer.Roles {
	return customer.NewRoles(customer.ParseList(c.AdminEmails), customer.ParseList(c.OwnerEmails))
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CAFE",
		Files:     []string{"config.yaml", "/etc/cafe/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CAFE_DATABASE_URL or DATABASE_URL")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required: set CAFE_JWT_SECRET")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided variables (DATABASE_URL,
// REDIS_URL, PORT) onto the CAFE_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Assistant.APIKey == "" {
		c.Assistant.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
}
