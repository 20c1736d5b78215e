package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTExpiresIn     time.Duration `mapstructure:"JWT_EXPIRES_IN"`
	PasswordResetTTL time.Duration `mapstructure:"PASSWORD_RESET_TTL"`
	BcryptCost       int           `mapstructure:"BCRYPT_COST"`

	EmailHost     string `mapstructure:"EMAIL_HOST"`
	EmailPort     int    `mapstructure:"EMAIL_PORT"`
	EmailUsername string `mapstructure:"EMAIL_USERNAME"`
	EmailPassword string `mapstructure:"EMAIL_PASSWORD"`
	EmailFrom     string `mapstructure:"EMAIL_FROM"`

	RedisURL       string   `mapstructure:"REDIS_URL"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	PriaidAPIKey    string        `mapstructure:"PRIAID_API_KEY"`
	PriaidSecretKey string        `mapstructure:"PRIAID_SECRET_KEY"`
	PriaidAuthURL   string        `mapstructure:"PRIAID_AUTH_URL"`
	PriaidHealthURL string        `mapstructure:"PRIAID_HEALTH_URL"`
	PredictionURL   string        `mapstructure:"PREDICTION_URL"`
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`

	ResetSweepSchedule string `mapstructure:"RESET_SWEEP_SCHEDULE"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "JWT_EXPIRES_IN", "PASSWORD_RESET_TTL", "BCRYPT_COST",
	"EMAIL_HOST", "EMAIL_PORT", "EMAIL_USERNAME", "EMAIL_PASSWORD", "EMAIL_FROM",
	"REDIS_URL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ORIGINS",
	"PRIAID_API_KEY", "PRIAID_SECRET_KEY", "PRIAID_AUTH_URL", "PRIAID_HEALTH_URL",
	"PREDICTION_URL", "UPSTREAM_TIMEOUT", "RESET_SWEEP_SCHEDULE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_EXPIRES_IN", "2160h")
	v.SetDefault("PASSWORD_RESET_TTL", "10m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("EMAIL_PORT", 587)
	v.SetDefault("EMAIL_FROM", "AI Medicare <no-reply@aimedicare.app>")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("PRIAID_AUTH_URL", "https://authservice.priaid.ch/login")
	v.SetDefault("PRIAID_HEALTH_URL", "https://healthservice.priaid.ch")
	v.SetDefault("PREDICTION_URL", "https://breast-cancer-udq5.onrender.com/predict")
	v.SetDefault("UPSTREAM_TIMEOUT", "15s")
	v.SetDefault("RESET_SWEEP_SCHEDULE", "@every 15m")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMTPEnabled reports whether outbound mail is configured.
func (c *Config) SMTPEnabled() bool {
	return c.EmailHost != ""
}

// Validate checks that the configuration is safe to run. Production requires
// a strong signing secret and a mail relay, since password reset depends on it.
func (c *Config) Validate() error {
	if c.JWTExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive, got %s", c.JWTExpiresIn)
	}
	if c.PasswordResetTTL <= 0 {
		return fmt.Errorf("PASSWORD_RESET_TTL must be positive, got %s", c.PasswordResetTTL)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout)
	}
	if c.IsProduction() {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if !c.SMTPEnabled() {
			return fmt.Errorf("EMAIL_HOST is required in production")
		}
	}
	return nil
}
