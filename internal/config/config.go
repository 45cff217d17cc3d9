package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting of the service.
type Config struct {
	Env      string
	AppPort  string
	LogLevel string

	DatabaseDriver string
	DatabaseDSN    string

	JWTSecret string
	JWTTTL    time.Duration

	RabbitMQURL      string
	RabbitMQExchange string

	CartTTL           time.Duration
	CartSweepInterval time.Duration

	ProviderTimeout     time.Duration
	ProviderMaxRetries  int
	StripeWebhookSecret string
	PayPalWebhookSecret string

	OTelEndpoint string
	MetricsAddr  string
}

// IsProd reports whether the service runs in production mode.
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=bookstore port=5432 sslmode=disable")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_EXCHANGE", "bookstore.events")
	v.SetDefault("CART_TTL", "168h")
	v.SetDefault("CART_SWEEP_INTERVAL", "1h")
	v.SetDefault("PROVIDER_TIMEOUT", "10s")
	v.SetDefault("PROVIDER_MAX_RETRIES", 3)
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("PAYPAL_WEBHOOK_SECRET", "")
	v.SetDefault("OTEL_EXPORTER_ENDPOINT", "")
	v.SetDefault("METRICS_ADDR", ":9091")
}

// Load reads defaults, then the optional file named by CONFIG_PATH, then the
// environment. Later sources win.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Env:                 v.GetString("APP_ENV"),
		AppPort:             v.GetString("APP_PORT"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		DatabaseDriver:      v.GetString("DATABASE_DRIVER"),
		DatabaseDSN:         v.GetString("DATABASE_DSN"),
		JWTSecret:           v.GetString("JWT_SECRET"),
		JWTTTL:              v.GetDuration("JWT_TTL"),
		RabbitMQURL:         v.GetString("RABBITMQ_URL"),
		RabbitMQExchange:    v.GetString("RABBITMQ_EXCHANGE"),
		CartTTL:             v.GetDuration("CART_TTL"),
		CartSweepInterval:   v.GetDuration("CART_SWEEP_INTERVAL"),
		ProviderTimeout:     v.GetDuration("PROVIDER_TIMEOUT"),
		ProviderMaxRetries:  v.GetInt("PROVIDER_MAX_RETRIES"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		PayPalWebhookSecret: v.GetString("PAYPAL_WEBHOOK_SECRET"),
		OTelEndpoint:        v.GetString("OTEL_EXPORTER_ENDPOINT"),
		MetricsAddr:         v.GetString("METRICS_ADDR"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if c.IsProd() {
			return errors.New("JWT_SECRET must be set in prod")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	// webhooks are public; without a secret any payload would be trusted
	if c.IsProd() && (c.StripeWebhookSecret == "" || c.PayPalWebhookSecret == "") {
		return errors.New("STRIPE_WEBHOOK_SECRET and PAYPAL_WEBHOOK_SECRET must be set in prod")
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.CartTTL <= 0 {
		return fmt.Errorf("CART_TTL must be positive, got %s", c.CartTTL)
	}
	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative, got %d", c.ProviderMaxRetries)
	}
	return nil
}
