// Package config handles loading and managing application configuration.
package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/irandargah/irandargah-payments/internal/core/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Default shopper notices. {order_id} and {refid} are replaced.
const (
	DefaultSuccessMessage = "Payment of order {order_id} was successful. Reference: {refid}"
	DefaultFailedMessage  = "Payment of order {order_id} was not completed."
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Server ServerConfig

	// IranDargah gateway settings
	Gateway GatewayConfig

	// Order store
	Store StoreConfig

	// Store backend (host) API and pages
	Host HostConfig

	// Security settings
	Security SecurityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	GinMode         string // "debug", "release", or "test"
	ShutdownTimeout time.Duration
	CallbackRPS     float64
	CallbackBurst   int
}

// GatewayConfig holds the gateway settings. It can be overridden by the
// YAML file named in IRANDARGAH_SETTINGS_FILE.
type GatewayConfig struct {
	Title               string `mapstructure:"title"`
	Description         string `mapstructure:"description"`
	MerchantID          string `mapstructure:"merchant_id"`
	Sandbox             bool   `mapstructure:"sandbox"`
	ConnectionMethod    string `mapstructure:"connection_method"`
	Currency            string `mapstructure:"currency"`
	EnableLogging       bool   `mapstructure:"enable_logging"`
	SuccessMessage      string `mapstructure:"success_message"`
	FailedMessage       string `mapstructure:"failed_message"`
	DescriptionTemplate string `mapstructure:"description_template"`
	UseGETVerb          bool   `mapstructure:"rest_get_verb"`

	BaseURL       string        `mapstructure:"base_url"`
	SOAPEndpoint  string        `mapstructure:"soap_endpoint"`
	SOAPNamespace string        `mapstructure:"soap_namespace"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CallbackAck   string        `mapstructure:"callback_ack"`
}

// StoreConfig selects the order store.
type StoreConfig struct {
	Driver string // "sqlite" or "postgres"
	DSN    string
}

// HostConfig holds the store backend's API and the shopper-facing URLs.
type HostConfig struct {
	APIURL           string
	APIKey           string
	CallbackURL      string
	CheckoutURL      string
	OrderReceivedURL string
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	CallbackSecret   string
	ServiceJWTSecret string
}

// Load reads configuration from a .env file (if present), environment
// variables and the optional settings file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			GinMode:         getEnv("GIN_MODE", "debug"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			CallbackRPS:     getEnvFloat("CALLBACK_RATE_LIMIT_RPS", 0),
			CallbackBurst:   getEnvInt("CALLBACK_RATE_LIMIT_BURST", 10),
		},
		Gateway: GatewayConfig{
			Title:               getEnv("IRANDARGAH_TITLE", "IranDargah"),
			Description:         getEnv("IRANDARGAH_DESCRIPTION", "پرداخت با تمام کارت های بانکی عضو شتاب از طریق ایران درگاه"),
			MerchantID:          getEnv("IRANDARGAH_MERCHANT_ID", ""),
			Sandbox:             getEnvBool("IRANDARGAH_SANDBOX", false),
			ConnectionMethod:    getEnv("IRANDARGAH_CONNECTION_METHOD", string(domain.MethodRESTPost)),
			Currency:            getEnv("IRANDARGAH_CURRENCY", string(domain.CurrencyIRR)),
			EnableLogging:       getEnvBool("IRANDARGAH_ENABLE_LOGGING", false),
			SuccessMessage:      getEnv("IRANDARGAH_SUCCESS_MESSAGE", DefaultSuccessMessage),
			FailedMessage:       getEnv("IRANDARGAH_FAILED_MESSAGE", DefaultFailedMessage),
			DescriptionTemplate: getEnv("IRANDARGAH_DESCRIPTION_TEMPLATE", ""),
			UseGETVerb:          getEnvBool("IRANDARGAH_REST_GET_VERB", false),
			BaseURL:             getEnv("IRANDARGAH_BASE_URL", domain.DefaultProviderBaseURL),
			SOAPEndpoint:        getEnv("IRANDARGAH_SOAP_ENDPOINT", ""),
			SOAPNamespace:       getEnv("IRANDARGAH_SOAP_NAMESPACE", ""),
			RetryAttempts:       getEnvInt("IRANDARGAH_RETRY_ATTEMPTS", 3),
			RetryBackoff:        getEnvDuration("IRANDARGAH_RETRY_BACKOFF", 0),
			Timeout:             getEnvDuration("IRANDARGAH_TIMEOUT", 15*time.Second),
			CallbackAck:         getEnv("IRANDARGAH_CALLBACK_ACK", "redirect"),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "sqlite"),
			DSN:    getEnv("STORE_DSN", "data/irandargah.db"),
		},
		Host: HostConfig{
			APIURL:           getEnv("HOST_API_URL", ""),
			APIKey:           getEnv("HOST_API_KEY", ""),
			CallbackURL:      getEnv("HOST_CALLBACK_URL", "http://localhost:8080/irandargah/callback"),
			CheckoutURL:      getEnv("HOST_CHECKOUT_URL", "http://localhost:8000/checkout/"),
			OrderReceivedURL: getEnv("HOST_ORDER_RECEIVED_URL", "http://localhost:8000/checkout/order-received/{order_id}/"),
		},
		Security: SecurityConfig{
			CallbackSecret:   getEnv("CALLBACK_SECRET", ""),
			ServiceJWTSecret: getEnv("SERVICE_JWT_SECRET", ""),
		},
	}

	if path := os.Getenv("IRANDARGAH_SETTINGS_FILE"); path != "" {
		if err := loadSettingsFile(path, &cfg.Gateway); err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", path, err)
		}
	}

	if err := cfg.Gateway.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSettingsFile merges the YAML file over the env-derived gateway settings.
func loadSettingsFile(path string, gw *GatewayConfig) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(gw)
}

func (g *GatewayConfig) normalize() error {
	method, err := domain.ParseConnectionMethod(g.ConnectionMethod)
	if err != nil {
		return err
	}
	g.ConnectionMethod = string(method)
	g.Currency = strings.ToUpper(strings.TrimSpace(g.Currency))
	if g.RetryAttempts < 1 {
		g.RetryAttempts = 1
	}
	return nil
}

// Settings implements ports.SettingsProvider.
func (g GatewayConfig) Settings(context.Context) (domain.GatewaySettings, error) {
	return domain.GatewaySettings{
		Title:               g.Title,
		Description:         g.Description,
		MerchantID:          g.MerchantID,
		Sandbox:             g.Sandbox,
		ConnectionMethod:    domain.ConnectionMethod(g.ConnectionMethod),
		Currency:            domain.Currency(g.Currency),
		EnableLogging:       g.EnableLogging,
		SuccessMessage:      g.SuccessMessage,
		FailedMessage:       g.FailedMessage,
		DescriptionTemplate: g.DescriptionTemplate,
		UseGETVerb:          g.UseGETVerb,
	}, nil
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer with a fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean with a fallback.
// "yes" and "no" are accepted alongside the strconv.ParseBool forms.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "yes":
			return true
		case "no":
			return false
		}
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or whole seconds ("15").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
