// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Sessions    SessionsConfig  `yaml:"sessions"`
	Instruments []string        `yaml:"instruments"`
	Server      ServerConfig    `yaml:"server"`
	System      SystemConfig    `yaml:"system"`
	Timing      TimingConfig    `yaml:"timing"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Alerting    AlertingConfig  `yaml:"alerting"`
}

// AlertingConfig contains alert channel settings. All channels are
// optional; an empty value disables the channel.
type AlertingConfig struct {
	SlackWebhookURL  Secret `yaml:"slack_webhook_url"`
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// SessionsConfig holds one entry per exchange session
type SessionsConfig struct {
	MarketData SessionConfig `yaml:"market_data"`
	Trade      SessionConfig `yaml:"trade"`
}

// SessionConfig contains the credentials and front address for one
// exchange session. AppID and AuthCode are only required for the trade
// session, which authenticates before login.
type SessionConfig struct {
	FrontAddress string `yaml:"front_address" validate:"required"`
	BrokerID     string `yaml:"broker_id" validate:"required"`
	UserID       string `yaml:"user_id" validate:"required"`
	Password     Secret `yaml:"password" validate:"required"`
	AppID        string `yaml:"app_id"`
	AuthCode     Secret `yaml:"auth_code"`
}

// ServerConfig contains the WebSocket front door settings
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr" validate:"required"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections" validate:"min=1,max=100000"`
	RateLimit      float64  `yaml:"rate_limit" validate:"min=0"`
	RateBurst      int      `yaml:"rate_burst" validate:"min=0"`
	StaticDir      string   `yaml:"static_dir"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// TimingConfig contains timing-related settings
type TimingConfig struct {
	SubscribeRetryDelayMs int `yaml:"subscribe_retry_delay_ms" validate:"min=1,max=60000"`
	SubscribeMaxAttempts  int `yaml:"subscribe_max_attempts" validate:"min=1,max=100"`
	ReadyTimeoutSeconds   int `yaml:"ready_timeout_seconds" validate:"min=1,max=3600"`
	QueueCapacity         int `yaml:"queue_capacity" validate:"min=1,max=10000000"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	EnableTracing bool `yaml:"enable_tracing"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills in zero-valued optional fields
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8000"
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = 1000
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 10.0
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 20
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Timing.SubscribeRetryDelayMs == 0 {
		c.Timing.SubscribeRetryDelayMs = 1000
	}
	if c.Timing.SubscribeMaxAttempts == 0 {
		c.Timing.SubscribeMaxAttempts = 10
	}
	if c.Timing.ReadyTimeoutSeconds == 0 {
		c.Timing.ReadyTimeoutSeconds = 30
	}
	if c.Timing.QueueCapacity == 0 {
		c.Timing.QueueCapacity = 65536
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateSessions(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateInstruments(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateServerConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateTimingConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateSessions() error {
	if err := validateSession("sessions.market_data", c.Sessions.MarketData, false); err != nil {
		return err
	}
	return validateSession("sessions.trade", c.Sessions.Trade, true)
}

func validateSession(prefix string, s SessionConfig, requireAuth bool) error {
	if s.FrontAddress == "" {
		return ValidationError{
			Field:   prefix + ".front_address",
			Message: "front address is required",
		}
	}
	if !strings.HasPrefix(s.FrontAddress, "tcp://") && !strings.HasPrefix(s.FrontAddress, "ssl://") {
		return ValidationError{
			Field:   prefix + ".front_address",
			Value:   s.FrontAddress,
			Message: "must start with tcp:// or ssl://",
		}
	}
	if s.BrokerID == "" {
		return ValidationError{
			Field:   prefix + ".broker_id",
			Message: "broker id is required",
		}
	}
	if s.UserID == "" {
		return ValidationError{
			Field:   prefix + ".user_id",
			Message: "user id is required",
		}
	}
	if s.Password == "" {
		return ValidationError{
			Field:   prefix + ".password",
			Message: "password is required",
		}
	}
	if requireAuth {
		if s.AppID == "" {
			return ValidationError{
				Field:   prefix + ".app_id",
				Message: "app id is required for the trade session",
			}
		}
		if s.AuthCode == "" {
			return ValidationError{
				Field:   prefix + ".auth_code",
				Message: "auth code is required for the trade session",
			}
		}
	}
	return nil
}

func (c *Config) validateInstruments() error {
	if len(c.Instruments) == 0 {
		return ValidationError{
			Field:   "instruments",
			Message: "at least one instrument must be configured",
		}
	}
	for _, id := range c.Instruments {
		if strings.TrimSpace(id) == "" {
			return ValidationError{
				Field:   "instruments",
				Message: "instrument ids must be non-empty",
			}
		}
	}
	return nil
}

func (c *Config) validateServerConfig() error {
	if c.Server.MaxConnections < 1 {
		return ValidationError{
			Field:   "server.max_connections",
			Value:   c.Server.MaxConnections,
			Message: "must be at least 1",
		}
	}
	if c.Server.RateLimit < 0 {
		return ValidationError{
			Field:   "server.rate_limit",
			Value:   c.Server.RateLimit,
			Message: "must not be negative",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateTimingConfig() error {
	if c.Timing.SubscribeRetryDelayMs < 1 {
		return ValidationError{
			Field:   "timing.subscribe_retry_delay_ms",
			Value:   c.Timing.SubscribeRetryDelayMs,
			Message: "must be at least 1",
		}
	}
	if c.Timing.SubscribeMaxAttempts < 1 {
		return ValidationError{
			Field:   "timing.subscribe_max_attempts",
			Value:   c.Timing.SubscribeMaxAttempts,
			Message: "must be at least 1",
		}
	}
	if c.Timing.QueueCapacity < 1 {
		return ValidationError{
			Field:   "timing.queue_capacity",
			Value:   c.Timing.QueueCapacity,
			Message: "must be at least 1",
		}
	}
	return nil
}

// String returns a string representation of the configuration. Secret
// fields redact themselves via their own marshalers.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		Sessions: SessionsConfig{
			MarketData: SessionConfig{
				FrontAddress: "tcp://180.168.146.187:10131",
				BrokerID:     "9999",
				UserID:       "test_user",
				Password:     "test_password",
			},
			Trade: SessionConfig{
				FrontAddress: "tcp://180.168.146.187:10130",
				BrokerID:     "9999",
				UserID:       "test_user",
				Password:     "test_password",
				AppID:        "simnow_client_test",
				AuthCode:     "0000000000000000",
			},
		},
		Instruments: []string{"ag2306", "au2306"},
		Server: ServerConfig{
			ListenAddr:     ":8000",
			AllowedOrigins: []string{"*"},
			MaxConnections: 1000,
			RateLimit:      10.0,
			RateBurst:      20,
			StaticDir:      "web",
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Timing: TimingConfig{
			SubscribeRetryDelayMs: 1000,
			SubscribeMaxAttempts:  10,
			ReadyTimeoutSeconds:   30,
			QueueCapacity:         65536,
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: true,
		},
	}
}
