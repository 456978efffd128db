package internal

import (
	"fmt"
	"time"

	"vetchat/domain"
)

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,required=true"`
	GrpcPort       int    `env:"GRPC_PORT,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	JwtSecret string `env:"JWT_SECRET,required=true"`
	JwtIssuer string `env:"JWT_ISSUER"`

	ConnectionBufferSize  int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryTimeout       time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	SendTimeout           time.Duration `env:"SEND_TIMEOUT,default=5s"`
	MaxContentLength      int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	DefaultPageSize       int           `env:"DEFAULT_PAGE_SIZE,default=50"`
	MaxPageSize           int           `env:"MAX_PAGE_SIZE,default=200"`
	SendRatePerSecond     float64       `env:"SEND_RATE_PER_SECOND,default=0"`
	SendRateBurst         int           `env:"SEND_RATE_BURST,default=10"`
	RequireKnownRecipient bool          `env:"REQUIRE_KNOWN_RECIPIENT,default=false"`

	RedisURL          string `env:"REDIS_URL"`
	NotificationQueue string `env:"NOTIFICATION_QUEUE,default=notifications"`

	PresenceReportInterval time.Duration `env:"PRESENCE_REPORT_INTERVAL,default=15s"`
	HealthCheckInterval    time.Duration `env:"HEALTH_CHECK_INTERVAL,default=5s"`
	RestartInterval        time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout        time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	// InspectPort serves the badger inspector when set, never in production.
	InspectPort int `env:"INSPECT_PORT,default=0"`
}

// Validate checks the values go-env cannot express with tags.
func (c Config) Validate() error {
	if len(c.JwtSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes long")
	}
	if c.MaxContentLength <= 0 || c.MaxContentLength > domain.MaxContentLength {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be between 1 and %d, got %d", domain.MaxContentLength, c.MaxContentLength)
	}
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and MAX_PAGE_SIZE (%d), got %d", c.MaxPageSize, c.DefaultPageSize)
	}
	if c.SendRatePerSecond < 0 {
		return fmt.Errorf("SEND_RATE_PER_SECOND must not be negative")
	}
	return nil
}
