package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

// AuthServiceConfig holds the configuration of the auth service.
type AuthServiceConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"auth-service"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR"    envDefault:":8080"`
	GRPCAddr    string `env:"GRPC_ADDR"    envDefault:":9090"`

	Storage StorageConfig `envPrefix:"STORAGE_"`
	Token   TokenConfig   `envPrefix:"TOKEN_"`
	Session SessionConfig `envPrefix:"SESSION_"`
	Google  GoogleConfig  `envPrefix:"GOOGLE_"`
	Consul  ConsulConfig  `envPrefix:"CONSUL_"`
	OTel    OTelConfig    `envPrefix:"OTEL_"`

	PasswordResetTokenExpiresIn time.Duration `env:"PASSWORD_RESET_TOKEN_EXPIRES_IN" envDefault:"1h"`
	AppPasswordResetURL         string        `env:"APP_PASSWORD_RESET_URL"          envDefault:"http://localhost:3000/reset-password"`

	// MailEnabled overrides mail delivery; when unset, delivery follows
	// whether SMTP_HOST is configured.
	MailEnabled *bool  `env:"MAIL_ENABLED"`
	SMTPHost    string `env:"SMTP_HOST"`
}

// MailDeliveryEnabled reports whether password reset links go out by email.
func (c *AuthServiceConfig) MailDeliveryEnabled() bool {
	if c.MailEnabled != nil {
		return *c.MailEnabled
	}
	return c.SMTPHost != ""
}

// IsDevelopment reports whether the service runs in the development
// environment.
func (c *AuthServiceConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

type StorageConfig struct {
	Driver        string `env:"DRIVER"         envDefault:"postgres"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"auth"`
}

type TokenConfig struct {
	Secret   string        `env:"SECRET"`
	Issuer   string        `env:"ISSUER"   envDefault:"credential-authority"`
	Audience string        `env:"AUDIENCE" envDefault:"credential-authority"`
	TTL      time.Duration `env:"TTL"      envDefault:"168h"`
}

type SessionConfig struct {
	TTL           time.Duration `env:"TTL"            envDefault:"168h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"24h"`
}

type GoogleConfig struct {
	ClientID      string        `env:"CLIENT_ID"`
	VerifyTimeout time.Duration `env:"VERIFY_TIMEOUT" envDefault:"5s"`
}

type ConsulConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Address string `env:"ADDRESS" envDefault:"localhost:8500"`
}

type OTelConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Endpoint string `env:"ENDPOINT" envDefault:"localhost:4318"`
	Insecure bool   `env:"INSECURE" envDefault:"true"`
}

// MinTokenSecretLength is the minimum length of the token signing secret.
const MinTokenSecretLength = 32

// LoadConfig parses the configuration from environment variables and
// validates it.
func LoadConfig() (*AuthServiceConfig, error) {
	cfg, err := env.ParseAs[AuthServiceConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AuthServiceConfig) validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("missing STORAGE_POSTGRES_DSN environment variable"))
		}
	case StorageDriverMongo:
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("missing STORAGE_MONGO_URI environment variable"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}

	if len(c.Token.Secret) < MinTokenSecretLength {
		errs = append(errs, fmt.Errorf("TOKEN_SECRET must be at least %d characters", MinTokenSecretLength))
	}
	if c.Token.TTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Token.TTL > c.Session.TTL {
		errs = append(errs, errors.New("TOKEN_TTL must not exceed SESSION_TTL"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("SESSION_SWEEP_INTERVAL must be positive"))
	}

	if c.Google.ClientID == "" {
		errs = append(errs, errors.New("missing GOOGLE_CLIENT_ID environment variable"))
	}
	if c.Google.VerifyTimeout <= 0 {
		errs = append(errs, errors.New("GOOGLE_VERIFY_TIMEOUT must be positive"))
	}

	if c.PasswordResetTokenExpiresIn <= 0 {
		errs = append(errs, errors.New("PASSWORD_RESET_TOKEN_EXPIRES_IN must be positive"))
	}

	return errors.Join(errs...)
}
