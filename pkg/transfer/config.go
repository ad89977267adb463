package transfer

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sgl-project/cloudxfer/pkg/configutils"
	"github.com/sgl-project/cloudxfer/pkg/storage/aws"
	"github.com/sgl-project/cloudxfer/pkg/storage/azure"
	"github.com/sgl-project/cloudxfer/pkg/storage/gcp"
)

// Config holds the transfer manager configuration, including the per-cloud
// connector credentials.
type Config struct {
	AWS   aws.Config   `mapstructure:"aws"`
	Azure azure.Config `mapstructure:"azure"`
	GCP   gcp.Config   `mapstructure:"gcp"`

	// MaxRetries is the number of attempts for a retriable backend
	// operation, including the first one.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=1"`

	// RetryDelay is the initial backoff delay. It doubles per attempt and
	// is capped at one minute.
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`

	// Timeout is the configured per-transfer deadline. Known gap: nothing
	// aborts a blocking transfer when it is exceeded. Callers who need a
	// hard deadline should pass a context with one.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	// ScratchDir is where cross-cloud transfers stage files locally.
	ScratchDir string `mapstructure:"scratch_dir" validate:"required"`

	// BreakerThreshold is the consecutive-failure count that opens a
	// provider's circuit breaker.
	BreakerThreshold int `mapstructure:"breaker_threshold" validate:"gte=1"`

	// BreakerCooldown is how long an open breaker rejects calls before
	// allowing a probe.
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" validate:"gt=0"`
}

// Option is a configuration option for the transfer manager.
type Option func(*Config) error

// DefaultConfig returns a Config with the stock retry, breaker and staging
// settings.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		RetryDelay:       2 * time.Second,
		Timeout:          5 * time.Minute,
		ScratchDir:       "temp_transfers",
		BreakerThreshold: 5,
		BreakerCooldown:  time.Minute,
	}
}

// NewConfig creates a transfer config from defaults plus the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := DefaultConfig()
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply takes the supplied options and applies them to the configuration.
func (c *Config) Apply(opts ...Option) error {
	for _, o := range opts {
		if o == nil {
			continue
		}

		if err := o(c); err != nil {
			return err
		}
	}

	return nil
}

// Validate ensures the transfer Config is valid.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// WithViper applies the configuration from Viper's top-level keys. It
// assumes Viper has already been configured to read from a config file, the
// environment, or flags.
func WithViper(v *viper.Viper) Option {
	return func(c *Config) error {
		if v == nil {
			return errors.New("nil Viper")
		}

		if err := configutils.BindEnvsRecursive(v, c, ""); err != nil {
			return err
		}
		bindCredentialEnvs(v)
		return v.Unmarshal(c)
	}
}

// bindCredentialEnvs maps the conventional cloud credential environment
// variables onto the connector config keys so they override file values.
func bindCredentialEnvs(v *viper.Viper) {
	_ = v.BindEnv("aws.access_key_id", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("aws.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("aws.region", "AWS_DEFAULT_REGION")
	_ = v.BindEnv("azure.account_name", "AZURE_STORAGE_ACCOUNT")
	_ = v.BindEnv("azure.account_key", "AZURE_STORAGE_KEY")
	_ = v.BindEnv("azure.connection_string", "AZURE_STORAGE_CONNECTION_STRING")
	_ = v.BindEnv("gcp.project_id", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("gcp.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
}
