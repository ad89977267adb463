package logging

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigKey is the root configuration key (in Viper) for this module.
var ConfigKey = "logging"

// Config holds the configuration for logging.
type Config struct {
	// Debug forces the debug level and the console encoder. Use
	// "debug=false, level=debug" to produce debug logs in JSON.
	Debug bool `mapstructure:"debug"`

	// Level controls the logging level. Defaults to INFO if not set.
	Level Level `mapstructure:"level"`

	// DisableConsoleOutput stops logs from being copied to stdout, leaving
	// only the rotated log file.
	DisableConsoleOutput bool `mapstructure:"disable_console_output"`

	// Logger contains the lumberjack file-rotation knobs (filename, maxsize,
	// maxbackups, maxage).
	lumberjack.Logger `mapstructure:",squash"`
}

// Option is a configuration option for logging.
type Option func(*Config) error

// Validate ensures the logging Config is valid.
func (c *Config) Validate() error {
	if c.MaxSize < 0 {
		return fmt.Errorf("maxsize must be >= 0, not %d", c.MaxSize)
	}
	if c.MaxBackups < 0 {
		return fmt.Errorf("maxbackups must be >= 0, not %d", c.MaxBackups)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("maxage days must be >= 0, not %d", c.MaxAge)
	}
	if err := c.Level.Validate(); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}

	return nil
}

// WithViper applies the configuration using the "logging" Viper key. It
// assumes Viper has already been configured to read from a config file, the
// environment, or flags.
func WithViper(v *viper.Viper) Option {
	return func(c *Config) error {
		if v == nil {
			return errors.New("nil Viper")
		}

		return v.UnmarshalKey(ConfigKey, c)
	}
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

// NewConfig creates a new logging config with the given options.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{}
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}

	return c, nil
}
