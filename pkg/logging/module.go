package logging

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module loads the configuration from Viper and creates a new logger using
// the "logging" viper configuration key.
var Module fx.Option = fx.Provide(
	provideZapLogger,
	provideInterface,
)

func provideZapLogger(v *viper.Viper) (*zap.Logger, error) {
	config, err := NewConfig(WithViper(v))
	if err != nil {
		return nil, fmt.Errorf("error reading logging configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}

	return NewLogger(config)
}

func provideInterface(logger *zap.Logger) Interface {
	return ForZap(logger)
}
