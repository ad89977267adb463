package transfer

import (
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/cloudxfer/pkg/logging"
)

// Module provides the transfer Config and Manager to an fx app.
var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideManager),
)

func provideConfig(v *viper.Viper) (*Config, error) {
	return NewConfig(WithViper(v))
}

func provideManager(cfg *Config, logger logging.Interface) (*Manager, error) {
	return NewManager(cfg, logger)
}
