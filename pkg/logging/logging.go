package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger takes a logging config and returns a new zap logger that writes
// to the rotated log file pointed to by the config and, unless disabled, to
// stdout.
func NewLogger(config *Config) (*zap.Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	encoder, level, err := constructEncoderAndLevel(config)
	if err != nil {
		return nil, fmt.Errorf("constructing log encoder and level: %w", err)
	}

	logFile := zapcore.AddSync(&config.Logger)
	logCore := zapcore.NewCore(encoder, logFile, level)

	var core zapcore.Core
	if config.DisableConsoleOutput {
		core = logCore
	} else {
		console := zapcore.Lock(os.Stdout)
		consoleCore := zapcore.NewCore(encoder, console, level)
		core = zapcore.NewTee(logCore, consoleCore)
	}

	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), nil
}

func constructEncoderAndLevel(config *Config) (zapcore.Encoder, zapcore.Level, error) {
	zapLevel, err := config.toZapCoreLevel()
	if err != nil {
		return nil, zapLevel, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if config.Debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		return zapcore.NewConsoleEncoder(encoderConfig), zapLevel, nil
	}
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	return zapcore.NewJSONEncoder(encoderConfig), zapLevel, nil
}
