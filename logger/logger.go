package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"compliancedash/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a zap.Logger configured based on the given options.
// Console output always goes to stdout; OutputFile adds a rotated JSON core.
func New(opts config.LogConfig) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoding := "json"
	if opts.Environment == "dev" || opts.Format == "console" {
		encoding = "console"
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(encoding), zapcore.Lock(os.Stdout), lvl),
	}

	if opts.OutputFile != "" {
		fc, err := fileCore(opts, lvl)
		if err != nil {
			return nil, err
		}
		cores = append(cores, fc)
	}

	logger := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("env", opts.Environment)),
	)
	return logger, nil
}

// fileCore writes JSON lines to a lumberjack-rotated file.
func fileCore(opts config.LogConfig, lvl zapcore.Level) (zapcore.Core, error) {
	dir := filepath.Dir(opts.OutputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.OutputFile,
		MaxSize:    orDefault(opts.MaxSizeMB, config.DefaultLogMaxSizeMB), // MB before rotation
		MaxBackups: orDefault(opts.MaxBackups, config.DefaultLogBackups),
		MaxAge:     orDefault(opts.MaxAgeDays, config.DefaultLogMaxAge), // days
		Compress:   true,
	})

	return zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), writer, lvl), nil
}

func consoleEncoder(encoding string) zapcore.Encoder {
	if encoding == "console" {
		return zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
