package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects encoding, level and an optional rotated file sink.
type Config struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

// New builds the process logger. Stdout always receives entries; when File
// is set a JSON copy is written there with rotation.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var stdoutEncoder zapcore.Encoder = jsonEncoder
	if cfg.Development {
		stdoutEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEncoder, zapcore.Lock(os.Stdout), level),
	}
	if cfg.File != "" {
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator(cfg)), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func rotator(cfg Config) *lumberjack.Logger {
	r := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	if cfg.MaxSizeMB > 0 {
		r.MaxSize = cfg.MaxSizeMB
	}
	if cfg.MaxBackups > 0 {
		r.MaxBackups = cfg.MaxBackups
	}
	if cfg.MaxAgeDays > 0 {
		r.MaxAge = cfg.MaxAgeDays
	}
	return r
}

// ParseLevel maps a config string to a zap level; empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}
