package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config содержит настройки логгера.
type Config struct {
	// debug, info, warn, error
	Level string `env:"LOG_LEVEL" env-default:"info"`
	// json или console
	Encoding string `env:"LOG_ENCODING" env-default:"json"`
	// Пусто - stdout
	OutputPath string `env:"LOG_OUTPUT_PATH"`
	// Попадает в каждую запись, чтобы различать сервер и воркер в общем потоке логов
	Service string `env:"LOG_SERVICE_NAME" env-default:"fairytale-server"`
}

// New создает zap.Logger по конфигурации. Неизвестный уровень
// заменяется на info, неизвестная кодировка на json.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		if cfg.Level != "" {
			// Логгера еще нет, пишем в stderr
			fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'info'\n", cfg.Level)
		}
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoding := strings.ToLower(cfg.Encoding)
	switch encoding {
	case "console":
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		encoding = "json"
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	outputPath := "stdout"
	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		outputPath = cfg.OutputPath
	}

	zapCfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: encoding,
		// Caller нужен только при отладке
		DisableCaller:     level > zapcore.DebugLevel,
		DisableStacktrace: true,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{outputPath},
		ErrorOutputPaths:  []string{"stderr"},
	}
	if cfg.Service != "" {
		zapCfg.InitialFields = map[string]interface{}{"service": cfg.Service}
	}

	log, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return log, nil
}
