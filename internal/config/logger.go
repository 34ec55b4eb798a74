package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/simp-lee/logger"
)

// SetupLogger builds the application logger from cfg and installs it as the
// slog default. Attributes stored with logger.WithContextAttrs, such as the
// request ID, are added to every record. The caller must Close it.
func SetupLogger(cfg *LogConfig) (*logger.Logger, error) {
	if cfg == nil {
		return nil, errors.New("log config is nil")
	}
	log, err := logger.New(LoggerOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	log.SetDefault()
	return log, nil
}

// LoggerOptions translates cfg into logger options. Rotation settings are
// ignored unless FilePath is set. A nil cfg yields nil.
func LoggerOptions(cfg *LogConfig) []logger.Option {
	if cfg == nil {
		return nil
	}
	format := logFormat(cfg.Format)
	opts := []logger.Option{
		logger.WithLevel(logLevel(cfg.Level)),
		logger.WithMiddleware(logger.ContextMiddleware()),
		logger.WithConsoleFormat(format),
		logger.WithConsoleColor(cfg.Color == nil || *cfg.Color),
	}
	if cfg.FilePath != "" {
		opts = append(opts, fileOptions(cfg, format)...)
	}
	return opts
}

func fileOptions(cfg *LogConfig, format logger.OutputFormat) []logger.Option {
	opts := []logger.Option{
		logger.WithFilePath(cfg.FilePath),
		logger.WithFileFormat(format),
	}
	if cfg.MaxSizeMB > 0 {
		opts = append(opts, logger.WithMaxSizeMB(cfg.MaxSizeMB))
	}
	if cfg.RetentionDays > 0 {
		opts = append(opts, logger.WithRetentionDays(cfg.RetentionDays))
	}
	if cfg.MaxBackups > 0 {
		opts = append(opts, logger.WithMaxBackups(cfg.MaxBackups))
	}
	if cfg.CompressRotated != nil {
		opts = append(opts, logger.WithCompressRotated(*cfg.CompressRotated))
	}
	return opts
}

var logFormats = map[string]logger.OutputFormat{
	"text": logger.FormatText,
	"json": logger.FormatJSON,
}

// logFormat falls back to the logger's custom console format.
func logFormat(s string) logger.OutputFormat {
	if f, ok := logFormats[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f
	}
	return logger.FormatCustom
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func logLevel(s string) slog.Level {
	if l, ok := logLevels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}
