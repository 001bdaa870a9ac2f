// Package logging wires slog to the console and to weekly rotating JSON files
package logging

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/giygas/medicaments-search/config"
)

// Options controls the logger built by NewLoggingService
type Options struct {
	Dir            string
	RetentionWeeks int
	MaxFileSize    int64
	ConsoleLevel   slog.Level
}

// LoggingService owns the process logger and its file sink
type LoggingService struct {
	Logger   *slog.Logger
	rotating *RotatingLogger
}

var DefaultLoggingService *LoggingService

// parseLogLevel maps a LOG_LEVEL value onto a slog level, Info when unknown
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConsoleLogLevel picks the console level. Tests stay quiet (Error) unless
// verbose and ignore LOG_LEVEL; elsewhere LOG_LEVEL wins over the environment default.
func GetConsoleLogLevel(env config.Environment, levelStr string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}

	if levelStr != "" {
		return parseLogLevel(levelStr)
	}

	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GetFileLogLevel is the level for the JSON file sink, which keeps everything
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

// NewLoggingService builds a logger writing text to stdout and JSON to rotating
// files. If the file sink cannot be opened the logger falls back to the console
// and the error is returned alongside it.
func NewLoggingService(opts Options) (*LoggingService, error) {
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: opts.ConsoleLevel,
	})

	rotating := NewRotatingLoggerWithSizeLimit(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
	if err := rotating.Open(); err != nil {
		_ = rotating.Close()
		return &LoggingService{Logger: slog.New(consoleHandler)}, err
	}
	rotating.StartCleanup(24 * time.Hour)

	fileHandler := slog.NewJSONHandler(rotating, &slog.HandlerOptions{
		Level: GetFileLogLevel(),
	})

	return &LoggingService{
		Logger:   slog.New(&multiHandler{handlers: []slog.Handler{consoleHandler, fileHandler}}),
		rotating: rotating,
	}, nil
}

// Close releases the file sink
func (s *LoggingService) Close() error {
	if s == nil || s.rotating == nil {
		return nil
	}
	return s.rotating.Close()
}

// InitLogger installs a default logger writing under logDir
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{
		Dir:            logDir,
		RetentionWeeks: 4,
		MaxFileSize:    100 * 1024 * 1024,
		ConsoleLevel:   slog.LevelInfo,
	})
}

// InitLoggerWithConfig installs the process logger from the loaded configuration
func InitLoggerWithConfig(cfg *config.Config, verbose bool) {
	InitLoggerWithOptions(Options{
		Dir:            cfg.LogDir,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
		ConsoleLevel:   GetConsoleLogLevel(cfg.Env, cfg.LogLevel, verbose),
	})
}

// InitLoggerWithOptions replaces DefaultLoggingService, closing the previous one
func InitLoggerWithOptions(opts Options) {
	svc, err := NewLoggingService(opts)
	if DefaultLoggingService != nil {
		_ = DefaultLoggingService.Close()
	}
	DefaultLoggingService = svc
	slog.SetDefault(svc.Logger)
	if err != nil {
		svc.Logger.Error("File logging disabled", "dir", opts.Dir, "error", err)
	}
}

// Close flushes and closes the default logging service
func Close() error {
	if DefaultLoggingService == nil {
		return nil
	}
	err := DefaultLoggingService.Close()
	DefaultLoggingService = nil
	return err
}

func logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return slog.Default()
	}
	return DefaultLoggingService.Logger
}

// Logger returns the process logger, slog.Default before initialization
func Logger() *slog.Logger {
	return logger()
}

// With returns the process logger carrying args on every record
func With(args ...any) *slog.Logger {
	return logger().With(args...)
}

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}

// multiHandler fans records out to every handler that enables their level
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
