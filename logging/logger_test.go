package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/giygas/medicaments-search/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.expected {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGetConsoleLogLevel(t *testing.T) {
	tests := []struct {
		name        string
		env         config.Environment
		logLevelStr string
		verbose     bool
		expected    slog.Level
	}{
		{"dev defaults to info", config.EnvDevelopment, "", false, slog.LevelInfo},
		{"test quiet defaults to error", config.EnvTest, "", false, slog.LevelError},
		{"test verbose defaults to info", config.EnvTest, "", true, slog.LevelInfo},
		{"prod defaults to warn", config.EnvProduction, "", false, slog.LevelWarn},
		{"staging defaults to warn", config.EnvStaging, "", false, slog.LevelWarn},
		{"prod with debug override", config.EnvProduction, "debug", false, slog.LevelDebug},
		{"dev with error override", config.EnvDevelopment, "error", false, slog.LevelError},
		{"test ignores override", config.EnvTest, "debug", false, slog.LevelError},
		{"test verbose ignores override", config.EnvTest, "debug", true, slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetConsoleLogLevel(tt.env, tt.logLevelStr, tt.verbose)
			if got != tt.expected {
				t.Errorf("GetConsoleLogLevel(%v, %q, %v) = %v, want %v", tt.env, tt.logLevelStr, tt.verbose, got, tt.expected)
			}
		})
	}
}

func TestGetFileLogLevel(t *testing.T) {
	if got := GetFileLogLevel(); got != slog.LevelDebug {
		t.Errorf("GetFileLogLevel() = %v, want %v", got, slog.LevelDebug)
	}
}

func TestLoggingServiceWritesJSONFile(t *testing.T) {
	tempDir := t.TempDir()

	svc, err := NewLoggingService(Options{
		Dir:            tempDir,
		RetentionWeeks: 1,
		MaxFileSize:    1024 * 1024,
		ConsoleLevel:   slog.LevelError,
	})
	if err != nil {
		t.Fatalf("NewLoggingService failed: %v", err)
	}

	svc.Logger.Debug("cache miss", "key", "search:doli")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tempDir, "search-"+getWeekKey(time.Now())+".log"))
	if err != nil {
		t.Fatal(err)
	}

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("Expected a JSON record, got %q: %v", content, err)
	}
	if record["msg"] != "cache miss" || record["key"] != "search:doli" {
		t.Errorf("Unexpected record: %v", record)
	}
}

func TestLoggingServiceFallsBackToConsole(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	svc, err := NewLoggingService(Options{Dir: filepath.Join(blocker, "logs"), RetentionWeeks: 1})
	if err == nil {
		t.Error("Expected an error for an unusable log directory")
	}
	if svc == nil || svc.Logger == nil {
		t.Fatal("Expected a console logger even when the file sink fails")
	}
	if err := svc.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestInitLoggerWithConfig(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	cfg := &config.Config{
		Env:               config.EnvTest,
		LogDir:            t.TempDir(),
		LogRetentionWeeks: 1,
		MaxLogFileSize:    1024 * 1024,
	}

	InitLoggerWithConfig(cfg, false)
	defer Close()

	if DefaultLoggingService == nil {
		t.Fatal("InitLoggerWithConfig did not initialize DefaultLoggingService")
	}

	Info("info goes to the file only")
	With("component", "test").Warn("component logger")

	if Close() != nil || DefaultLoggingService != nil {
		t.Error("Expected Close to release DefaultLoggingService")
	}
}

func TestMultiHandler(t *testing.T) {
	var infoBuf, errorBuf strings.Builder
	m := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}}

	if !m.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Expected Info to be enabled by the first handler")
	}
	if m.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected Debug to be disabled")
	}

	logger := slog.New(m).With("namespace", "search").WithGroup("req")
	logger.Info("hello", "id", 1)
	logger.Error("boom")

	if !strings.Contains(infoBuf.String(), "namespace=search") || !strings.Contains(infoBuf.String(), "req.id=1") {
		t.Errorf("Expected attrs and group in info output, got %q", infoBuf.String())
	}
	if strings.Contains(errorBuf.String(), "hello") {
		t.Error("Expected error handler to skip info records")
	}
	if !strings.Contains(errorBuf.String(), "boom") {
		t.Error("Expected error handler to receive error records")
	}
}
