package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level %s, got %s", LevelInfo, cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Expected default format %s, got %s", FormatText, cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got '%s'", cfg.Output)
	}
	if cfg.AddSource {
		t.Error("Expected AddSource to be false by default")
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("stdout text logger", func(t *testing.T) {
		logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: "stdout"})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}
		if logger == nil {
			t.Fatal("Logger should not be nil")
		}
	})

	t.Run("stderr json logger", func(t *testing.T) {
		logger, err := New(Config{Level: LevelError, Format: FormatJSON, Output: "stderr"})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}
		if logger == nil {
			t.Fatal("Logger should not be nil")
		}
	})

	t.Run("file logger", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "test.log")

		logger, err := New(Config{Level: LevelDebug, Format: FormatText, Output: logFile})
		if err != nil {
			t.Fatalf("Failed to create file logger: %v", err)
		}
		if logger == nil {
			t.Fatal("Logger should not be nil")
		}

		if _, err := os.Stat(logFile); os.IsNotExist(err) {
			t.Error("Log file should have been created")
		}
	})

	t.Run("invalid directory for file logger", func(t *testing.T) {
		_, err := New(Config{Level: LevelInfo, Format: FormatText, Output: "/invalid/path/test.log"})
		if err == nil {
			t.Error("Expected error for invalid log file path")
		}
	})

	t.Run("unknown log level defaults to info", func(t *testing.T) {
		logger, err := New(Config{Level: LogLevel("unknown"), Format: FormatText, Output: "stdout"})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}
		if logger == nil {
			t.Fatal("Logger should not be nil")
		}
	})
}

// newBufferLogger builds a JSON logger writing into buf for assertions.
func newBufferLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slogLevel})
	return &Logger{
		Logger: slog.New(handler),
		config: Config{Level: level, Format: FormatJSON},
	}
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestFieldHelpers(t *testing.T) {
	t.Run("WithComponent", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newBufferLogger(&buf, LevelInfo).WithComponent("scheduler")
		logger.Info("tick")

		entry := decodeLogLine(t, &buf)
		if entry["component"] != "scheduler" {
			t.Errorf("Expected component 'scheduler', got %v", entry["component"])
		}
	})

	t.Run("WithJobID and WithKind", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newBufferLogger(&buf, LevelInfo).WithJobID("job-1").WithKind("scan")
		logger.Info("started")

		entry := decodeLogLine(t, &buf)
		if entry["job_id"] != "job-1" {
			t.Errorf("Expected job_id 'job-1', got %v", entry["job_id"])
		}
		if entry["kind"] != "scan" {
			t.Errorf("Expected kind 'scan', got %v", entry["kind"])
		}
	})

	t.Run("WithTarget", func(t *testing.T) {
		var buf bytes.Buffer
		newBufferLogger(&buf, LevelInfo).WithTarget("10.0.0.0/24").Info("scanning")

		entry := decodeLogLine(t, &buf)
		if entry["target"] != "10.0.0.0/24" {
			t.Errorf("Expected target '10.0.0.0/24', got %v", entry["target"])
		}
	})
}

func TestJobLogging(t *testing.T) {
	t.Run("InfoJob", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newBufferLogger(&buf, LevelInfo)
		logger.InfoJob("job finished", "abc-123", "duration", "4s")

		entry := decodeLogLine(t, &buf)
		if entry["job_id"] != "abc-123" {
			t.Errorf("Expected job_id 'abc-123', got %v", entry["job_id"])
		}
		if entry["duration"] != "4s" {
			t.Errorf("Expected duration field, got %v", entry["duration"])
		}
	})

	t.Run("ErrorJob", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newBufferLogger(&buf, LevelInfo)
		logger.ErrorJob("job failed", "abc-123", fmt.Errorf("exit status 1"))

		entry := decodeLogLine(t, &buf)
		if entry["level"] != "ERROR" {
			t.Errorf("Expected ERROR level, got %v", entry["level"])
		}
		if !strings.Contains(fmt.Sprint(entry["error"]), "exit status 1") {
			t.Errorf("Expected error field, got %v", entry["error"])
		}
	})
}

func TestScanLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelInfo)
	logger.InfoScan("scan complete", "192.168.1.0/24", "hosts_up", 4)

	entry := decodeLogLine(t, &buf)
	if entry["target"] != "192.168.1.0/24" {
		t.Errorf("Expected target field, got %v", entry["target"])
	}
	if entry["hosts_up"] != float64(4) {
		t.Errorf("Expected hosts_up 4, got %v", entry["hosts_up"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelWarn)

	logger.Debug("should be dropped")
	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected debug/info to be filtered, got %q", buf.String())
	}

	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("Expected warn to be logged")
	}
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(newBufferLogger(&buf, LevelInfo))

	Info("hello", "k", "v")
	entry := decodeLogLine(t, &buf)
	if entry["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", entry["msg"])
	}
	if entry["k"] != "v" {
		t.Errorf("Expected field k=v, got %v", entry["k"])
	}
}
