package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shelfscan/internal/logging"
	"shelfscan/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	logDir := t.TempDir()

	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{filepath.Join(logDir, "shelfscan.log")},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("pipeline started", logging.Int("workers", 4))

	content, err := os.ReadFile(filepath.Join(logDir, "shelfscan.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "pipeline started") {
		t.Fatalf("expected message in log output, got %q", content)
	}
	if !strings.Contains(string(content), "workers=4") {
		t.Fatalf("expected attribute in log output, got %q", content)
	}
}

func TestConsoleHandlerPrefixesComponent(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "catalog").Info("search issued")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "catalog: search issued") {
		t.Fatalf("expected component prefix, got %q", content)
	}
}

func TestJSONHandlerEmitsCanonicalKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")

	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("slow stage", logging.String(logging.FieldStage, "visual_matching"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single record, got %d: %q", len(lines), content)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if record["level"] != "warn" {
		t.Fatalf("expected lowercase level key, got %v", record["level"])
	}
	if record["msg"] != "slow stage" {
		t.Fatalf("expected msg key, got %v", record["msg"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record[logging.FieldStage] != "visual_matching" {
		t.Fatalf("expected stage attribute, got %v", record)
	}
}

func TestContextFieldsCarriesPipelineIdentity(t *testing.T) {
	ctx := services.WithImageID(context.Background(), 7)
	ctx = services.WithDetectionID(ctx, 42)
	ctx = services.WithBatchID(ctx, "batch-a1")
	ctx = services.WithStage(ctx, "searching")

	fields := logging.ContextFields(ctx)
	got := map[string]string{}
	for _, attr := range fields {
		got[attr.Key] = attr.Value.String()
	}

	if got[logging.FieldImageID] != "7" {
		t.Fatalf("expected image id field, got %v", got)
	}
	if got[logging.FieldDetectionID] != "42" {
		t.Fatalf("expected detection id field, got %v", got)
	}
	if got[logging.FieldBatchID] != "batch-a1" {
		t.Fatalf("expected batch id field, got %v", got)
	}
	if got[logging.FieldStage] != "searching" {
		t.Fatalf("expected stage field, got %v", got)
	}
}

func TestWithContextReturnsUsableLoggerForNilInput(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Info("ignored")
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected nop logger to be disabled at error level")
	}
}
