package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestSetupLoggerInstallsDefault(t *testing.T) {
	logger := SetupLogger("debug", "test")

	if logger.Component() != "test" {
		t.Fatalf("component = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug level should be enabled")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("logger should be installed as the slog default")
	}
}

func TestInitSQLite(t *testing.T) {
	logger := SetupLogger("error", "test")

	repo := InitSQLite(logger, filepath.Join(t.TempDir(), "cli.db"))
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
