package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Storage.Mode != ModeHybrid {
		t.Fatalf("expected hybrid default mode, got %q", cfg.Storage.Mode)
	}
	if cfg.Routing.RouteThreshold != 0.7 {
		t.Fatalf("expected default route threshold 0.7, got %v", cfg.Routing.RouteThreshold)
	}
}

func TestYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	data := []byte("server:\n  port: \"9090\"\nstorage:\n  mode: file\nrouting:\n  route_threshold: 0.8\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Storage.Mode != ModeFile {
		t.Fatalf("expected file mode, got %q", cfg.Storage.Mode)
	}
	if cfg.Routing.RouteThreshold != 0.8 {
		t.Fatalf("expected threshold 0.8, got %v", cfg.Routing.RouteThreshold)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("SWITCHBOARD_PORT", "7070")
	t.Setenv("SWITCHBOARD_STORAGE_PRIMARY_TIMEOUT", "5s")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env port 7070, got %q", cfg.Server.Port)
	}
	if cfg.Storage.PrimaryTimeout != 5*time.Second {
		t.Fatalf("expected 5s primary timeout, got %v", cfg.Storage.PrimaryTimeout)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Mode = "remote"
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for unknown storage mode")
	}
}

func TestValidateRequiresDSNForHybrid(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = ""
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for missing dsn in hybrid mode")
	}

	cfg.Storage.Mode = ModeFile
	if err := validate(&cfg); err != nil {
		t.Fatalf("file mode should not require dsn: %v", err)
	}
}

func TestValidateThresholdOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.Routing.RouteThreshold = 0.3
	cfg.Routing.ClarifyThreshold = 0.7
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for inverted thresholds")
	}
}
