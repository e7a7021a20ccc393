package pgflowcfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "localhost" || cfg.Port != 5432 {
		t.Errorf("Host/Port = %q/%d, want localhost/5432", cfg.Host, cfg.Port)
	}
	if cfg.ProtocolVersion != 2 {
		t.Errorf("ProtocolVersion = %d, want 2", cfg.ProtocolVersion)
	}
	if cfg.AckInterval != 10*time.Second {
		t.Errorf("AckInterval = %v, want 10s", cfg.AckInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgflow.yaml")
	content := "host: db.example.com\nport: 6543\nslot: myslot\npublications:\n  - pub1\n  - pub2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "db.example.com" || cfg.Port != 6543 {
		t.Errorf("Host/Port = %q/%d", cfg.Host, cfg.Port)
	}
	if cfg.Slot != "myslot" {
		t.Errorf("Slot = %q, want myslot", cfg.Slot)
	}
	if len(cfg.Publications) != 2 || cfg.Publications[0] != "pub1" {
		t.Errorf("Publications = %v", cfg.Publications)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("Load of a missing file should not error, got: %v", err)
	}
}

func TestLoadEnvOverridesFieldsWithoutDefaults(t *testing.T) {
	// Slot has no SetDefault entry; without an explicit BindEnv it would
	// never pick up PGFLOW_SLOT (a known viper AutomaticEnv gotcha).
	t.Setenv("PGFLOW_SLOT", "env_slot")
	t.Setenv("PGFLOW_DATABASE", "env_db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slot != "env_slot" {
		t.Errorf("Slot = %q, want env_slot", cfg.Slot)
	}
	if cfg.Database != "env_db" {
		t.Errorf("Database = %q, want env_db", cfg.Database)
	}
}

func TestLoadEnvOverridesDefaultedField(t *testing.T) {
	t.Setenv("PGFLOW_PORT", "7777")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7777 {
		t.Errorf("Port = %d, want 7777", cfg.Port)
	}
}
