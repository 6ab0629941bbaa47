package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrom_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFrom_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"planType":"max5","dataPath":"/data/claude"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PlanType != "max5" || cfg.DataPath != "/data/claude" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.RefreshIntervalSeconds != 5 || cfg.CollectorPort != 4318 {
		t.Fatalf("defaults not kept for absent fields: %+v", cfg)
	}
}

func TestLoadFrom_ClampsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"planType":"platinum","refreshIntervalSeconds":0,"collectorPort":99999}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PlanType != "pro" {
		t.Errorf("plan type not clamped: %q", cfg.PlanType)
	}
	if cfg.RefreshIntervalSeconds != 1 {
		t.Errorf("interval not clamped: %d", cfg.RefreshIntervalSeconds)
	}
	if cfg.CollectorPort != 4318 {
		t.Errorf("port not clamped: %d", cfg.CollectorPort)
	}
}

func TestLoadFrom_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	want := DefaultConfig()
	want.PlanType = "max20"
	want.DataPath = "/custom"
	if err := want.SaveTo(path); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}
