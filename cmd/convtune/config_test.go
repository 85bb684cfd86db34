package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `db_path: /srv/convtune
backend: sim
search: true
save_requests: false
timer_iterations: 5
seed: 9
log_level: debug
server_address: 0.0.0.0:9000
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := loadConfigFrom(path)
	if cfg.DBPath != "/srv/convtune" || cfg.Backend != "sim" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Search == nil || !*cfg.Search {
		t.Fatalf("search not set: %+v", cfg)
	}
	if cfg.SaveRequests == nil || *cfg.SaveRequests {
		t.Fatalf("save_requests should be explicitly false: %+v", cfg)
	}
	if cfg.TimerIterations == nil || *cfg.TimerIterations != 5 || cfg.Seed == nil || *cfg.Seed != 9 {
		t.Fatalf("unexpected tuning defaults: %+v", cfg)
	}
	if cfg.Bias != nil {
		t.Fatalf("bias should be unset")
	}
}

func TestLoadConfigMissingOrInvalid(t *testing.T) {
	dir := t.TempDir()
	if cfg := loadConfigFrom(filepath.Join(dir, "missing.yaml")); cfg.Backend != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("search: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if cfg := loadConfigFrom(bad); cfg.Search != nil {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}
