package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/danmuck/redclient/internal/config"
)

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subctl.toml")
	if err := config.WriteTemplate(path, "subscriber", false); err != nil {
		t.Fatalf("write template: %v", err)
	}

	cfg, err := resolveConfig(path, overrides{port: 6390, channels: "alerts, ,news"})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.Host != "127.0.0.1" {
		t.Fatalf("unexpected host: %q", cfg.Host)
	}
	if cfg.Port != 6390 {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
	if !reflect.DeepEqual(cfg.Channels, []string{"alerts", "news"}) {
		t.Fatalf("unexpected channels: %+v", cfg.Channels)
	}
	if cfg.AdminAddr != "127.0.0.1:7070" {
		t.Fatalf("unexpected admin addr: %q", cfg.AdminAddr)
	}
}

func TestResolveConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := resolveConfig("", overrides{})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.Port != 6379 || len(cfg.Channels) != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestResolveConfigRejectsInvalid(t *testing.T) {
	if _, err := resolveConfig("", overrides{port: -4}); err == nil {
		t.Fatalf("expected invalid port error")
	}
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = \"x\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := resolveConfig(path, overrides{}); err == nil {
		t.Fatalf("expected decode error")
	}
}
