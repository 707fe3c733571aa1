package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URI != "net.tcp://localhost:55321" || cfg.Instance != "default" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReceiveTimeout != 10*time.Second {
		t.Fatalf("unexpected receive timeout: %v", cfg.ReceiveTimeout)
	}
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{"--uri=net.tcp://example.com:1234", "--identity=alice@example.com", "--trace"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URI != "net.tcp://example.com:1234" || cfg.Identity != "alice@example.com" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.TraceEnabled {
		t.Fatalf("expected trace enabled")
	}
}

func TestLoad_ConfigFileAppliesOnlyDefinedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limec.toml")
	content := `
uri = "net.tcp://fromfile:9000"
instance = "fromfile"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load([]string{"--config=" + path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URI != "net.tcp://fromfile:9000" || cfg.Instance != "fromfile" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	// Compression wasn't mentioned in the file, so the default survives.
	if cfg.Compression != "none" {
		t.Fatalf("expected default compression to survive, got %q", cfg.Compression)
	}
}

func TestLoad_ExplicitFlagOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limec.toml")
	content := `uri = "net.tcp://fromfile:9000"`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load([]string{"--config=" + path, "--uri=net.tcp://fromflag:1111"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URI != "net.tcp://fromflag:1111" {
		t.Fatalf("expected flag to win over file, got %q", cfg.URI)
	}
}

func TestLoad_ReceiveTimeoutFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limec.toml")
	content := `receive_timeout = "30s"`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load([]string{"--config=" + path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReceiveTimeout != 30*time.Second {
		t.Fatalf("unexpected receive timeout: %v", cfg.ReceiveTimeout)
	}
}

func TestLoad_MissingConfigFileFails(t *testing.T) {
	if _, err := Load([]string{"--config=/nonexistent/limec.toml"}); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
