package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/qtest/qtest-go/internal/config"
	"github.com/qtest/qtest-go/qtestprotocol"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("QTEST_ADDRESS", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(tempHome, ".config", "qtest", "config.toml") {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}

	if cfg.Transport.Kind != config.TransportUnix {
		t.Fatalf("unexpected transport kind: %q", cfg.Transport.Kind)
	}
	if cfg.Transport.Address != qtestprotocol.CurrentSocketPath() {
		t.Fatalf("unexpected default address: %q", cfg.Transport.Address)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "auto" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.REPL.HistoryFile != filepath.Join(tempHome, ".qtest_history") {
		t.Fatalf("unexpected history file: %q", cfg.REPL.HistoryFile)
	}
	if cfg.REPL.HistoryLimit != 500 {
		t.Fatalf("unexpected history limit: %d", cfg.REPL.HistoryLimit)
	}
}

func TestLoadFromFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg := config.Default()
	cfg.Transport.Kind = "TCP"
	cfg.Transport.Address = "127.0.0.1:4444"
	cfg.Logging.Level = "DEBUG"
	cfg.Logging.Format = "json"
	cfg.REPL.HistoryFile = "~/hist"
	cfg.QEMU.Binary = "qemu-system-arm"
	cfg.QEMU.Args = []string{"-M", "netduino2"}

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "qtest.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %q to be loaded, got %q (exists=%v)", path, resolved, exists)
	}
	if loaded.Transport.Kind != config.TransportTCP || loaded.Transport.Address != "127.0.0.1:4444" {
		t.Fatalf("unexpected transport: %+v", loaded.Transport)
	}
	if loaded.Logging.Level != "debug" {
		t.Fatalf("level not normalized: %q", loaded.Logging.Level)
	}
	if loaded.REPL.HistoryFile != filepath.Join(tempHome, "hist") {
		t.Fatalf("history path not expanded: %q", loaded.REPL.HistoryFile)
	}
	if strings.Join(loaded.QEMU.Args, " ") != "-M netduino2" {
		t.Fatalf("unexpected qemu args: %v", loaded.QEMU.Args)
	}
}

func TestLoadTCPDefaultAddress(t *testing.T) {
	t.Setenv("QTEST_ADDRESS", "")
	path := filepath.Join(t.TempDir(), "qtest.toml")
	if err := os.WriteFile(path, []byte("[transport]\nkind = \"tcp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Transport.Address != qtestprotocol.DefaultTCPAddress {
		t.Fatalf("unexpected tcp address: %q", cfg.Transport.Address)
	}
}

func TestLoadAddressFromEnv(t *testing.T) {
	t.Setenv("QTEST_ADDRESS", "/tmp/qtest-env.sock")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Transport.Address != "/tmp/qtest-env.sock" {
		t.Fatalf("expected env address, got %q", cfg.Transport.Address)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"Bad kind", "[transport]\nkind = \"serial\"\n", "transport.kind"},
		{"Bad level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"Bad format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"Unknown key", "[transport]\nport = 3000\n", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "qtest.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
