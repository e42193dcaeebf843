package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/qtest/qtest-go/internal/config"
)

func TestApplyFlagOverrides(t *testing.T) {
	tests := []struct {
		name  string
		start config.Config
		flags flagValues
		check func(t *testing.T, cfg config.Config)
	}{
		{
			name:  "no flags keeps config",
			start: config.Config{Transport: config.Transport{Kind: "unix", Address: "/tmp/a.sock"}},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.Transport.Address != "/tmp/a.sock" {
					t.Errorf("address = %q", cfg.Transport.Address)
				}
			},
		},
		{
			name:  "switching kind drops the other kind's address",
			start: config.Config{Transport: config.Transport{Kind: "unix", Address: "/tmp/a.sock"}},
			flags: flagValues{transport: "tcp"},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.Transport.Kind != "tcp" || cfg.Transport.Address != "" {
					t.Errorf("transport = %+v", cfg.Transport)
				}
			},
		},
		{
			name:  "switching kind with explicit address",
			start: config.Config{Transport: config.Transport{Kind: "unix", Address: "/tmp/a.sock"}},
			flags: flagValues{transport: "tcp", address: "127.0.0.1:4000"},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.Transport.Kind != "tcp" || cfg.Transport.Address != "127.0.0.1:4000" {
					t.Errorf("transport = %+v", cfg.Transport)
				}
			},
		},
		{
			name:  "logging and qemu",
			start: config.Default(),
			flags: flagValues{logLevel: "debug", logFormat: "json", qemu: "qemu-system-arm", qemuArgs: []string{"-M", "netduino2"}},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
					t.Errorf("logging = %+v", cfg.Logging)
				}
				if cfg.QEMU.Binary != "qemu-system-arm" || !reflect.DeepEqual(cfg.QEMU.Args, []string{"-M", "netduino2"}) {
					t.Errorf("qemu = %+v", cfg.QEMU)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.start
			applyFlagOverrides(&cfg, &tc.flags)
			tc.check(t, cfg)
		})
	}
}

func TestTransportFactory(t *testing.T) {
	for _, kind := range []string{config.TransportUnix, config.TransportTCP} {
		if f, err := transportFactory(kind); err != nil || f == nil {
			t.Errorf("transportFactory(%q) = %v, %v", kind, f, err)
		}
	}
	if _, err := transportFactory("serial"); err == nil {
		t.Error("transportFactory(serial) should fail")
	}
}

func TestEnsureConfigFromFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("QTEST_ADDRESS", "")

	path := filepath.Join(t.TempDir(), "qtest.toml")
	data := `
[transport]
kind = "tcp"
address = "127.0.0.1:5555"

[logging]
level = "debug"
format = "json"

[qemu]
binary = "qemu-system-arm"
args = ["-M", "netduino2"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cc := newCommandContext(&flagValues{config: path, logLevel: "warn"})
	cfg, err := cc.ensureConfig()
	if err != nil {
		t.Fatalf("ensureConfig: %v", err)
	}
	if cfg.Transport.Kind != "tcp" || cfg.Transport.Address != "127.0.0.1:5555" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, want the flag value", cfg.Logging.Level)
	}
	if cc.logger == nil {
		t.Error("logger not built")
	}
	if !cc.launchQEMU() {
		t.Error("configured qemu args should enable launching")
	}

	// Loaded once.
	again, _ := cc.ensureConfig()
	if again != cfg {
		t.Error("ensureConfig should return the cached config")
	}
}

func TestEnsureConfigRejectsBadFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cc := newCommandContext(&flagValues{logFormat: "xml"})
	if _, err := cc.ensureConfig(); err == nil {
		t.Fatal("expected validation error for log format xml")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--log-format", "xml"})

	// version skips config loading, so the invalid flag value is ignored.
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != fullTitle() {
		t.Errorf("version output = %q, want %q", got, fullTitle())
	}
}

func TestWelcomeBanner(t *testing.T) {
	banner := welcomeBanner("/tmp/qtest-1.sock")
	for _, want := range []string{fullTitle(), "/tmp/qtest-1.sock", ".help", ".quit"} {
		if !strings.Contains(banner, want) {
			t.Errorf("banner missing %q:\n%s", want, banner)
		}
	}
}
