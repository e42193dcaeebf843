package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestQtestChardev(t *testing.T) {
	tests := []struct {
		kind, address, want string
	}{
		{"unix", "/tmp/qtest-1.sock", "unix:/tmp/qtest-1.sock"},
		{"tcp", "localhost:3000", "tcp:localhost:3000"},
	}
	for _, tc := range tests {
		if got := qtestChardev(tc.kind, tc.address); got != tc.want {
			t.Errorf("qtestChardev(%q, %q) = %q, want %q", tc.kind, tc.address, got, tc.want)
		}
	}
}

func TestQEMUArgs(t *testing.T) {
	user := make([]string, 2, 8)
	user[0], user[1] = "-M", "netduino2"

	got := qemuArgs(user, "unix", "/tmp/q.sock")
	want := []string{"-M", "netduino2", "-qtest", "unix:/tmp/q.sock"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("qemuArgs = %q, want %q", got, want)
	}

	// The caller's backing array must not be written to.
	if spare := user[:4]; spare[2] != "" || spare[3] != "" {
		t.Errorf("qemuArgs modified the caller's slice: %q", spare)
	}

	if got := qemuArgs(nil, "tcp", "localhost:3000"); !reflect.DeepEqual(got, []string{"-qtest", "tcp:localhost:3000"}) {
		t.Errorf("qemuArgs(nil) = %q", got)
	}
}

func TestFindQEMUExecutable(t *testing.T) {
	dir := t.TempDir()

	exe := filepath.Join(dir, "qemu-fake")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	plain := filepath.Join(dir, "not-exec")
	if err := os.WriteFile(plain, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("explicit path", func(t *testing.T) {
		got, err := findQEMUExecutable(exe)
		if err != nil || got != exe {
			t.Errorf("findQEMUExecutable(%q) = %q, %v", exe, got, err)
		}
	})

	t.Run("explicit path not executable", func(t *testing.T) {
		if _, err := findQEMUExecutable(plain); err == nil {
			t.Error("expected an error for a non-executable file")
		}
	})

	t.Run("from PATH", func(t *testing.T) {
		t.Setenv("PATH", dir)
		got, err := findQEMUExecutable("qemu-fake")
		if err != nil || got != exe {
			t.Errorf("findQEMUExecutable(qemu-fake) = %q, %v", got, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv("PATH", dir)
		t.Setenv("HOME", dir)
		if _, err := findQEMUExecutable("qemu-system-does-not-exist"); err == nil {
			t.Error("expected an error for a missing binary")
		}
	})
}

func TestIsExecutable(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "x")
	if err := os.WriteFile(exe, nil, 0o700); err != nil {
		t.Fatal(err)
	}

	if !isExecutable(exe) {
		t.Error("0700 file should be executable")
	}
	if isExecutable(dir) {
		t.Error("directories are not executable files")
	}
	if isExecutable(filepath.Join(dir, "missing")) {
		t.Error("missing file reported executable")
	}
}

func TestStopQEMUNil(t *testing.T) {
	// Must not panic.
	stopQEMU(nil)
}
