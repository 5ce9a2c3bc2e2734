// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/keyguard/internal/eeprom"
	"github.com/toeirei/keyguard/internal/i18n"
)

const (
	adminHex = "FFFFFFFFFFFFFFFFFFFFFFFF"
	userHex  = "01:02:03:04:05:06:07:08:09:0A:0B:0C"
	userKey  = "0102030405060708090A0B0C"
)

// writeTestConfig creates an isolated config using file storage in a temp dir.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	t.Setenv("SSH_AUTH_SOCK", "")
	i18n.Init("en")

	data := fmt.Sprintf(`storage:
  type: file
  path: %q
log_level: error
%s`, filepath.Join(tmp, "door.eeprom"), extra)
	path := filepath.Join(tmp, "keyguard.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	verbose = false
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestStatus_FirstStartSeeds(t *testing.T) {
	cfg := writeTestConfig(t, "")
	out, err := runCLI(t, cfg, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Trusted keys: 2 (2 admin)") || !strings.Contains(out, "initialized") {
		t.Fatalf("unexpected status output:\n%s", out)
	}

	out, err = runCLI(t, cfg, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if strings.Contains(out, "initialized") {
		t.Fatalf("second start reported seeding:\n%s", out)
	}
}

func TestCheck_ExitCodes(t *testing.T) {
	cfg := writeTestConfig(t, "")

	out, err := runCLI(t, cfg, "check", adminHex)
	if err != nil {
		t.Fatalf("check admin: %v", err)
	}
	if !strings.Contains(out, "Access granted") || !strings.Contains(out, "admin key") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out, err = runCLI(t, cfg, "check", userHex)
	if ExitCode(err) != 2 {
		t.Fatalf("exit code = %d (%v), want 2", ExitCode(err), err)
	}
	if !strings.Contains(out, "Access denied: "+userKey) {
		t.Fatalf("unexpected output:\n%s", out)
	}

	if _, err := runCLI(t, cfg, "check", "0102"); err == nil || ExitCode(err) != 1 {
		t.Fatalf("expected width error, got %v", err)
	}
}

func TestAdd_Enrollment(t *testing.T) {
	cfg := writeTestConfig(t, "")

	if _, err := runCLI(t, cfg, "add", userHex); err == nil || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("expected refusal without --admin, got %v", err)
	}
	if _, err := runCLI(t, cfg, "add", userHex, "--admin", "AAAAAAAAAAAAAAAAAAAAAAAA"); err == nil || !strings.Contains(err.Error(), "not an admin") {
		t.Fatalf("expected non-admin refusal, got %v", err)
	}

	out, err := runCLI(t, cfg, "add", userHex, "--admin", adminHex)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Added key "+userKey) {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if _, err := runCLI(t, cfg, "check", userKey); err != nil {
		t.Fatalf("enrolled key not granted: %v", err)
	}

	out, err = runCLI(t, cfg, "add", userHex, "--force")
	if err != nil || !strings.Contains(out, "already trusted") {
		t.Fatalf("duplicate add: %v\n%s", err, out)
	}

	out, _ = runCLI(t, cfg, "status")
	if !strings.Contains(out, "Trusted keys: 3") {
		t.Fatalf("duplicate was stored:\n%s", out)
	}
}

func TestList_Formats(t *testing.T) {
	cfg := writeTestConfig(t, "")
	if _, err := runCLI(t, cfg, "add", userHex, "--force"); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := runCLI(t, cfg, "list", "--format", "json")
	if err != nil {
		t.Fatalf("list json: %v", err)
	}
	var entries []listEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(entries) != 3 || entries[0].Role != "admin" || entries[2].Role != "user" || entries[2].Key != userKey {
		t.Fatalf("entries = %+v", entries)
	}

	out, err = runCLI(t, cfg, "list", "-f", "yaml")
	if err != nil {
		t.Fatalf("list yaml: %v", err)
	}
	if !strings.Contains(out, "role: admin") || !strings.Contains(out, "key: "+userKey) {
		t.Fatalf("unexpected yaml:\n%s", out)
	}

	out, err = runCLI(t, cfg, "list")
	if err != nil {
		t.Fatalf("list text: %v", err)
	}
	if !strings.Contains(out, "ROLE") || !strings.Contains(out, userKey) {
		t.Fatalf("unexpected text:\n%s", out)
	}

	if _, err := runCLI(t, cfg, "list", "--format", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestKeygen_Copy(t *testing.T) {
	cfg := writeTestConfig(t, "")
	var copied string
	orig := clipboardWrite
	clipboardWrite = func(s string) error { copied = s; return nil }
	defer func() { clipboardWrite = orig }()

	out, err := runCLI(t, cfg, "keygen", "--copy")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if len(copied) != 24 || !strings.Contains(out, copied) || !strings.Contains(out, "Copied") {
		t.Fatalf("copied %q, output:\n%s", copied, out)
	}

	clipboardWrite = func(string) error { return errors.New("no display") }
	if _, err := runCLI(t, cfg, "keygen", "-c"); err == nil {
		t.Fatalf("expected clipboard error")
	}
}

func TestBackupRestore(t *testing.T) {
	cfg := writeTestConfig(t, "")
	if _, err := runCLI(t, cfg, "add", userHex, "--force"); err != nil {
		t.Fatalf("add: %v", err)
	}
	file := filepath.Join(filepath.Dir(cfg), "door.kgb")
	out, err := runCLI(t, cfg, "backup", file)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !strings.Contains(out, "3 keys") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if info, err := os.Stat(file); err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("backup file: %v %v", info, err)
	}

	if _, err := runCLI(t, cfg, "add", "AA:BB:CC:DD:EE:FF:00:11:22:33:44:55", "--force"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err = runCLI(t, cfg, "restore", file)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !strings.Contains(out, "Restored 3 keys") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if _, err := runCLI(t, cfg, "check", "AABBCCDDEEFF001122334455"); ExitCode(err) != 2 {
		t.Fatalf("key added after backup survived restore: %v", err)
	}
}

func TestRestore_LayoutMismatch(t *testing.T) {
	cfg := writeTestConfig(t, "")
	file := filepath.Join(filepath.Dir(cfg), "door.kgb")
	if _, err := runCLI(t, cfg, "backup", file); err != nil {
		t.Fatalf("backup: %v", err)
	}

	other := writeTestConfig(t, "layout:\n  guard: kg2\n")
	if _, err := runCLI(t, other, "restore", file); err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Fatalf("expected layout mismatch, got %v", err)
	}
}

func TestImages_SQLite(t *testing.T) {
	tmp := t.TempDir()
	cfg := writeTestConfig(t, "")
	data := fmt.Sprintf("storage:\n  type: sqlite\n  dsn: %q\n  name: front\nlog_level: error\n", filepath.Join(tmp, "kg.db"))
	if err := os.WriteFile(cfg, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := runCLI(t, cfg, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	out, err := runCLI(t, cfg, "images")
	if err != nil {
		t.Fatalf("images: %v", err)
	}
	if strings.TrimSpace(out) != "front" {
		t.Fatalf("images output = %q", out)
	}
}

func TestImages_RequiresDatabase(t *testing.T) {
	cfg := writeTestConfig(t, "")
	if _, err := runCLI(t, cfg, "images"); err == nil {
		t.Fatalf("expected error for file storage")
	}
}

func TestStorageFlagOverride(t *testing.T) {
	cfg := writeTestConfig(t, "")
	out, err := runCLI(t, cfg, "--storage.type", "memory", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Storage: memory") {
		t.Fatalf("flag override ignored:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(cfg), "door.eeprom")); !os.IsNotExist(err) {
		t.Fatalf("file storage touched despite memory override: %v", err)
	}
}

func TestStorageTimeout(t *testing.T) {
	cfg := writeTestConfig(t, "")
	if _, err := runCLI(t, cfg, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if appConfig.Storage.Timeout != eeprom.DefaultIOTimeout {
		t.Fatalf("default storage.timeout = %s", appConfig.Storage.Timeout)
	}

	if _, err := runCLI(t, cfg, "--storage.timeout", "2s", "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if appConfig.Storage.Timeout != 2*time.Second {
		t.Fatalf("storage.timeout flag ignored: %s", appConfig.Storage.Timeout)
	}
	s, err := openSession(context.Background(), appConfig)
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.Close()
	if got := s.drv.IOTimeout(); got != 2*time.Second {
		t.Fatalf("driver timeout = %s, want 2s", got)
	}

	if _, err := runCLI(t, cfg, "--storage.timeout=-1s", "status"); err == nil {
		t.Fatalf("expected negative storage.timeout to be rejected")
	}
}

func TestConfigWrite(t *testing.T) {
	cfg := writeTestConfig(t, "")
	out, err := runCLI(t, cfg, "config", "write")
	if err != nil {
		t.Fatalf("config write: %v", err)
	}
	want := filepath.Join(filepath.Dir(cfg), "keyguard", "keyguard.yaml")
	if !strings.Contains(out, want) {
		t.Fatalf("output %q does not name %q", out, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("config not written: %v", err)
	}
}

func TestGermanOutput(t *testing.T) {
	cfg := writeTestConfig(t, "language: de\n")
	defer i18n.Init("en")
	out, err := runCLI(t, cfg, "check", adminHex)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "Zutritt gewährt") {
		t.Fatalf("expected German output:\n%s", out)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatalf("nil error must map to 0")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Fatalf("plain error must map to 1")
	}
	wrapped := fmt.Errorf("outer: %w", &ExitError{Code: 2})
	if ExitCode(wrapped) != 2 {
		t.Fatalf("wrapped ExitError must keep its code")
	}
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "version: ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
