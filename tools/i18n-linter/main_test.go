// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFlattenYAML(t *testing.T) {
	m := map[string]any{
		"top": map[string]any{
			"sub":    "value",
			"plural": map[string]any{"one": "a key", "other": "{{.Count}} keys"},
		},
		"flat.id": "v",
	}
	keys := make(map[string]struct{})
	flattenYAML("", m, keys)
	for _, want := range []string{"top.sub", "top.plural", "flat.id"} {
		if _, ok := keys[want]; !ok {
			t.Fatalf("expected %s in %v", want, keys)
		}
	}
	if _, ok := keys["top.plural.other"]; ok {
		t.Fatalf("plural forms must not become separate ids")
	}
}

func TestLint(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "a.go"), `package pkg

import "example.com/i18n"

func f(role string) {
	_ = i18n.T("used.ok")
	_ = i18n.T("used.undefined", "Key", 1)
	_ = i18n.T("dyn.role_" + role)
}
`)
	writeFile(t, filepath.Join(root, "pkg", "a_test.go"), `package pkg

func g() { _ = i18n.T("only.in.tests") }
`)
	dir := filepath.Join(root, "locales")
	writeFile(t, filepath.Join(dir, primaryLocale), "used.ok: ok\ndyn.role_admin: admin\nunused: x\n")
	writeFile(t, filepath.Join(dir, "active.de.yaml"), "used.ok: ok\nunused: x\n")

	r, err := lint(root, dir)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if _, ok := r.Undefined["used.undefined"]; !ok || len(r.Undefined) != 1 {
		t.Fatalf("undefined = %v", r.Undefined)
	}
	if loc := r.Undefined["used.undefined"]; loc.Line != 7 {
		t.Fatalf("location = %+v", loc)
	}
	if got := r.Missing["active.de.yaml"]; len(got) != 1 || got[0] != "dyn.role_admin" {
		t.Fatalf("missing = %v", r.Missing)
	}
	if len(r.Orphaned) != 1 || r.Orphaned[0] != "unused" {
		t.Fatalf("orphaned = %v", r.Orphaned)
	}
	if !r.failed() {
		t.Fatalf("expected failed report")
	}
}

func TestLint_RepositoryCatalogs(t *testing.T) {
	root := filepath.Join("..", "..")
	r, err := lint(root, filepath.Join(root, localesDir))
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if r.failed() {
		t.Fatalf("catalogs inconsistent: undefined=%v missing=%v", r.Undefined, r.Missing)
	}
}
