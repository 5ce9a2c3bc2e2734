// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks that every message id passed to i18n.T exists in the
// primary locale and that every locale carries the same ids. It exits 1 on
// missing ids and only warns about orphaned ones.
package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "active.en.yaml"
	projectRoot   = "."
)

// Location stores the file and line number of a message id use.
type Location struct {
	Filepath string
	Line     int
}

// report is the result of one lint run.
type report struct {
	// Undefined ids are used in code but absent from the primary locale.
	Undefined map[string]Location
	// Missing maps a secondary locale file to the primary ids it lacks.
	Missing map[string][]string
	// Orphaned ids exist in the primary locale but are never used.
	Orphaned []string
}

func (r report) failed() bool {
	if len(r.Undefined) > 0 {
		return true
	}
	for _, ids := range r.Missing {
		if len(ids) > 0 {
			return true
		}
	}
	return false
}

func main() {
	r, err := lint(projectRoot, filepath.Join(projectRoot, localesDir))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}

	ids := make([]string, 0, len(r.Undefined))
	for id := range r.Undefined {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		loc := r.Undefined[id]
		fmt.Printf("undefined: %s (%s:%d)\n", id, loc.Filepath, loc.Line)
	}
	files := make([]string, 0, len(r.Missing))
	for f := range r.Missing {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		for _, id := range r.Missing[f] {
			fmt.Printf("missing in %s: %s\n", f, id)
		}
	}
	for _, id := range r.Orphaned {
		fmt.Printf("orphaned: %s\n", id)
	}

	if r.failed() {
		os.Exit(1)
	}
	fmt.Println("translation files are consistent")
}

// lint compares the ids used under root with the catalogs in dir.
func lint(root, dir string) (report, error) {
	r := report{Missing: map[string][]string{}}

	used, prefixes, err := findUsedKeys(root)
	if err != nil {
		return r, err
	}
	primary, err := loadKeysFromLocale(filepath.Join(dir, primaryLocale))
	if err != nil {
		return r, fmt.Errorf("load primary locale: %w", err)
	}

	r.Undefined = map[string]Location{}
	for id, loc := range used {
		if _, ok := primary[id]; !ok {
			r.Undefined[id] = loc
		}
	}
	for id := range primary {
		if _, ok := used[id]; ok || hasAnyPrefix(id, prefixes) {
			continue
		}
		r.Orphaned = append(r.Orphaned, id)
	}
	sort.Strings(r.Orphaned)

	others, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return r, err
	}
	for _, file := range others {
		if filepath.Base(file) == primaryLocale {
			continue
		}
		keys, err := loadKeysFromLocale(file)
		if err != nil {
			return r, fmt.Errorf("load %s: %w", file, err)
		}
		var missing []string
		for id := range primary {
			if _, ok := keys[id]; !ok {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)
		r.Missing[filepath.Base(file)] = missing
	}
	return r, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// findUsedKeys parses every non-test Go file under root and collects the
// literal first arguments of i18n.T calls. Calls whose id is built as
// "literal" + expr contribute the literal as a prefix.
func findUsedKeys(root string) (map[string]Location, []string, error) {
	keys := map[string]Location{}
	var prefixes []string
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "tools" || name == "_examples" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		file, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			return err
		}
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok || len(call.Args) == 0 || !isTranslateCall(call) {
				return true
			}
			switch arg := call.Args[0].(type) {
			case *ast.BasicLit:
				if id, err := strconv.Unquote(arg.Value); err == nil {
					pos := fset.Position(arg.Pos())
					keys[id] = Location{Filepath: pos.Filename, Line: pos.Line}
				}
			case *ast.BinaryExpr:
				if lit, ok := arg.X.(*ast.BasicLit); ok && arg.Op == token.ADD {
					if p, err := strconv.Unquote(lit.Value); err == nil {
						prefixes = append(prefixes, p)
					}
				}
			}
			return true
		})
		return nil
	})
	return keys, prefixes, err
}

func isTranslateCall(call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "T" {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	return ok && pkg.Name == "i18n"
}

// loadKeysFromLocale reads a YAML catalog and returns its flattened ids.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}

	keys := make(map[string]struct{})
	flattenYAML("", data, keys)
	return keys, nil
}

// flattenYAML converts a nested map into dot-separated ids. A map holding
// an "other" leaf is a plural message and counts as one id.
func flattenYAML(prefix string, node any, keys map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		if _, plural := v["other"]; plural && prefix != "" {
			keys[prefix] = struct{}{}
			return
		}
		for k, val := range v {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenYAML(next, val, keys)
		}
	default:
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
	}
}
