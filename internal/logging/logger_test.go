package logging

import (
	"bytes"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"
)

// TestLoggingHelpers_WriteToBuffer verifies the package helper functions write
// formatted messages to the package-level logger `L`. The test swaps `L` with
// a buffer-backed logger and restores it afterwards.
func TestLoggingHelpers_WriteToBuffer(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	L.SetLevel(clog.DebugLevel)
	defer func() { L = prev }()

	Debugf("scan %d records", 3)
	Infof("store ready")
	Warnf("commit failed: %v", "flush")
	Errorf("begin: %s", "io")

	out := buf.String()
	for _, want := range []string{"scan 3 records", "store ready", "commit failed: flush", "begin: io"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output: %s", want, out)
		}
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	defer func() { L = prev }()

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel(warn): %v", err)
	}
	Infof("hidden")
	Warnf("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info message leaked at warn level: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn message missing: %s", buf.String())
	}

	if err := SetLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if err := SetLevel(""); err != nil {
		t.Fatalf("empty level should be a no-op, got %v", err)
	}
}
