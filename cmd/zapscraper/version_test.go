package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestGetVersion tests version string resolution.
func TestGetVersion(t *testing.T) {
	t.Run("returns non-empty version", func(t *testing.T) {
		if got := getVersion(); got == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("prefers ldflags value", func(t *testing.T) {
		orig := version
		t.Cleanup(func() { version = orig })

		version = "v1.2.3"
		if got := getVersion(); got != "v1.2.3" {
			t.Errorf("got %q, expected v1.2.3", got)
		}
	})
}

// TestVersionCmd tests the version command output.
func TestVersionCmd(t *testing.T) {
	cmd := NewVersionCmd()

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"zapscraper version", "commit:", "built:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}
