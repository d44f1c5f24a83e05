package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestExportCmd tests the export command.
func TestExportCmd(t *testing.T) {
	t.Parallel()

	t.Run("exports stored listings to CSV", func(t *testing.T) {
		t.Parallel()

		dir := seedHistoryDB(t)
		outputPath := filepath.Join(t.TempDir(), "export.csv")

		out, err := runCommand(t, "export", "--db-dir", dir, "-o", outputPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Exported 1 listing(s)") {
			t.Errorf("unexpected output: %s", out)
		}

		data, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("failed to read export: %v", err)
		}
		csv := string(data)
		for _, want := range []string{"url", "casa-id-123", "Casa no Centro"} {
			if !strings.Contains(csv, want) {
				t.Errorf("CSV missing %q:\n%s", want, csv)
			}
		}
	})

	t.Run("empty database errors", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		// Create an empty database so open succeeds but there is
		// nothing to export.
		seedDir := seedEmptyDB(t, dir)

		_, err := runCommand(t, "export", "--db-dir", seedDir,
			"-o", filepath.Join(t.TempDir(), "export.csv"))
		if err == nil {
			t.Error("expected error for empty database")
		}
	})

	t.Run("missing database errors", func(t *testing.T) {
		t.Parallel()

		_, err := runCommand(t, "export", "--db-dir", t.TempDir(),
			"-o", filepath.Join(t.TempDir(), "export.csv"))
		if err == nil {
			t.Error("expected error for missing database")
		}
	})
}
