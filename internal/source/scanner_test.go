package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestScan(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"readme.md":           "# Readme",
		"guide/install.md":    "# Install",
		"guide/advanced.mdx":  "# Advanced",
		"guide/image.png":     "binary",
		".obsidian/config.md": "hidden dir",
		"node_modules/x/y.md": "dependency",
		"notes.txt":           "not markdown",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}

	found, err := Scan(context.Background(), dir)
	if err != nil {
		t.Fatalf("Scan() unexpected error: %v", err)
	}

	got := make(map[string]bool)
	for _, f := range found {
		got[f.RelPath] = true
		if !filepath.IsAbs(f.AbsPath) {
			t.Errorf("AbsPath %q is not absolute", f.AbsPath)
		}
	}

	want := []string{"readme.md", "guide/install.md", "guide/advanced.mdx"}
	if len(got) != len(want) {
		t.Errorf("Scan() found %d files, want %d: %v", len(got), len(want), got)
	}
	for _, rel := range want {
		if !got[rel] {
			t.Errorf("Scan() missing %q", rel)
		}
	}
}

func TestScan_MissingDir(t *testing.T) {
	if _, err := Scan(context.Background(), "/does/not/exist"); err == nil {
		t.Fatal("Scan() expected error for missing directory, got nil")
	}
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Scan(ctx, t.TempDir()); err == nil {
		t.Fatal("Scan() expected error for cancelled context, got nil")
	}
}
