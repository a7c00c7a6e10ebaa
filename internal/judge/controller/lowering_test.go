package controller

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyTreeCopiesFilesAndPreservesStructure(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.MkdirAll(filepath.Join(src, "bin"), 0755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "root.txt"), []byte("root"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "bin", "gxx"), []byte("binary"), 0755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := copyTree(src, dst); err != nil {
		t.Fatalf("copyTree: %v", err)
	}

	rootData, err := os.ReadFile(filepath.Join(dst, "root.txt"))
	if err != nil || string(rootData) != "root" {
		t.Fatalf("root.txt copy: data=%q err=%v", rootData, err)
	}
	nestedData, err := os.ReadFile(filepath.Join(dst, "bin", "gxx"))
	if err != nil || string(nestedData) != "binary" {
		t.Fatalf("bin/gxx copy: data=%q err=%v", nestedData, err)
	}

	info, err := os.Stat(filepath.Join(dst, "bin", "gxx"))
	if err != nil {
		t.Fatalf("stat copied file: %v", err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Fatalf("copied executable must keep its execute bit, got mode %v", info.Mode())
	}
}

func TestCopyTreeOverwritesExistingDestination(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "f.txt"), []byte("new"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dst, "f.txt"), []byte("stale-leftover-content"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := copyTree(src, dst); err != nil {
		t.Fatalf("copyTree: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "f.txt"))
	if err != nil || string(got) != "new" {
		t.Fatalf("f.txt = %q, want truncated-and-overwritten to %q (err=%v)", got, "new", err)
	}
}
