package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadLocalImageReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "block0.img")
	if err := os.WriteFile(path, []byte("image bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	data, err := loadLocalImage(path)
	if err != nil {
		t.Fatalf("loadLocalImage: %v", err)
	}
	if string(data) != "image bytes" {
		t.Fatalf("unexpected image bytes: %q", data)
	}
}

func TestLoadLocalImageMissingFile(t *testing.T) {
	if _, err := loadLocalImage("/nonexistent/block0.img"); err == nil {
		t.Fatalf("expected an error reading a nonexistent image file")
	}
}
