// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

package pathcheck

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRejectsRelative(t *testing.T) {
	for _, path := range []string{"etc/passwd", "../etc/passwd", "./file", ""} {
		if err := Validate(path); !errors.Is(err, ErrRelative) {
			t.Errorf("Validate(%q) = %v, want ErrRelative", path, err)
		}
	}
}

func TestValidateRejectsParentSegment(t *testing.T) {
	for _, path := range []string{"/var/../etc/passwd", "/..", "/home/user/..", "/a/../../b"} {
		if err := Validate(path); !errors.Is(err, ErrParentSegment) {
			t.Errorf("Validate(%q) = %v, want ErrParentSegment", path, err)
		}
	}
}

func TestValidateAllowsDotsInNames(t *testing.T) {
	// ".." as a substring of a name is not a parent-directory segment.
	for _, path := range []string{"/var/log/app..log", "/data/a..b/file"} {
		if err := Validate(path); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", path, err)
		}
	}
}

func TestValidateRejectsNullByte(t *testing.T) {
	if err := Validate("/etc/pass\x00wd"); !errors.Is(err, ErrNullByte) {
		t.Fatalf("Validate = %v, want ErrNullByte", err)
	}
}

func TestValidateAcceptsAbsolute(t *testing.T) {
	if err := Validate("/etc/hostname"); err != nil {
		t.Fatalf("Validate(/etc/hostname) = %v", err)
	}
}

func TestReadFileNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.txt")
	_, err := ReadFile(missing, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadFile = %v, want ErrNotFound", err)
	}
}

func TestReadFileRejectsDirectory(t *testing.T) {
	_, err := ReadFile(t.TempDir(), 0)
	if !errors.Is(err, ErrNotRegularFile) {
		t.Fatalf("ReadFile(dir) = %v, want ErrNotRegularFile", err)
	}
}

func TestReadFileRejectsSymlink(t *testing.T) {
	directory := t.TempDir()
	target := filepath.Join(directory, "target.txt")
	if err := os.WriteFile(target, []byte("secret"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	link := filepath.Join(directory, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := ReadFile(link, 0)
	if !errors.Is(err, ErrNotRegularFile) {
		t.Fatalf("ReadFile(symlink) = %v, want ErrNotRegularFile", err)
	}
}

func TestReadFileWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	payload := []byte("hello, bridge\n")
	if err := os.WriteFile(path, payload, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := ReadFile(path, 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(result.Content, payload) {
		t.Fatalf("Content = %q, want %q", result.Content, payload)
	}
	if result.FileSize != int64(len(payload)) {
		t.Fatalf("FileSize = %d, want %d", result.FileSize, len(payload))
	}
	if result.Truncated {
		t.Fatal("Truncated should be false for a full read")
	}
}

func TestReadFileTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	payload := bytes.Repeat([]byte("x"), 1000)
	if err := os.WriteFile(path, payload, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := ReadFile(path, 100)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(result.Content) != 100 {
		t.Fatalf("len(Content) = %d, want 100", len(result.Content))
	}
	if result.FileSize != 1000 {
		t.Fatalf("FileSize = %d, want 1000", result.FileSize)
	}
	if !result.Truncated {
		t.Fatal("Truncated should be true when the file exceeds the bound")
	}
}

func TestReadFileValidatesFirst(t *testing.T) {
	// Syntactic rejection happens before any filesystem access, so even
	// a path that would not exist reports the validation error.
	_, err := ReadFile("../nope", 0)
	if !errors.Is(err, ErrRelative) {
		t.Fatalf("ReadFile = %v, want ErrRelative", err)
	}
}
