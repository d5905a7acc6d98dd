// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Package pathcheck validates caller-supplied filesystem paths and
// performs bounded file reads for the bridge's file proxy endpoint.
//
// Validation is purely syntactic and runs before any filesystem call:
// only absolute paths with no parent-directory segments and no
// embedded null bytes are accepted. The read path then requires the
// target to be an existing regular file (symlinks, directories, and
// device nodes are rejected) and returns at most the requested number
// of bytes, flagging truncation instead of failing on large files.
package pathcheck

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors, testable with errors.Is. The server maps the first
// three to "path invalid" responses and the last two to "not found"
// responses.
var (
	ErrRelative       = errors.New("path must be absolute")
	ErrParentSegment  = errors.New("path contains a parent-directory segment")
	ErrNullByte       = errors.New("path contains a null byte")
	ErrNotFound       = errors.New("file not found")
	ErrNotRegularFile = errors.New("path is not a regular file")
)

// DefaultMaxBytes bounds a file read when the caller does not supply
// a limit: 1 MB.
const DefaultMaxBytes = 1 << 20

// Validate checks a caller-supplied path syntactically. The rules are
// applied in order: absolute path required, no ".." segment anywhere,
// no embedded null byte. Validate never touches the filesystem.
func Validate(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", ErrRelative, path)
	}
	for _, segment := range strings.Split(path, string(filepath.Separator)) {
		if segment == ".." {
			return fmt.Errorf("%w: %q", ErrParentSegment, path)
		}
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w", ErrNullByte)
	}
	return nil
}

// FileContent is the result of a bounded read.
type FileContent struct {
	// Content holds at most the requested number of bytes.
	Content []byte

	// FileSize is the full size of the file on disk, which may exceed
	// len(Content) when Truncated is set.
	FileSize int64

	// Truncated reports that the file was larger than the read bound
	// and Content holds only the leading prefix.
	Truncated bool
}

// ReadFile validates path and reads up to maxBytes bytes from it.
// A maxBytes of zero or less applies DefaultMaxBytes. Files larger
// than the bound are returned truncated rather than rejected.
//
// The target must be an existing regular file. Lstat is used so that
// symlinks are rejected rather than followed — the bridge proxies
// reads for a remote caller and must not let a link walk it out of
// the visible tree.
func ReadFile(path string, maxBytes int64) (FileContent, error) {
	if err := Validate(path); err != nil {
		return FileContent{}, err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileContent{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return FileContent{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return FileContent{}, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return FileContent{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return FileContent{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return FileContent{
		Content:   content,
		FileSize:  info.Size(),
		Truncated: info.Size() > maxBytes,
	}, nil
}
