// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Target specifies all function that are needed to be implemented to unpack
// the entries of an archive container.
type Target interface {
	// CreateFile creates a file at the specified path with src as content. The mode parameter is the file mode that
	// should be set on the file. If the file already exists and overwrite is false, an error should be returned. If the
	// file does not exist, it should be created. The size of the file should not exceed maxSize. If the file is created
	// successfully, the number of bytes written should be returned. If an error occurs, the number of bytes written
	// should be returned along with the error. If maxSize < 0, the file size is not limited.
	CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error)

	// CreateDir creates at the specified path with the specified mode. If the directory already exists, nothing is done.
	CreateDir(path string, mode fs.FileMode) error

	// Lstat see docs for os.Lstat. Main purpose is to check for symlinks in the
	// extraction path and for path traversal.
	Lstat(path string) (fs.FileInfo, error)
}

// entryPath converts an archive entry name into a platform specific relative
// path. Both slash and backslash separate path elements in entry names.
func entryPath(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	return filepath.Join(strings.Split(name, "/")...)
}

// createFile is a wrapper around the CreateFile function
//
// If the name is empty, the function returns an error.
//
// If the directory for the file does not exist, it will be created with the config.CustomCreateDirMode().
//
// If the path contains path traversal or a symlink, the function returns an error.
//
// If the file is created successfully, the function returns the number of bytes written and nil.
func createFile(t Target, dst string, name string, src io.Reader, mode fs.FileMode, maxSize int64, cfg *Config) (int64, error) {
	// check if a name is provided
	if len(name) == 0 {
		return 0, fmt.Errorf("cannot create file without name")
	}
	name = entryPath(name)

	// ensures that the directory exists and is safe to write to
	if err := createDir(t, dst, filepath.Dir(name), cfg.CustomCreateDirMode(), cfg); err != nil {
		return 0, fmt.Errorf("cannot create directory: %w", err)
	}

	// ensure that if the file exist that it is not a symlink
	if err := securityCheck(t, dst, name); err != nil {
		return 0, fmt.Errorf("security check path failed: %w", err)
	}
	return t.CreateFile(filepath.Join(dst, name), src, mode, cfg.Overwrite(), maxSize)
}

// createDir is a wrapper around the CreateDir function
//
// If dst does not exist, it is created when config.CreateDestination() is set.
//
// If the path contains path traversal or a symlink, the function returns an error.
//
// If the directory is created successfully, the function returns nil.
func createDir(t Target, dst string, name string, mode fs.FileMode, cfg *Config) error {
	// check if dst exists
	if len(dst) > 0 {
		if _, err := t.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
			if !cfg.CreateDestination() {
				return fmt.Errorf("destination does not exist: %w", err)
			}
			if err := t.CreateDir(dst, cfg.CustomCreateDirMode()); err != nil {
				return fmt.Errorf("failed to create destination directory: %w", err)
			}
			cfg.Logger().Info("created destination directory", "path", dst)
		}
	}

	name = entryPath(name)

	// no action needed
	if name == "." {
		return nil
	}

	// perform security check to ensure that the path is safe to write to
	if err := securityCheck(t, dst, name); err != nil {
		return fmt.Errorf("security check path failed: %w", err)
	}

	return t.CreateDir(filepath.Join(dst, name), mode)
}

// securityCheck checks if path contains path traversal and if any element
// of path below dst is a symlink.
func securityCheck(t Target, dst string, path string) error {
	// without a destination the path itself must be relative
	if len(dst) == 0 && filepath.IsAbs(path) {
		return fmt.Errorf("%w: absolute path %s", ErrUnsafePath, path)
	}

	path = entryPath(path)

	// get relative path from base to new directory target
	rel, err := filepath.Rel(dst, filepath.Join(dst, path))
	if err != nil {
		return fmt.Errorf("failed to get relative path: %w", err)
	}
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: path traversal in %s", ErrUnsafePath, path)
	}

	// check each dir in path
	elements := strings.Split(path, string(os.PathSeparator))
	for i := range elements {
		subDirs := filepath.Join(elements[0 : i+1]...)
		checkDir := filepath.Join(dst, subDirs)
		if len(checkDir) == 0 || checkDir == "." {
			continue
		}

		symlink, err := isSymlink(t, checkDir)
		if err != nil {
			return fmt.Errorf("failed to check symlink: %w", err)
		}
		if symlink {
			return fmt.Errorf("%w: symlink in path %s", ErrUnsafePath, subDirs)
		}
	}

	return nil
}

// isSymlink checks if path is a symlink. A path that does not exist is not
// a symlink.
func isSymlink(t Target, path string) (bool, error) {
	stat, err := t.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("invalid path: %w", err)
	}
	if stat == nil {
		return false, fmt.Errorf("failed to get stats")
	}
	return stat.Mode()&fs.ModeSymlink == fs.ModeSymlink, nil
}
