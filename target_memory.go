// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// TargetMemory is an in-memory [Target]. Entries are keyed by their slash
// separated path and hold the file information and the file data. Permissions
// are recorded but not enforced.
type TargetMemory struct {
	files sync.Map // map[string]*memoryEntry
}

// NewTargetMemory creates a new in-memory target.
func NewTargetMemory() *TargetMemory {
	return &TargetMemory{}
}

// CreateFile creates a new file in the in-memory filesystem. If overwrite is
// false and the file already exists, an error is returned. The maxSize
// parameter limits the size of the file, -1 disables the limit.
func (m *TargetMemory) CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	if !fs.ValidPath(path) {
		return 0, &fs.PathError{Op: "create", Path: path, Err: fs.ErrInvalid}
	}
	if !overwrite {
		if _, ok := m.files.Load(path); ok {
			return 0, fmt.Errorf("%w: %s", fs.ErrExist, path)
		}
	}

	var buf bytes.Buffer
	n, err := io.Copy(limitWriter(&buf, maxSize), src)
	if err != nil {
		return n, err
	}

	m.files.Store(path, &memoryEntry{
		info: &memoryFileInfo{name: filepath.Base(path), size: n, mode: mode.Perm(), modTime: now()},
		data: buf.Bytes(),
	})
	return n, nil
}

// CreateDir creates a new directory in the in-memory filesystem. If the
// directory already exists, nothing is done.
func (m *TargetMemory) CreateDir(path string, mode fs.FileMode) error {
	if !fs.ValidPath(path) {
		return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrInvalid}
	}
	if _, ok := m.files.Load(path); ok {
		return nil
	}
	m.files.Store(path, &memoryEntry{
		info: &memoryFileInfo{name: filepath.Base(path), mode: mode.Perm() | fs.ModeDir, modTime: now()},
	})
	return nil
}

// Lstat returns the FileInfo for the given path.
func (m *TargetMemory) Lstat(path string) (fs.FileInfo, error) {
	if !fs.ValidPath(path) {
		return nil, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrInvalid}
	}
	if e, ok := m.files.Load(path); ok {
		return e.(*memoryEntry).info, nil
	}
	return nil, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrNotExist}
}

// Open opens the named file for reading. Directories cannot be opened.
func (m *TargetMemory) Open(path string) (fs.File, error) {
	if !fs.ValidPath(path) {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrInvalid}
	}
	e, ok := m.files.Load(path)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	me := e.(*memoryEntry)
	if me.info.IsDir() {
		return nil, fmt.Errorf("cannot open directory: %s", path)
	}
	return &memoryFile{info: me.info, r: bytes.NewReader(me.data)}, nil
}

// ReadFile returns the content of the named file.
func (m *TargetMemory) ReadFile(path string) ([]byte, error) {
	f, err := m.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Paths returns the paths of all entries in lexical order.
func (m *TargetMemory) Paths() []string {
	var paths []string
	m.files.Range(func(key, _ any) bool {
		paths = append(paths, key.(string))
		return true
	})
	sort.Strings(paths)
	return paths
}

// memoryEntry is an entry in the in-memory filesystem
type memoryEntry struct {
	info *memoryFileInfo
	data []byte
}

// memoryFile is an open file of the in-memory filesystem
type memoryFile struct {
	info *memoryFileInfo
	r    *bytes.Reader
}

func (f *memoryFile) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

func (f *memoryFile) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *memoryFile) Close() error {
	return nil
}

// memoryFileInfo is a FileInfo implementation for the in-memory filesystem
type memoryFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (fi *memoryFileInfo) Name() string       { return fi.name }
func (fi *memoryFileInfo) Size() int64        { return fi.size }
func (fi *memoryFileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi *memoryFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *memoryFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *memoryFileInfo) Sys() any           { return nil }
