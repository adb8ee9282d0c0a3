// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/hashicorp/go-xcontainer/internal/layout"
)

// ArchiveEntry describes one named entry of an archive container.
type ArchiveEntry struct {
	// Name is the entry name as stored in the name blob
	Name string `json:"name" yaml:"name"`

	// Index is the row of the entry in the entry data table
	Index int `json:"index" yaml:"index"`

	// Offset is the payload offset relative to the data region
	Offset uint32 `json:"offset" yaml:"offset"`

	// Size is the payload size in bytes
	Size uint32 `json:"size" yaml:"size"`

	// Type is the raw entry type, see [EntryTypeDirectory]
	Type uint32 `json:"type" yaml:"type"`

	// Timestamp is the raw entry timestamp
	Timestamp uint32 `json:"timestamp" yaml:"timestamp"`
}

// IsDir returns true if the entry is a directory.
func (e ArchiveEntry) IsDir() bool {
	return e.Type == EntryTypeDirectory
}

// Archive is an open archive container. It owns the file handle and an
// in-memory copy of the header, both entry tables and the name blob.
//
// Metadata changes are kept in memory and written back by [Archive.Close],
// which must be called on every path that ends the use of the archive. See
// [UseArchive] for a helper that guarantees this.
type Archive struct {
	f        *os.File
	path     string
	cfg      *Config
	header   ArchiveHeader
	records  []entryRecord
	index    []nameIndexRecord
	blob     []byte
	entries  []ArchiveEntry
	readOnly bool
	modified bool
	closed   bool
}

// OpenArchive opens an existing archive container for reading and updating.
// A file that cannot be opened for writing is opened read-only; mutating
// calls on such an archive fail with [ErrIO].
func OpenArchive(path string, cfg *Config) (*Archive, error) {
	cfg = orDefault(cfg)

	readOnly := false
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrPermission) {
		readOnly = true
		f, err = os.Open(path)
	}
	if err != nil {
		return nil, ioError("open", path, err)
	}

	a := &Archive{f: f, path: path, cfg: cfg, readOnly: readOnly}
	if err := a.readLayout(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

// CreateArchive creates (or truncates) the file at path and writes an empty
// archive header to it.
func CreateArchive(path string, cfg *Config) (*Archive, error) {
	cfg = orDefault(cfg)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, cfg.CustomFileMode().Perm())
	if err != nil {
		return nil, ioError("create", path, err)
	}

	a := &Archive{
		f:    f,
		path: path,
		cfg:  cfg,
		header: ArchiveHeader{
			Magic:      MagicXIP,
			DataOffset: xipHeaderSize,
		},
	}
	if err := a.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

// UseArchive opens the archive at path, passes it to fn and closes it
// afterwards, whatever fn returns. Pending changes are flushed by the close;
// a flush error is joined with the error of fn.
func UseArchive(path string, cfg *Config, fn func(*Archive) error) (err error) {
	a, err := OpenArchive(path, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(a)
}

// readLayout reads header, tables and name blob from the start of the file.
func (a *Archive) readLayout() error {
	stat, err := a.f.Stat()
	if err != nil {
		return ioError("stat", a.path, err)
	}
	if err := a.cfg.CheckInputSize(stat.Size()); err != nil {
		return fmt.Errorf("%w: %s", err, a.path)
	}

	r := io.NewSectionReader(a.f, 0, stat.Size())

	hdr := make([]byte, xipHeaderSize)
	if err := readFull(r, hdr, a.path, "header"); err != nil {
		return err
	}
	a.header = decodeArchiveHeader(hdr)
	if a.header.Magic != MagicXIP {
		return fmt.Errorf("%w: got %q, want %q", ErrBadMagic, a.header.Magic[:], MagicXIP[:])
	}

	n := a.header.NumFiles
	blobSize := int64(a.header.DataOffset) - xipHeaderSize - tablesSize(n)
	if blobSize < 0 {
		return fmt.Errorf("%w: data offset 0x%X is inside the tables of %d entries", ErrCorruptLayout, a.header.DataOffset, n)
	}
	if int64(a.header.DataOffset) > stat.Size() {
		return fmt.Errorf("%w: data offset 0x%X, file size 0x%X", ErrTruncatedData, a.header.DataOffset, stat.Size())
	}

	entryTable := make([]byte, int(n)*xipEntrySize)
	if err := readFull(r, entryTable, a.path, "entry table"); err != nil {
		return err
	}
	nameTable := make([]byte, int(n)*xipNameIndexSize)
	if err := readFull(r, nameTable, a.path, "name index table"); err != nil {
		return err
	}
	a.blob = make([]byte, blobSize)
	if err := readFull(r, a.blob, a.path, "name blob"); err != nil {
		return err
	}

	a.records = decodeEntryRecords(entryTable, int(n))
	a.index = decodeNameIndexRecords(nameTable, int(n))
	return a.resolveEntries()
}

// resolveEntries pairs every name index record with its name and entry row.
func (a *Archive) resolveEntries() error {
	entries := make([]ArchiveEntry, 0, len(a.index))
	for i, ni := range a.index {
		if int(ni.DataIndex) >= len(a.records) {
			return fmt.Errorf("%w: name %d refers to entry %d of %d", ErrCorruptLayout, i, ni.DataIndex, len(a.records))
		}
		name, ok := layout.CString(a.blob, uint64(ni.NameOffset))
		if !ok {
			return fmt.Errorf("%w: name %d at blob offset 0x%X, blob size 0x%X", ErrOffsetOutOfRange, i, ni.NameOffset, len(a.blob))
		}
		rec := a.records[ni.DataIndex]
		entries = append(entries, ArchiveEntry{
			Name:      name,
			Index:     int(ni.DataIndex),
			Offset:    rec.Offset,
			Size:      rec.Size,
			Type:      rec.Type,
			Timestamp: rec.Timestamp,
		})
	}
	a.entries = entries
	return nil
}

// readFull reads exactly len(buf) bytes and maps a short read to ErrTruncatedData.
func readFull(r io.Reader, buf []byte, path string, what string) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %s of %s", ErrTruncatedData, what, path)
		}
		return ioError("read", path, err)
	}
	return nil
}

// Path returns the path the archive was opened or created with.
func (a *Archive) Path() string {
	return a.path
}

// Header returns the current archive header. Entry counts and DataSize include
// unflushed additions; DataOffset changes only when Close moves the payload.
func (a *Archive) Header() ArchiveHeader {
	return a.header
}

// Modified returns true if the archive has changes that Close will write back.
func (a *Archive) Modified() bool {
	return a.modified
}

// Entries returns the resolved entries in name table order.
func (a *Archive) Entries() []ArchiveEntry {
	out := make([]ArchiveEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// ListEntries returns the entry names in name table order. The names are
// the ones resolved when the archive was opened, plus any added since.
func (a *Archive) ListEntries() []string {
	names := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		names = append(names, e.Name)
	}
	return names
}

// lookup returns the first entry named name.
func (a *Archive) lookup(name string) (ArchiveEntry, error) {
	if a.closed {
		return ArchiveEntry{}, ErrClosed
	}
	for _, e := range a.entries {
		if e.Name == name {
			return e, nil
		}
	}
	return ArchiveEntry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}

// payload returns a reader over the payload bytes of e.
func (a *Archive) payload(e ArchiveEntry) *io.SectionReader {
	return io.NewSectionReader(a.f, int64(a.header.DataOffset)+int64(e.Offset), int64(e.Size))
}

// ExtractEntry copies the payload of the first entry named name to w.
// Directories fail with [ErrIsDirectory] before anything is read. The copy
// runs in chunks of cfg.CopyBufferSize() bytes and fails with [ErrIO] unless
// exactly Size bytes were copied; w is then left in an unspecified state.
func (a *Archive) ExtractEntry(name string, w io.Writer) error {
	e, err := a.lookup(name)
	if err != nil {
		return err
	}
	if e.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDirectory, name)
	}
	if err := a.cfg.CheckExtractionSize(int64(e.Size)); err != nil {
		return fmt.Errorf("%w: %s", err, name)
	}

	src := a.payload(e)
	buf := make([]byte, a.cfg.CopyBufferSize())
	remaining := int64(e.Size)
	for remaining > 0 {
		chunk := buf
		if remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		n, err := io.ReadFull(src, chunk)
		if err != nil {
			return ioError("read", fmt.Sprintf("%s:%s (%d of %d bytes)", a.path, name, int64(e.Size)-remaining+int64(n), e.Size), err)
		}
		if _, err := w.Write(chunk); err != nil {
			return ioError("write", name, err)
		}
		remaining -= int64(n)
	}
	return nil
}

// Open returns a reader over the payload of the first entry named name.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	e, err := a.lookup(name)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, name)
	}
	return io.NopCloser(a.payload(e)), nil
}

// ReadEntry returns the payload of the first entry named name.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	var buf bytes.Buffer
	if err := a.ExtractEntry(name, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExtractFile writes the payload of the first entry named name to the file
// at outputPath, honouring the overwrite and file mode settings.
func (a *Archive) ExtractFile(name string, outputPath string) error {
	e, err := a.lookup(name)
	if err != nil {
		return err
	}
	if e.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDirectory, name)
	}

	// stage in memory so a short payload never leaves a partial file behind
	data, err := a.ReadEntry(name)
	if err != nil {
		return err
	}
	_, err = NewTargetDisk().CreateFile(outputPath, bytes.NewReader(data), a.cfg.CustomFileMode(), a.cfg.Overwrite(), a.cfg.MaxExtractionSize())
	return err
}

// Close writes pending metadata changes back to the file and releases the
// file handle. Closing an already closed archive is a no-op.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var flushErr error
	if a.modified {
		flushErr = a.flush()
		if flushErr == nil {
			a.modified = false
			a.cfg.Logger().Debug("archive metadata written", "path", a.path, "entries", len(a.entries))
		}
	}

	var closeErr error
	if err := a.f.Close(); err != nil {
		closeErr = ioError("close", a.path, err)
	}
	return errors.Join(flushErr, closeErr)
}
