// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"io"
)

// archiveWalker is an interface that represents a file walker in an archive
type archiveWalker interface {
	Type() string
	Next() (archiveEntry, error)
}

// archiveEntry is an interface that represents a file in an archive
type archiveEntry interface {
	IsDir() bool
	Name() string
	Open() (io.ReadCloser, error)
	Size() int64
}

// telemetry types of the operations
const (
	telemetryTypeScan = "scan"
	telemetryTypeXIP  = "xip"
)

// xipWalker walks the entries of an [Archive] in name table order.
type xipWalker struct {
	a       *Archive
	entries []ArchiveEntry
	pos     int
}

func newXIPWalker(a *Archive) *xipWalker {
	return &xipWalker{a: a, entries: a.Entries()}
}

// Type returns the telemetry type of archive containers
func (w *xipWalker) Type() string {
	return telemetryTypeXIP
}

// Next returns the next entry or io.EOF after the last one
func (w *xipWalker) Next() (archiveEntry, error) {
	if w.a.closed {
		return nil, ErrClosed
	}
	if w.pos >= len(w.entries) {
		return nil, io.EOF
	}
	e := w.entries[w.pos]
	w.pos++
	return &xipEntry{a: w.a, e: e}, nil
}

// xipEntry is an entry in an archive container
type xipEntry struct {
	a *Archive
	e ArchiveEntry
}

func (x *xipEntry) IsDir() bool {
	return x.e.IsDir()
}

func (x *xipEntry) Name() string {
	return x.e.Name
}

// Open returns a reader over exactly Size bytes of payload
func (x *xipEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(x.a.payload(x.e)), nil
}

func (x *xipEntry) Size() int64 {
	return int64(x.e.Size)
}
