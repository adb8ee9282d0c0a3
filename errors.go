// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is returned when a file cannot be opened, read or written.
	ErrIO = errors.New("i/o error")

	// ErrBadMagic is returned when a container does not start with the expected signature.
	ErrBadMagic = errors.New("bad magic")

	// ErrTruncatedData is returned when the input ends before a fixed-size record.
	ErrTruncatedData = errors.New("truncated data")

	// ErrOffsetOutOfRange is returned when an offset or offset+length taken from
	// the input points outside of the input.
	ErrOffsetOutOfRange = errors.New("offset out of range")

	// ErrCorruptLayout is returned when the table sizes of an archive contradict
	// each other.
	ErrCorruptLayout = errors.New("corrupt layout")

	// ErrSectionNotFound is returned when an executable has no section with the
	// requested name.
	ErrSectionNotFound = errors.New("section not found")

	// ErrEntryNotFound is returned when an archive has no entry with the requested name.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrIsDirectory is returned when a directory entry is extracted as file content.
	ErrIsDirectory = errors.New("entry is a directory")

	// ErrClosed is returned when an archive is used after Close.
	ErrClosed = errors.New("archive is closed")

	// ErrInvalidEntryName is returned when an entry name cannot be stored in the
	// name blob of an archive.
	ErrInvalidEntryName = errors.New("invalid entry name")

	// ErrArchiveFull is returned when an addition would overflow one of the
	// fixed-width fields of an archive.
	ErrArchiveFull = errors.New("archive is full")

	// ErrUnsafePath is returned when an entry would be written outside of the
	// destination or through a symlink.
	ErrUnsafePath = errors.New("unsafe path")

	// ErrMaxFilesExceeded is returned when more entries than allowed are processed.
	ErrMaxFilesExceeded = errors.New("maximum files exceeded")

	// ErrMaxExtractionSizeExceeded is returned when more bytes than allowed are extracted.
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrMaxInputSizeExceeded is returned when an input file is larger than allowed.
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")
)

// ioError wraps err as an [ErrIO] while keeping the underlying error
// reachable through errors.Is and errors.As.
func ioError(op string, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}
