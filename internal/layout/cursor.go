// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package layout provides bounds-checked little-endian decoding over byte
// buffers read from untrusted container files.
package layout

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is the sticky error of a [Cursor] that was asked for bytes
// beyond the end of its buffer.
var ErrShortBuffer = errors.New("read beyond end of buffer")

// Cursor decodes fixed-width little-endian fields from a byte slice.
//
// All reads are bounds checked. The first out-of-range read sets a sticky
// error, after which every read returns zero values. Callers decode a whole
// record and check [Cursor.Err] once.
type Cursor struct {
	buf []byte
	pos int
	err error
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Err returns the first error encountered by the cursor.
func (c *Cursor) Err() error {
	return c.err
}

// Pos returns the current offset into the buffer.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.err != nil {
		return 0
	}
	return len(c.buf) - c.pos
}

// next returns the next n bytes and advances, or records ErrShortBuffer.
func (c *Cursor) next(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || n > len(c.buf)-c.pos {
		c.err = ErrShortBuffer
		return nil
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

// Uint16 decodes a little-endian uint16.
func (c *Cursor) Uint16() uint16 {
	b := c.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint32 decodes a little-endian uint32.
func (c *Cursor) Uint32() uint32 {
	b := c.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Bytes copies the next n bytes into dst. dst must be at least n long.
func (c *Cursor) Bytes(dst []byte) {
	b := c.next(len(dst))
	if b == nil {
		return
	}
	copy(dst, b)
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) {
	c.next(n)
}

// Span validates the range [off, off+n) against a buffer of length size using
// 64-bit arithmetic and returns it as int bounds.
func Span(size int, off, n uint64) (start, end int, ok bool) {
	if off > uint64(size) || n > uint64(size)-off {
		return 0, 0, false
	}
	return int(off), int(off + n), true
}

// CString reads a NUL-terminated string starting at off. The string ends at
// the first NUL or at the end of buf, whichever comes first. ok is false when
// off is not inside buf.
func CString(buf []byte, off uint64) (s string, ok bool) {
	if off >= uint64(len(buf)) {
		return "", false
	}
	tail := buf[off:]
	for i, b := range tail {
		if b == 0 {
			return string(tail[:i]), true
		}
	}
	return string(tail), true
}
