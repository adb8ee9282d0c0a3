// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"fmt"
	"io"
)

// limitErrorWriter is a wrapper around an io.Writer that refuses to write
// more than L bytes. Crossing the limit yields an error wrapping both
// io.ErrShortWrite and [ErrMaxExtractionSizeExceeded].
type limitErrorWriter struct {
	W io.Writer // underlying writer
	L int64     // limit
	N int64     // number of bytes written
}

var errWriteLimit = fmt.Errorf("%w: %w", ErrMaxExtractionSizeExceeded, io.ErrShortWrite)

// Write writes up to len(p) bytes from p to the underlying writer. Bytes up
// to the limit are written; the remainder of p is rejected with an error.
func (l *limitErrorWriter) Write(p []byte) (n int, err error) {
	// check if we reached the limit
	if l.N >= l.L && len(p) > 0 {
		return 0, errWriteLimit
	}

	// write until we reach the limit
	if int64(len(p)) > l.L-l.N {
		p = p[0 : l.L-l.N]
		n, err = l.W.Write(p)
		if err == nil {
			err = errWriteLimit
		}
		l.N += int64(n)
		return n, err
	}

	// write normally
	n, err = l.W.Write(p)
	l.N += int64(n)
	return n, err
}

// newLimitErrorWriter returns a new limitErrorWriter that wraps the given writer
// and limit.
func newLimitErrorWriter(w io.Writer, l int64) *limitErrorWriter {
	return &limitErrorWriter{W: w, L: l}
}

// limitWriter wraps w so that no more than maxSize bytes can be written.
// A negative maxSize disables the limit.
func limitWriter(w io.Writer, maxSize int64) io.Writer {
	if maxSize < 0 {
		return w
	}
	return newLimitErrorWriter(w, maxSize)
}
