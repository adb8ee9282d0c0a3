// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"fmt"
	"io"
)

// errReadLimitExceeded is returned by a limitErrorReader whose source holds
// more than L bytes.
var errReadLimitExceeded = fmt.Errorf("read limit exceeded")

// limitErrorReader is a reader that returns an error if the underlying reader
// holds more than L bytes. Unlike io.LimitReader it does not silently
// truncate. If the limit is -1, all data from the original reader is read.
type limitErrorReader struct {
	R io.Reader // underlying reader
	L int64     // limit
	N int64     // number of bytes read

	exceeded bool
}

// Read reads from the underlying reader and fills up p.
// Once L bytes have been read, Read probes the underlying reader for one more
// byte: io.EOF is passed through, anything else is reported as exceeding the limit.
func (l *limitErrorReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, errReadLimitExceeded
	}
	if len(p) == 0 {
		return 0, nil
	}

	// determine how many bytes to read
	m := l.L - l.N
	if l.L == -1 || m > int64(len(p)) {
		m = int64(len(p))
	}

	// at the limit, the source must be exhausted
	if m == 0 {
		var probe [1]byte
		n, err := io.ReadFull(l.R, probe[:])
		if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
			return 0, io.EOF
		}
		if err != nil && n == 0 {
			return 0, err
		}
		l.exceeded = true
		return 0, errReadLimitExceeded
	}

	// read from underlying reader and preserve error type
	n, err := l.R.Read(p[:m])
	l.N += int64(n)
	return n, err
}

// ReadBytes returns how many bytes have been read from the underlying reader
func (l *limitErrorReader) ReadBytes() int64 {
	return l.N
}

// Exceeded reports whether the underlying reader held more than L bytes.
func (l *limitErrorReader) Exceeded() bool {
	return l.exceeded
}

// newLimitErrorReader returns a new limitErrorReader that reads from r
func newLimitErrorReader(r io.Reader, limit int64) *limitErrorReader {
	return &limitErrorReader{R: r, L: limit}
}
