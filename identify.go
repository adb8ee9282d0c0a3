// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Format is the kind of container detected by [Identify].
type Format int

const (
	// FormatUnknown is returned for input that matches no known signature.
	FormatUnknown Format = iota

	// FormatXBE is an executable container.
	FormatXBE

	// FormatXIP is an archive container.
	FormatXIP
)

func (f Format) String() string {
	switch f {
	case FormatXBE:
		return "xbe"
	case FormatXIP:
		return "xip"
	default:
		return "unknown"
	}
}

// identifyHeaderSize is the number of bytes needed to tell the formats apart.
const identifyHeaderSize = 4

// Identify detects the container format of r from its leading magic bytes.
// The returned reader yields the complete input, including the bytes that
// were consumed for detection.
func Identify(r io.Reader) (Format, io.Reader, error) {
	hr, err := newHeaderReader(r, identifyHeaderSize)
	if err != nil {
		return FormatUnknown, nil, err
	}
	return identifyHeader(hr.PeekHeader()), hr, nil
}

func identifyHeader(header []byte) Format {
	if len(header) < identifyHeaderSize {
		return FormatUnknown
	}
	switch {
	case binary.LittleEndian.Uint32(header) == MagicXBE:
		return FormatXBE
	case bytes.Equal(header[:4], MagicXIP[:]):
		return FormatXIP
	default:
		return FormatUnknown
	}
}

// headerReader is an implementation of io.Reader that allows the first bytes of
// the reader to be read twice. This is useful for identifying the container type
// before parsing.
type headerReader struct {
	r      io.Reader
	header []byte
	unread []byte
}

func newHeaderReader(r io.Reader, headerSize int) (*headerReader, error) {
	// read at least headerSize bytes. If EOF, capture whatever was read.
	buf := make([]byte, headerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: cannot read header: %w", ErrIO, err)
	}
	return &headerReader{r: r, header: buf[:n], unread: buf[:n]}, nil
}

func (p *headerReader) Read(b []byte) (int, error) {
	// read from header first
	if len(p.unread) > 0 {
		n := copy(b, p.unread)
		p.unread = p.unread[n:]
		return n, nil
	}

	// then continue reading from the source
	return p.r.Read(b)
}

// PeekHeader returns the captured header bytes, even after they were read.
func (p *headerReader) PeekHeader() []byte {
	return p.header
}
