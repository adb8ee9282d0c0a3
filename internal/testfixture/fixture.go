// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package testfixture builds executable and archive containers in memory
// for tests.
package testfixture

import (
	"encoding/binary"
)

// Byte offsets of the executable header fields used by the builders.
const (
	XBEHeaderSize          = 376
	XBECertAddrOffset      = 280
	XBENumSectionsOffset   = 284
	XBESectionsAddrOffset  = 288
	XBESectionSize         = 56
	XBECertTitleIDOffset   = 8
	XBECertTitleNameOffset = 12
	XBECertIdentitySize    = 92
)

// XBE builds an executable container field by field. Writes past the end of
// the buffer grow it with zero bytes.
type XBE struct {
	buf []byte
}

// NewXBE returns a builder holding a zeroed header with a valid magic.
func NewXBE() *XBE {
	x := &XBE{buf: make([]byte, XBEHeaderSize)}
	return x.PutUint32(0, 0x48454258)
}

// Bytes returns a copy of the built container.
func (x *XBE) Bytes() []byte {
	out := make([]byte, len(x.buf))
	copy(out, x.buf)
	return out
}

func (x *XBE) grow(end int) {
	if end > len(x.buf) {
		x.buf = append(x.buf, make([]byte, end-len(x.buf))...)
	}
}

// Resize cuts or zero-extends the buffer to n bytes.
func (x *XBE) Resize(n int) *XBE {
	if n < len(x.buf) {
		x.buf = x.buf[:n]
		return x
	}
	x.grow(n)
	return x
}

// PutUint32 writes v at off.
func (x *XBE) PutUint32(off int, v uint32) *XBE {
	x.grow(off + 4)
	binary.LittleEndian.PutUint32(x.buf[off:], v)
	return x
}

// PutBytes writes b at off.
func (x *XBE) PutBytes(off int, b []byte) *XBE {
	x.grow(off + len(b))
	copy(x.buf[off:], b)
	return x
}

// PutString writes s followed by a NUL byte at off.
func (x *XBE) PutString(off int, s string) *XBE {
	return x.PutBytes(off, append([]byte(s), 0))
}

// Certificate places the certificate at addr with the given title id and a
// title name stored one code unit per byte of name.
func (x *XBE) Certificate(addr uint32, titleID uint32, name string) *XBE {
	units := make([]uint16, 0, len(name))
	for i := 0; i < len(name); i++ {
		units = append(units, uint16(name[i]))
	}
	return x.CertificateUnits(addr, titleID, units)
}

// CertificateUnits places the certificate at addr with a raw title name. At
// most 40 code units are stored.
func (x *XBE) CertificateUnits(addr uint32, titleID uint32, units []uint16) *XBE {
	x.PutUint32(XBECertAddrOffset, addr)
	x.grow(int(addr) + XBECertIdentitySize)
	x.PutUint32(int(addr)+XBECertTitleIDOffset, titleID)
	for i, u := range units {
		if i == 40 {
			break
		}
		binary.LittleEndian.PutUint16(x.buf[int(addr)+XBECertTitleNameOffset+2*i:], u)
	}
	return x
}

// SectionDirectory sets the address and the number of section records.
func (x *XBE) SectionDirectory(addr uint32, n uint32) *XBE {
	x.PutUint32(XBESectionsAddrOffset, addr)
	return x.PutUint32(XBENumSectionsOffset, n)
}

// Section writes record i of the section directory.
func (x *XBE) Section(i int, nameAddr, rawAddr, rawSize uint32) *XBE {
	base := int(binary.LittleEndian.Uint32(x.buf[XBESectionsAddrOffset:])) + i*XBESectionSize
	x.grow(base + XBESectionSize)
	x.PutUint32(base+12, rawAddr)
	x.PutUint32(base+16, rawSize)
	return x.PutUint32(base+20, nameAddr)
}

// TitleImage is the 16 byte image used by the title fixtures.
var TitleImage = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

// TitleXBE returns an executable with the certificate at 64, a single
// $$XTIMAGE section record at 300 and image as its payload.
func TitleXBE(titleID uint32, name string, image []byte) []byte {
	const nameAddr, imageAddr = 400, 416
	return NewXBE().
		Certificate(64, titleID, name).
		SectionDirectory(300, 1).
		Section(0, nameAddr, imageAddr, uint32(len(image))).
		PutString(nameAddr, "$$XTIMAGE").
		PutBytes(imageAddr, image).
		Bytes()
}

// XIPEntry is one entry of an archive built by [XIP].
type XIPEntry struct {
	Name      string
	Data      []byte
	Type      uint32
	Timestamp uint32
}

// XIP returns an archive container holding entries with their payloads laid
// out back to back in entry order.
func XIP(entries ...XIPEntry) []byte {
	var blob []byte
	nameOffsets := make([]uint16, len(entries))
	for i, e := range entries {
		nameOffsets[i] = uint16(len(blob))
		blob = append(blob, e.Name...)
		blob = append(blob, 0)
	}

	n := len(entries)
	dataOffset := 16 + n*20 + len(blob)

	var payload []byte
	b := XIPHeader(uint32(dataOffset), uint16(n), uint16(n), 0)
	for _, e := range entries {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(payload)))
		b = binary.LittleEndian.AppendUint32(b, uint32(len(e.Data)))
		b = binary.LittleEndian.AppendUint32(b, e.Type)
		b = binary.LittleEndian.AppendUint32(b, e.Timestamp)
		payload = append(payload, e.Data...)
	}
	for i := range entries {
		b = binary.LittleEndian.AppendUint16(b, uint16(i))
		b = binary.LittleEndian.AppendUint16(b, nameOffsets[i])
	}
	b = append(b, blob...)
	binary.LittleEndian.PutUint32(b[12:], uint32(len(payload)))
	return append(b, payload...)
}

// XIPHeader returns a 16 byte archive header.
func XIPHeader(dataOffset uint32, numFiles, numNames uint16, dataSize uint32) []byte {
	b := []byte("XIP0")
	b = binary.LittleEndian.AppendUint32(b, dataOffset)
	b = binary.LittleEndian.AppendUint16(b, numFiles)
	b = binary.LittleEndian.AppendUint16(b, numNames)
	return binary.LittleEndian.AppendUint32(b, dataSize)
}
