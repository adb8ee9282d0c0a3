// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"encoding/binary"

	"github.com/hashicorp/go-xcontainer/internal/layout"
)

// MagicXIP is the signature that starts every archive container.
var MagicXIP = [4]byte{'X', 'I', 'P', '0'}

// EntryTypeDirectory marks an archive entry as a directory. Directories carry
// no payload and cannot be extracted as file content.
const EntryTypeDirectory uint32 = 4

// EntryTypeFile is the entry type written for file payloads.
const EntryTypeFile uint32 = 0

// On-disk sizes of the fixed archive records.
const (
	xipHeaderSize    = 16
	xipEntrySize     = 16
	xipNameIndexSize = 4
)

// ArchiveHeader is the fixed record at offset 0 of an archive container.
// DataOffset is the absolute file offset of the payload region.
type ArchiveHeader struct {
	Magic      [4]byte
	DataOffset uint32
	NumFiles   uint16
	NumNames   uint16
	DataSize   uint32
}

// entryRecord is one row of the entry data table. Offset is relative to
// ArchiveHeader.DataOffset.
type entryRecord struct {
	Offset    uint32
	Size      uint32
	Type      uint32
	Timestamp uint32
}

// nameIndexRecord maps a name in the name blob to a row of the entry table.
type nameIndexRecord struct {
	DataIndex  uint16
	NameOffset uint16
}

// tablesSize returns the number of bytes between the header and the name
// blob for n entries.
func tablesSize(n uint16) int64 {
	return int64(n) * (xipEntrySize + xipNameIndexSize)
}

func decodeArchiveHeader(b []byte) ArchiveHeader {
	c := layout.NewCursor(b)
	var h ArchiveHeader
	c.Bytes(h.Magic[:])
	h.DataOffset = c.Uint32()
	h.NumFiles = c.Uint16()
	h.NumNames = c.Uint16()
	h.DataSize = c.Uint32()
	return h
}

func (h ArchiveHeader) appendTo(b []byte) []byte {
	b = append(b, h.Magic[:]...)
	b = binary.LittleEndian.AppendUint32(b, h.DataOffset)
	b = binary.LittleEndian.AppendUint16(b, h.NumFiles)
	b = binary.LittleEndian.AppendUint16(b, h.NumNames)
	return binary.LittleEndian.AppendUint32(b, h.DataSize)
}

func decodeEntryRecords(b []byte, n int) []entryRecord {
	c := layout.NewCursor(b)
	out := make([]entryRecord, n)
	for i := range out {
		out[i] = entryRecord{
			Offset:    c.Uint32(),
			Size:      c.Uint32(),
			Type:      c.Uint32(),
			Timestamp: c.Uint32(),
		}
	}
	return out
}

func (e entryRecord) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, e.Offset)
	b = binary.LittleEndian.AppendUint32(b, e.Size)
	b = binary.LittleEndian.AppendUint32(b, e.Type)
	return binary.LittleEndian.AppendUint32(b, e.Timestamp)
}

func decodeNameIndexRecords(b []byte, n int) []nameIndexRecord {
	c := layout.NewCursor(b)
	out := make([]nameIndexRecord, n)
	for i := range out {
		out[i] = nameIndexRecord{
			DataIndex:  c.Uint16(),
			NameOffset: c.Uint16(),
		}
	}
	return out
}

func (r nameIndexRecord) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, r.DataIndex)
	return binary.LittleEndian.AppendUint16(b, r.NameOffset)
}
