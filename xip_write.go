// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"fmt"
	"io"
	"io/fs"
	"math"
	"strings"
)

// AddFile appends the content of r as a new file entry named entryName.
// The payload is written to the end of the data region right away; the
// tables and the name blob are only written back by [Archive.Close].
func (a *Archive) AddFile(entryName string, r io.Reader, ts uint32) error {
	if err := a.checkAdd(entryName); err != nil {
		return err
	}

	end := a.payloadExtent()
	limit := int64(math.MaxUint32) - end
	start := int64(a.header.DataOffset) + end

	w := io.NewOffsetWriter(a.f, start)
	n, err := io.Copy(w, io.LimitReader(r, limit+1))
	if err == nil && n > limit {
		err = fmt.Errorf("%w: payload of %s does not fit the data region", ErrArchiveFull, entryName)
	}
	if err != nil {
		// drop the partial payload, it is not referenced by any entry
		if n > 0 {
			if terr := a.f.Truncate(start); terr != nil {
				a.cfg.Logger().Warn("failed to drop partial payload", "path", a.path, "error", terr)
			}
		}
		if n > limit {
			return err
		}
		return ioError("write", fmt.Sprintf("%s:%s", a.path, entryName), err)
	}

	a.appendEntry(entryName, entryRecord{
		Offset:    uint32(end),
		Size:      uint32(n),
		Type:      EntryTypeFile,
		Timestamp: ts,
	})
	a.cfg.Logger().Debug("added file", "archive", a.path, "name", entryName, "size", n)
	return nil
}

// AddDir appends a directory entry named name. Directories carry no payload.
func (a *Archive) AddDir(name string, ts uint32) error {
	if err := a.checkAdd(name); err != nil {
		return err
	}
	a.appendEntry(name, entryRecord{
		Type:      EntryTypeDirectory,
		Timestamp: ts,
	})
	a.cfg.Logger().Debug("added directory", "archive", a.path, "name", name)
	return nil
}

// checkAdd verifies that an entry named name can be appended.
func (a *Archive) checkAdd(name string) error {
	if a.closed {
		return ErrClosed
	}
	if a.readOnly {
		return ioError("write", a.path, fs.ErrPermission)
	}
	if len(name) == 0 || strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
	}
	if len(a.records) >= math.MaxUint16 {
		return fmt.Errorf("%w: %d entries", ErrArchiveFull, len(a.records))
	}
	if len(a.blob) > math.MaxUint16 {
		return fmt.Errorf("%w: name blob offset 0x%X", ErrArchiveFull, len(a.blob))
	}
	return nil
}

// appendEntry grows the in-memory tables and the name blob by one entry.
func (a *Archive) appendEntry(name string, rec entryRecord) {
	nameOffset := uint16(len(a.blob))
	a.blob = append(a.blob, name...)
	a.blob = append(a.blob, 0)

	a.records = append(a.records, rec)
	a.index = append(a.index, nameIndexRecord{
		DataIndex:  uint16(len(a.records) - 1),
		NameOffset: nameOffset,
	})
	a.entries = append(a.entries, ArchiveEntry{
		Name:      name,
		Index:     len(a.records) - 1,
		Offset:    rec.Offset,
		Size:      rec.Size,
		Type:      rec.Type,
		Timestamp: rec.Timestamp,
	})

	a.header.NumFiles++
	a.header.NumNames++
	if end := rec.Offset + rec.Size; end > a.header.DataSize {
		a.header.DataSize = end
	}
	a.modified = true
}

// payloadExtent returns the end of the payload region relative to the data
// offset. DataSize is not trusted on its own since archives written by other
// tools may leave it short of the last payload.
func (a *Archive) payloadExtent() int64 {
	end := int64(a.header.DataSize)
	for _, rec := range a.records {
		if e := int64(rec.Offset) + int64(rec.Size); e > end {
			end = e
		}
	}
	return end
}

// writeHeader writes the archive header at offset 0.
func (a *Archive) writeHeader() error {
	if _, err := a.f.WriteAt(a.header.appendTo(make([]byte, 0, xipHeaderSize)), 0); err != nil {
		return ioError("write", a.path, err)
	}
	return nil
}

// flush moves the payload region behind the grown tables and writes header,
// entry table, name index table and name blob in that order.
func (a *Archive) flush() error {
	if a.readOnly {
		return ioError("write", a.path, fs.ErrPermission)
	}

	oldOff := int64(a.header.DataOffset)
	newOff := int64(xipHeaderSize) + tablesSize(uint16(len(a.records))) + int64(len(a.blob))
	if newOff != oldOff {
		if err := a.movePayload(oldOff, newOff, a.payloadExtent()); err != nil {
			return err
		}
		a.header.DataOffset = uint32(newOff)
	}
	a.header.NumFiles = uint16(len(a.records))

	meta := make([]byte, 0, newOff)
	meta = a.header.appendTo(meta)
	for _, rec := range a.records {
		meta = rec.appendTo(meta)
	}
	for _, ni := range a.index {
		meta = ni.appendTo(meta)
	}
	meta = append(meta, a.blob...)

	if _, err := a.f.WriteAt(meta, 0); err != nil {
		return ioError("write", a.path, err)
	}
	if err := a.f.Sync(); err != nil {
		return ioError("sync", a.path, err)
	}
	return nil
}

// movePayload copies size bytes from file offset from to file offset to.
// The regions may overlap. Bytes beyond the end of the file are not moved.
func (a *Archive) movePayload(from, to, size int64) error {
	stat, err := a.f.Stat()
	if err != nil {
		return ioError("stat", a.path, err)
	}
	if avail := stat.Size() - from; size > avail {
		size = max(avail, 0)
	}

	buf := make([]byte, a.cfg.CopyBufferSize())
	for done := int64(0); done < size; {
		chunk := min(int64(len(buf)), size-done)

		// copy back to front when moving up so no byte is overwritten before it is read
		src, dst := from+done, to+done
		if to > from {
			src = from + size - done - chunk
			dst = to + size - done - chunk
		}

		if _, err := a.f.ReadAt(buf[:chunk], src); err != nil {
			return ioError("read", a.path, err)
		}
		if _, err := a.f.WriteAt(buf[:chunk], dst); err != nil {
			return ioError("write", a.path, err)
		}
		done += chunk
	}

	a.cfg.Logger().Debug("moved archive payload", "path", a.path, "from", from, "to", to, "size", size)
	return nil
}
