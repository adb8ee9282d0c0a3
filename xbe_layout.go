// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import "github.com/hashicorp/go-xcontainer/internal/layout"

// MagicXBE is the little-endian value of the "XBEH" signature that starts
// every executable container.
const MagicXBE uint32 = 0x48454258

// On-disk sizes of the fixed executable records.
const (
	xbeSignatureLen  = 256
	xbeTitleLen      = 40
	xbeKeyLen        = 16
	xbeDigestLen     = 20
	xbeAltTitleIDs   = 16
	xbeAltSigKeys    = 16
	xbeHeaderSize    = 4 + xbeSignatureLen + 29*4
	xbeCertIdentSize = 3*4 + xbeTitleLen*2
	xbeCertSize      = xbeCertIdentSize + xbeAltTitleIDs*4 + 5*4 + 2*xbeKeyLen + xbeAltSigKeys*xbeKeyLen + 3*4
	xbeSectionSize   = 9*4 + xbeDigestLen
)

// ExecutableHeader is the fixed image header at offset 0 of an executable
// container. Only the certificate and section directory fields are
// interpreted; the rest is carried verbatim.
type ExecutableHeader struct {
	Magic                       uint32
	Signature                   [xbeSignatureLen]byte
	BaseAddress                 uint32
	SizeOfHeaders               uint32
	SizeOfImage                 uint32
	SizeOfImageHeader           uint32
	Timestamp                   uint32
	CertificateAddress          uint32
	NumberOfSections            uint32
	SectionHeadersAddress       uint32
	InitFlags                   uint32
	EntryPoint                  uint32
	TLSAddress                  uint32
	PEStackCommit               uint32
	PEHeapReserve               uint32
	PEHeapCommit                uint32
	PEBaseAddress               uint32
	PESizeOfImage               uint32
	PEChecksum                  uint32
	PETimestamp                 uint32
	DebugPathnameAddress        uint32
	DebugFilenameAddress        uint32
	DebugUnicodeFilenameAddress uint32
	KernelImageThunkAddress     uint32
	NonKernelImportDirAddress   uint32
	LibraryVersionsCount        uint32
	LibraryVersionsAddress      uint32
	KernelLibraryVersionAddress uint32
	XAPILibraryVersionAddress   uint32
	LogoBitmapAddress           uint32
	LogoBitmapSize              uint32
}

// Certificate is the title certificate referenced by the header. Key and
// signature material is carried but never interpreted.
type Certificate struct {
	Size                uint32
	Timestamp           uint32
	TitleID             uint32
	TitleName           [xbeTitleLen]uint16
	AltTitleIDs         [xbeAltTitleIDs][4]byte
	AllowedMedia        uint32
	GameRegion          uint32
	GameRatings         uint32
	DiskNumber          uint32
	Version             uint32
	LANKey              [xbeKeyLen]byte
	SignatureKey        [xbeKeyLen]byte
	AltSignatureKeys    [xbeAltSigKeys][xbeKeyLen]byte
	OriginalPETimestamp uint32
	OriginalPEChecksum  uint32
	OriginalPESize      uint32
}

// Section is one record of the section directory. NameAddress and
// RawAddress are offsets into the container buffer.
type Section struct {
	Flags                         uint32
	VirtualAddress                uint32
	VirtualSize                   uint32
	RawAddress                    uint32
	RawSize                       uint32
	NameAddress                   uint32
	NameRefCount                  uint32
	HeadSharedPageRefCountAddress uint32
	TailSharedPageRefCountAddress uint32
	Digest                        [xbeDigestLen]byte
}

func decodeExecutableHeader(c *layout.Cursor) ExecutableHeader {
	var h ExecutableHeader
	h.Magic = c.Uint32()
	c.Bytes(h.Signature[:])
	for _, f := range []*uint32{
		&h.BaseAddress, &h.SizeOfHeaders, &h.SizeOfImage, &h.SizeOfImageHeader,
		&h.Timestamp, &h.CertificateAddress, &h.NumberOfSections, &h.SectionHeadersAddress,
		&h.InitFlags, &h.EntryPoint, &h.TLSAddress, &h.PEStackCommit,
		&h.PEHeapReserve, &h.PEHeapCommit, &h.PEBaseAddress, &h.PESizeOfImage,
		&h.PEChecksum, &h.PETimestamp, &h.DebugPathnameAddress, &h.DebugFilenameAddress,
		&h.DebugUnicodeFilenameAddress, &h.KernelImageThunkAddress, &h.NonKernelImportDirAddress, &h.LibraryVersionsCount,
		&h.LibraryVersionsAddress, &h.KernelLibraryVersionAddress, &h.XAPILibraryVersionAddress, &h.LogoBitmapAddress,
		&h.LogoBitmapSize,
	} {
		*f = c.Uint32()
	}
	return h
}

// decodeCertificate decodes a certificate from c. The identity prefix (size,
// timestamp, title id and name) must be complete; the trailing opaque fields
// are left zero when the buffer ends early.
func decodeCertificate(c *layout.Cursor) (Certificate, bool) {
	var cert Certificate
	if c.Remaining() < xbeCertIdentSize {
		return cert, false
	}
	cert.Size = c.Uint32()
	cert.Timestamp = c.Uint32()
	cert.TitleID = c.Uint32()
	for i := range cert.TitleName {
		cert.TitleName[i] = c.Uint16()
	}

	// opaque tail; a short read just stops filling
	for i := range cert.AltTitleIDs {
		c.Bytes(cert.AltTitleIDs[i][:])
	}
	for _, f := range []*uint32{&cert.AllowedMedia, &cert.GameRegion, &cert.GameRatings, &cert.DiskNumber, &cert.Version} {
		*f = c.Uint32()
	}
	c.Bytes(cert.LANKey[:])
	c.Bytes(cert.SignatureKey[:])
	for i := range cert.AltSignatureKeys {
		c.Bytes(cert.AltSignatureKeys[i][:])
	}
	cert.OriginalPETimestamp = c.Uint32()
	cert.OriginalPEChecksum = c.Uint32()
	cert.OriginalPESize = c.Uint32()
	return cert, true
}

func decodeSection(c *layout.Cursor) Section {
	var s Section
	for _, f := range []*uint32{
		&s.Flags, &s.VirtualAddress, &s.VirtualSize, &s.RawAddress, &s.RawSize,
		&s.NameAddress, &s.NameRefCount, &s.HeadSharedPageRefCountAddress, &s.TailSharedPageRefCountAddress,
	} {
		*f = c.Uint32()
	}
	c.Bytes(s.Digest[:])
	return s
}
