// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-xcontainer/internal/layout"
	"golang.org/x/text/encoding/unicode"
)

// TitleImageSection is the name of the section holding the title image.
const TitleImageSection = "$$XTIMAGE"

// TitleNameDecoding selects how the 40 code unit title name of a certificate
// is turned into a string.
type TitleNameDecoding int

const (
	// TitleNameLowByte keeps the low byte of every UTF-16 code unit. This is
	// what dashboards have always shown and corrupts non-ASCII titles.
	TitleNameLowByte TitleNameDecoding = iota

	// TitleNameUTF16 decodes the field as little-endian UTF-16.
	TitleNameUTF16
)

// String returns the option name used on the command line.
func (d TitleNameDecoding) String() string {
	switch d {
	case TitleNameLowByte:
		return "lowbyte"
	case TitleNameUTF16:
		return "utf16"
	default:
		return fmt.Sprintf("TitleNameDecoding(%d)", int(d))
	}
}

// Executable is a parsed executable container. It owns a private copy of the
// file contents and is immutable after loading; section contents are only
// copied out on request.
type Executable struct {
	buf      []byte
	header   ExecutableHeader
	cert     Certificate
	sections []Section
	decoding TitleNameDecoding
}

// LoadExecutable reads the whole file at path and parses it as an executable
// container. Files larger than cfg.MaxInputSize() are rejected with
// [ErrMaxInputSizeExceeded] without being read completely.
func LoadExecutable(path string, cfg *Config) (*Executable, error) {
	cfg = orDefault(cfg)

	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("open", path, err)
	}
	defer f.Close()

	ler := newLimitErrorReader(f, cfg.MaxInputSize())
	buf, err := io.ReadAll(ler)
	if err != nil {
		if ler.Exceeded() {
			return nil, fmt.Errorf("%w: %s", ErrMaxInputSizeExceeded, path)
		}
		return nil, ioError("read", path, err)
	}

	return parseExecutable(buf, cfg)
}

// ParseExecutable parses buf as an executable container. buf is copied, the
// caller keeps ownership of it.
func ParseExecutable(buf []byte, cfg *Config) (*Executable, error) {
	cfg = orDefault(cfg)
	if err := cfg.CheckInputSize(int64(len(buf))); err != nil {
		return nil, err
	}
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return parseExecutable(owned, cfg)
}

// parseExecutable validates the header, certificate and section directory of
// buf and takes ownership of it.
func parseExecutable(buf []byte, cfg *Config) (*Executable, error) {
	if len(buf) < xbeHeaderSize {
		return nil, fmt.Errorf("%w: %d byte input is shorter than the %d byte header", ErrTruncatedData, len(buf), xbeHeaderSize)
	}

	x := &Executable{buf: buf, decoding: cfg.TitleNameDecoding()}
	x.header = decodeExecutableHeader(layout.NewCursor(buf[:xbeHeaderSize]))
	if x.header.Magic != MagicXBE {
		return nil, fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrBadMagic, x.header.Magic, MagicXBE)
	}

	if err := x.readCertificate(); err != nil {
		return nil, err
	}
	if err := x.readSections(); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *Executable) readCertificate() error {
	off := uint64(x.header.CertificateAddress)
	if off >= uint64(len(x.buf)) {
		return fmt.Errorf("%w: certificate address 0x%X, input size 0x%X", ErrOffsetOutOfRange, off, len(x.buf))
	}
	cert, ok := decodeCertificate(layout.NewCursor(x.buf[off:]))
	if !ok {
		return fmt.Errorf("%w: certificate at 0x%X runs past the end of the input", ErrOffsetOutOfRange, off)
	}
	x.cert = cert
	return nil
}

func (x *Executable) readSections() error {
	base := uint64(x.header.SectionHeadersAddress)
	if base >= uint64(len(x.buf)) {
		return fmt.Errorf("%w: section headers address 0x%X, input size 0x%X", ErrOffsetOutOfRange, base, len(x.buf))
	}

	// every record has to fit, so the count can never exceed what the buffer holds
	n := uint64(x.header.NumberOfSections)
	if fit := (uint64(len(x.buf)) - base) / xbeSectionSize; n > fit {
		return fmt.Errorf("%w: %d section headers at 0x%X do not fit into the input", ErrOffsetOutOfRange, n, base)
	}

	x.sections = make([]Section, 0, n)
	for i := uint64(0); i < n; i++ {
		start, end, ok := layout.Span(len(x.buf), base+i*xbeSectionSize, xbeSectionSize)
		if !ok {
			return fmt.Errorf("%w: section header %d", ErrOffsetOutOfRange, i)
		}
		x.sections = append(x.sections, decodeSection(layout.NewCursor(x.buf[start:end])))
	}
	return nil
}

// Header returns the image header.
func (x *Executable) Header() ExecutableHeader {
	return x.header
}

// Certificate returns the title certificate.
func (x *Executable) Certificate() Certificate {
	return x.cert
}

// Sections returns a copy of the section directory in directory order.
func (x *Executable) Sections() []Section {
	out := make([]Section, len(x.sections))
	copy(out, x.sections)
	return out
}

// Size returns the size of the container in bytes.
func (x *Executable) Size() int {
	return len(x.buf)
}

// SectionName returns the NUL-terminated name of s. ok is false when the
// name address lies outside the container.
func (x *Executable) SectionName(s Section) (name string, ok bool) {
	return layout.CString(x.buf, uint64(s.NameAddress))
}

// FindSectionByName returns the first section in directory order whose name
// equals name. Sections with a name address outside the container are skipped.
func (x *Executable) FindSectionByName(name string) (Section, bool) {
	for _, s := range x.sections {
		n, ok := x.SectionName(s)
		if !ok {
			continue
		}
		if n == name {
			return s, true
		}
	}
	return Section{}, false
}

// SectionData returns a copy of the raw bytes of s.
func (x *Executable) SectionData(s Section) ([]byte, error) {
	start, end, ok := layout.Span(len(x.buf), uint64(s.RawAddress), uint64(s.RawSize))
	if !ok {
		return nil, fmt.Errorf("%w: section data 0x%X+0x%X, input size 0x%X", ErrOffsetOutOfRange, s.RawAddress, s.RawSize, len(x.buf))
	}
	out := make([]byte, end-start)
	copy(out, x.buf[start:end])
	return out, nil
}

// TitleID returns the numeric title identifier of the certificate.
func (x *Executable) TitleID() uint32 {
	return x.cert.TitleID
}

// TitleIDString returns the title identifier as eight upper-case hex digits.
func (x *Executable) TitleIDString() string {
	return fmt.Sprintf("%08X", x.cert.TitleID)
}

// TitleName returns the title name of the certificate, cut at the first zero
// code unit. The decoding follows the configured [TitleNameDecoding].
func (x *Executable) TitleName() string {
	units := x.cert.TitleName[:]
	for i, u := range units {
		if u == 0 {
			units = units[:i]
			break
		}
	}

	if x.decoding == TitleNameUTF16 {
		if s, err := decodeUTF16(units); err == nil {
			return s
		}
	}

	var sb strings.Builder
	sb.Grow(len(units))
	for _, u := range units {
		sb.WriteByte(byte(u))
	}
	return sb.String()
}

// TitleImage returns a copy of the $$XTIMAGE section. A missing section is
// reported as [ErrSectionNotFound]; the container itself stays usable.
func (x *Executable) TitleImage() ([]byte, error) {
	s, ok := x.FindSectionByName(TitleImageSection)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, TitleImageSection)
	}
	return x.SectionData(s)
}

func decodeUTF16(units []uint16) (string, error) {
	raw := make([]byte, 2*len(units))
	for i, u := range units {
		raw[2*i] = byte(u)
		raw[2*i+1] = byte(u >> 8)
	}
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
