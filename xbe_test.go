// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xcontainer "github.com/hashicorp/go-xcontainer"
	"github.com/hashicorp/go-xcontainer/internal/testfixture"
)

// TestParseExecutableTitle checks the title scenario with the certificate and
// the section directory inside the header area.
func TestParseExecutableTitle(t *testing.T) {
	buf := testfixture.TitleXBE(0x00001234, "TESTGAME", testfixture.TitleImage)

	x, err := xcontainer.ParseExecutable(buf, nil)
	require.NoError(t, err)

	assert.Equal(t, uint32(0x1234), x.TitleID())
	assert.Equal(t, "00001234", x.TitleIDString())
	assert.Equal(t, "TESTGAME", x.TitleName())
	assert.Equal(t, uint32(64), x.Header().CertificateAddress)
	assert.Equal(t, len(buf), x.Size())
	require.Len(t, x.Sections(), 1)

	img, err := x.TitleImage()
	require.NoError(t, err)
	assert.Equal(t, testfixture.TitleImage, img)
	assert.Len(t, img, 16)
}

// TestLoadExecutable checks loading from disk and the limits on the input size.
func TestLoadExecutable(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "default.xbe")
	buf := testfixture.TitleXBE(0xABCD0001, "DASH", testfixture.TitleImage)
	require.NoError(t, os.WriteFile(path, buf, 0o600))

	tests := []struct {
		name    string
		path    string
		cfg     *xcontainer.Config
		wantErr error
	}{
		{name: "default config", path: path},
		{name: "exact input size", path: path, cfg: xcontainer.NewConfig(xcontainer.WithMaxInputSize(int64(len(buf))))},
		{name: "unlimited input size", path: path, cfg: xcontainer.NewConfig(xcontainer.WithMaxInputSize(-1))},
		{name: "input too large", path: path, cfg: xcontainer.NewConfig(xcontainer.WithMaxInputSize(int64(len(buf) - 1))), wantErr: xcontainer.ErrMaxInputSizeExceeded},
		{name: "missing file", path: filepath.Join(tmp, "missing.xbe"), wantErr: xcontainer.ErrIO},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			x, err := xcontainer.LoadExecutable(test.path, test.cfg)
			if test.wantErr != nil {
				require.ErrorIs(t, err, test.wantErr)
				assert.Nil(t, x)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ABCD0001", x.TitleIDString())
			assert.Equal(t, "DASH", x.TitleName())
		})
	}
}

func TestLoadExecutableMissingFileKeepsPathError(t *testing.T) {
	_, err := xcontainer.LoadExecutable(filepath.Join(t.TempDir(), "nope.xbe"), nil)
	require.ErrorIs(t, err, xcontainer.ErrIO)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestParseExecutableErrors checks that malformed containers fail with the
// matching error kind.
func TestParseExecutableErrors(t *testing.T) {
	tests := []struct {
		name    string
		buf     func() []byte
		wantErr error
	}{
		{
			name:    "empty input",
			buf:     func() []byte { return nil },
			wantErr: xcontainer.ErrTruncatedData,
		},
		{
			name:    "one byte short of the header",
			buf:     func() []byte { return testfixture.NewXBE().Resize(testfixture.XBEHeaderSize - 1).Bytes() },
			wantErr: xcontainer.ErrTruncatedData,
		},
		{
			name: "wrong magic",
			buf: func() []byte {
				return testfixture.NewXBE().Certificate(64, 1, "X").SectionDirectory(300, 0).PutUint32(0, 0x48454259).Bytes()
			},
			wantErr: xcontainer.ErrBadMagic,
		},
		{
			name: "certificate address equals the input length",
			buf: func() []byte {
				return testfixture.NewXBE().SectionDirectory(300, 0).PutUint32(testfixture.XBECertAddrOffset, testfixture.XBEHeaderSize).Bytes()
			},
			wantErr: xcontainer.ErrOffsetOutOfRange,
		},
		{
			name: "certificate identity runs past the end",
			buf: func() []byte {
				return testfixture.NewXBE().SectionDirectory(300, 0).PutUint32(testfixture.XBECertAddrOffset, testfixture.XBEHeaderSize-10).Bytes()
			},
			wantErr: xcontainer.ErrOffsetOutOfRange,
		},
		{
			name: "certificate address at the maximum",
			buf: func() []byte {
				return testfixture.NewXBE().SectionDirectory(300, 0).PutUint32(testfixture.XBECertAddrOffset, math.MaxUint32).Bytes()
			},
			wantErr: xcontainer.ErrOffsetOutOfRange,
		},
		{
			name: "section directory outside the input",
			buf: func() []byte {
				return testfixture.NewXBE().Certificate(64, 1, "X").SectionDirectory(testfixture.XBEHeaderSize, 0).Bytes()
			},
			wantErr: xcontainer.ErrOffsetOutOfRange,
		},
		{
			name: "last section record cut off",
			buf: func() []byte {
				return testfixture.NewXBE().Certificate(64, 1, "X").SectionDirectory(300, 2).Bytes()
			},
			wantErr: xcontainer.ErrOffsetOutOfRange,
		},
		{
			name: "huge section count",
			buf: func() []byte {
				return testfixture.NewXBE().Certificate(64, 1, "X").SectionDirectory(300, math.MaxUint32).Bytes()
			},
			wantErr: xcontainer.ErrOffsetOutOfRange,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			x, err := xcontainer.ParseExecutable(test.buf(), nil)
			require.ErrorIs(t, err, test.wantErr)
			assert.Nil(t, x)
		})
	}
}

func TestParseExecutableCopiesInput(t *testing.T) {
	buf := testfixture.TitleXBE(7, "COPY", testfixture.TitleImage)
	x, err := xcontainer.ParseExecutable(buf, nil)
	require.NoError(t, err)

	// scribble over the caller's buffer
	for i := range buf {
		buf[i] = 0xFF
	}

	img, err := x.TitleImage()
	require.NoError(t, err)
	assert.Equal(t, testfixture.TitleImage, img)
	assert.Equal(t, "COPY", x.TitleName())
}

func TestParseExecutableInputLimit(t *testing.T) {
	buf := testfixture.TitleXBE(7, "BIG", testfixture.TitleImage)
	_, err := xcontainer.ParseExecutable(buf, xcontainer.NewConfig(xcontainer.WithMaxInputSize(100)))
	require.ErrorIs(t, err, xcontainer.ErrMaxInputSizeExceeded)
}

// TestFindSectionByName checks directory order, duplicates and unreadable names.
func TestFindSectionByName(t *testing.T) {
	const names, data = 700, 800
	b := testfixture.NewXBE().
		Certificate(64, 1, "SECTIONS").
		SectionDirectory(400, 4).
		Section(0, math.MaxUint32, data, 1). // name outside the input
		Section(1, names, data, 4).
		Section(2, names+7, data+4, 2).
		Section(3, names, data+6, 2). // duplicate of section 1
		PutString(names, ".text").
		PutString(names+7, "$$XTIMAGE").
		PutBytes(data, []byte("abcdefgh"))
	x, err := xcontainer.ParseExecutable(b.Bytes(), nil)
	require.NoError(t, err)

	s, ok := x.FindSectionByName(".text")
	require.True(t, ok)
	assert.Equal(t, uint32(data), s.RawAddress, "first match in directory order wins")

	got, err := x.SectionData(s)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), got)

	img, err := x.TitleImage()
	require.NoError(t, err)
	assert.Equal(t, []byte("ef"), img)

	_, ok = x.FindSectionByName(".data")
	assert.False(t, ok)

	_, ok = x.SectionName(x.Sections()[0])
	assert.False(t, ok)
}

// TestSectionNameBoundedByInput checks that a name without terminator ends at
// the end of the input.
func TestSectionNameBoundedByInput(t *testing.T) {
	b := testfixture.NewXBE().
		Certificate(64, 1, "X").
		SectionDirectory(300, 1)
	size := len(b.Bytes())
	b.Section(0, uint32(size), 0, 0).PutBytes(size, []byte("$$XTIM"))

	x, err := xcontainer.ParseExecutable(b.Bytes(), nil)
	require.NoError(t, err)

	name, ok := x.SectionName(x.Sections()[0])
	require.True(t, ok)
	assert.Equal(t, "$$XTIM", name)

	_, err = x.TitleImage()
	require.ErrorIs(t, err, xcontainer.ErrSectionNotFound)
}

// TestTitleImageErrors checks the two ways a title image can be unusable while
// the container itself stays valid.
func TestTitleImageErrors(t *testing.T) {
	tests := []struct {
		name    string
		rawAddr uint32
		rawSize uint32
		section string
		wantErr error
	}{
		{name: "no image section", rawAddr: 500, rawSize: 4, section: "$$XSIMAGE", wantErr: xcontainer.ErrSectionNotFound},
		{name: "image past the end", rawAddr: 500, rawSize: 1000, section: "$$XTIMAGE", wantErr: xcontainer.ErrOffsetOutOfRange},
		{name: "image size overflows", rawAddr: 500, rawSize: math.MaxUint32, section: "$$XTIMAGE", wantErr: xcontainer.ErrOffsetOutOfRange},
		{name: "image address overflows", rawAddr: math.MaxUint32, rawSize: 2, section: "$$XTIMAGE", wantErr: xcontainer.ErrOffsetOutOfRange},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := testfixture.NewXBE().
				Certificate(64, 0x4D530004, "HALO").
				SectionDirectory(300, 1).
				Section(0, 450, test.rawAddr, test.rawSize).
				PutString(450, test.section).
				PutBytes(500, []byte{1, 2, 3, 4}).
				Bytes()

			x, err := xcontainer.ParseExecutable(buf, nil)
			require.NoError(t, err)

			_, err = x.TitleImage()
			require.ErrorIs(t, err, test.wantErr)

			// identity stays available
			assert.Equal(t, "4D530004", x.TitleIDString())
			assert.Equal(t, "HALO", x.TitleName())
		})
	}
}

// TestTitleName checks both decodings of the title name field.
func TestTitleName(t *testing.T) {
	full := make([]uint16, 40)
	for i := range full {
		full[i] = 'A' + uint16(i%26)
	}

	tests := []struct {
		name     string
		units    []uint16
		decoding xcontainer.TitleNameDecoding
		want     string
	}{
		{name: "ascii", units: []uint16{'T', 'E', 'S', 'T'}, want: "TEST"},
		{name: "empty", units: nil, want: ""},
		{name: "stops at first zero", units: []uint16{'A', 'B', 0, 'C'}, want: "AB"},
		{name: "all 40 units", units: full, want: "ABCDEFGHIJKLMNOPQRSTUVWXYZABCDEFGHIJKLMN"},
		{name: "low byte keeps only the low byte", units: []uint16{0x00C4, 0x0142, 'x'}, want: "\xc4\x42x"},
		{name: "utf16 ascii", units: []uint16{'T', 'E', 'S', 'T'}, decoding: xcontainer.TitleNameUTF16, want: "TEST"},
		{name: "utf16 non ascii", units: []uint16{0x00C4, 0x0142, 'x'}, decoding: xcontainer.TitleNameUTF16, want: "Äłx"},
		{name: "utf16 surrogate pair", units: []uint16{0xD83C, 0xDFAE}, decoding: xcontainer.TitleNameUTF16, want: "🎮"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := testfixture.NewXBE().
				CertificateUnits(64, 1, test.units).
				SectionDirectory(300, 0).
				Bytes()
			x, err := xcontainer.ParseExecutable(buf, xcontainer.NewConfig(xcontainer.WithTitleNameDecoding(test.decoding)))
			require.NoError(t, err)
			assert.Equal(t, test.want, x.TitleName())
		})
	}
}

func TestTitleNameDecodingString(t *testing.T) {
	assert.Equal(t, "lowbyte", xcontainer.TitleNameLowByte.String())
	assert.Equal(t, "utf16", xcontainer.TitleNameUTF16.String())
	assert.Equal(t, "TitleNameDecoding(7)", xcontainer.TitleNameDecoding(7).String())
}

// TestCertificateTail checks that a certificate whose opaque tail is cut off
// by the end of the input still yields its identity.
func TestCertificateTail(t *testing.T) {
	b := testfixture.NewXBE().SectionDirectory(300, 0)
	certAddr := uint32(len(b.Bytes()))
	b.Certificate(certAddr, 0x1234, "TAIL").PutUint32(int(certAddr), 476)

	x, err := xcontainer.ParseExecutable(b.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(476), x.Certificate().Size)
	assert.Equal(t, uint32(0), x.Certificate().OriginalPESize)
	assert.Equal(t, "TAIL", x.TitleName())
}

// FuzzParseExecutable checks that arbitrary header fields never make the
// parser read outside the input.
func FuzzParseExecutable(f *testing.F) {
	f.Add(uint32(64), uint32(300), uint32(1), uint32(400), uint32(416), uint32(16))
	f.Add(uint32(math.MaxUint32), uint32(math.MaxUint32), uint32(math.MaxUint32), uint32(math.MaxUint32), uint32(math.MaxUint32), uint32(math.MaxUint32))
	f.Add(uint32(0), uint32(0), uint32(6), uint32(0), uint32(0), uint32(376))

	base := testfixture.TitleXBE(0x1234, "FUZZ", testfixture.TitleImage)
	f.Fuzz(func(t *testing.T, certAddr, sectAddr, numSect, nameAddr, rawAddr, rawSize uint32) {
		buf := make([]byte, len(base))
		copy(buf, base)
		binary.LittleEndian.PutUint32(buf[testfixture.XBECertAddrOffset:], certAddr)
		binary.LittleEndian.PutUint32(buf[testfixture.XBESectionsAddrOffset:], sectAddr)
		binary.LittleEndian.PutUint32(buf[testfixture.XBENumSectionsOffset:], numSect)
		binary.LittleEndian.PutUint32(buf[300+12:], rawAddr)
		binary.LittleEndian.PutUint32(buf[300+16:], rawSize)
		binary.LittleEndian.PutUint32(buf[300+20:], nameAddr)

		x, err := xcontainer.ParseExecutable(buf, nil)
		if err != nil {
			return
		}
		_ = x.TitleID()
		_ = x.TitleName()
		_, _ = x.TitleImage()
		for _, s := range x.Sections() {
			_, _ = x.SectionName(s)
			_, _ = x.SectionData(s)
		}
	})
}
