// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xcontainer "github.com/hashicorp/go-xcontainer"
	"github.com/hashicorp/go-xcontainer/internal/testfixture"
)

// writeFile writes data to root/rel, creating parent directories.
func writeFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// noImageXBE returns a valid executable without a title image section.
func noImageXBE() []byte {
	return testfixture.NewXBE().
		Certificate(64, 0x5553000A, "NOIMAGE").
		SectionDirectory(300, 1).
		Section(0, 400, 416, 4).
		PutString(400, ".text").
		PutBytes(416, []byte{1, 2, 3, 4}).
		Bytes()
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	halo := writeFile(t, root, "games/halo/default.xbe", testfixture.TitleXBE(0x4D530004, "Halo", testfixture.TitleImage))
	writeFile(t, root, "games/halo/other.xbe", testfixture.TitleXBE(1, "Other", testfixture.TitleImage))
	writeFile(t, root, "games/broken/default.xbe", []byte("definitely not an executable"))
	writeFile(t, root, "apps/noimage/default.xbe", noImageXBE())
	dash := writeFile(t, root, "apps/dash/default.xbe", testfixture.TitleXBE(0xFFFE0000, "Dashboard", []byte{1, 2, 3}))

	var td *xcontainer.TelemetryData
	cfg := xcontainer.NewConfig(xcontainer.WithTelemetryHook(func(ctx context.Context, d *xcontainer.TelemetryData) {
		td = d
	}))

	records, err := xcontainer.Scan(context.Background(), []string{root}, cfg)
	require.NoError(t, err)

	// lexical walk order: apps before games
	require.Len(t, records, 2)
	assert.Equal(t, dash, records[0].Path)
	assert.Equal(t, "FFFE0000", records[0].TitleIDString)
	assert.Equal(t, "Dashboard", records[0].TitleName)
	assert.Equal(t, 3, records[0].ImageSize)

	assert.Equal(t, xcontainer.TitleRecord{
		Path:          halo,
		TitleID:       0x4D530004,
		TitleIDString: "4D530004",
		TitleName:     "Halo",
		ImageSize:     len(testfixture.TitleImage),
		ImageDigest:   digest.FromBytes(testfixture.TitleImage),
		TitleImage:    testfixture.TitleImage,
	}, records[1])

	require.NotNil(t, td)
	assert.True(t, td.Equals(&xcontainer.TelemetryData{
		ParsedTitles: 2,
		ScannedFiles: 4,
		SkippedFiles: 2,
		Type:         "scan",
	}), "telemetry: %s", td)
	require.ErrorIs(t, td.LastExtractionError, xcontainer.ErrTruncatedData)
}

func TestScanRoots(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, first, "a/default.xbe", testfixture.TitleXBE(1, "One", testfixture.TitleImage))
	writeFile(t, second, "b/default.xbe", testfixture.TitleXBE(2, "Two", testfixture.TitleImage))
	writeFile(t, second, "c/default.xbe", testfixture.TitleXBE(3, "Three", testfixture.TitleImage))

	tests := []struct {
		name        string
		concurrency int
	}{
		{name: "sequential", concurrency: 1},
		{name: "concurrent", concurrency: 4},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			records, err := xcontainer.Scan(context.Background(), []string{second, first}, xcontainer.NewConfig(xcontainer.WithScanConcurrency(test.concurrency)))
			require.NoError(t, err)

			var ids []uint32
			for _, r := range records {
				ids = append(ids, r.TitleID)
			}
			assert.Equal(t, []uint32{2, 3, 1}, ids, "records are grouped by root in argument order")
		})
	}
}

func TestScanErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/default.xbe", testfixture.TitleXBE(1, "One", testfixture.TitleImage))
	writeFile(t, root, "b/default.xbe", testfixture.TitleXBE(2, "Two", testfixture.TitleImage))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name        string
		ctx         context.Context
		roots       []string
		opts        []xcontainer.ConfigOption
		wantErr     error
		wantRecords int
	}{
		{name: "missing root", ctx: context.Background(), roots: []string{root, filepath.Join(root, "missing")}, wantErr: xcontainer.ErrIO, wantRecords: 2},
		{name: "max files", ctx: context.Background(), roots: []string{root}, opts: []xcontainer.ConfigOption{xcontainer.WithMaxFiles(1)}, wantErr: xcontainer.ErrMaxFilesExceeded, wantRecords: 1},
		{name: "max files with continue on error", ctx: context.Background(), roots: []string{root}, opts: []xcontainer.ConfigOption{xcontainer.WithMaxFiles(1), xcontainer.WithContinueOnError(true)}, wantRecords: 1},
		{name: "canceled", ctx: canceled, roots: []string{root}, wantErr: context.Canceled},
		{name: "no roots", ctx: context.Background()},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			records, err := xcontainer.Scan(test.ctx, test.roots, xcontainer.NewConfig(test.opts...))
			if test.wantErr != nil {
				require.ErrorIs(t, err, test.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, records, test.wantRecords)
		})
	}
}

func TestScanFileName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/default.xbe", testfixture.TitleXBE(1, "One", testfixture.TitleImage))
	writeFile(t, root, "a/title.xbe", testfixture.TitleXBE(2, "Two", testfixture.TitleImage))
	writeFile(t, root, "b/DEFAULT.XBE", testfixture.TitleXBE(3, "Three", testfixture.TitleImage))

	records, err := xcontainer.Scan(context.Background(), []string{root}, xcontainer.NewConfig(xcontainer.WithScanFileName("title.xbe")))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint32(2), records[0].TitleID)

	// names are matched exactly
	records, err = xcontainer.Scan(context.Background(), []string{root}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint32(1), records[0].TitleID)
}

func TestNewTitleRecord(t *testing.T) {
	x, err := xcontainer.ParseExecutable(noImageXBE(), nil)
	require.NoError(t, err)

	_, err = xcontainer.NewTitleRecord("noimage.xbe", x)
	require.ErrorIs(t, err, xcontainer.ErrSectionNotFound)

	x, err = xcontainer.ParseExecutable(testfixture.TitleXBE(0x1234, "TESTGAME", testfixture.TitleImage), nil)
	require.NoError(t, err)
	rec, err := xcontainer.NewTitleRecord("title.xbe", x)
	require.NoError(t, err)
	assert.Equal(t, "00001234", rec.TitleIDString)
	assert.Equal(t, digest.SHA256, rec.ImageDigest.Algorithm())
	require.NoError(t, rec.ImageDigest.Validate())
}
