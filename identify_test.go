// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xcontainer "github.com/hashicorp/go-xcontainer"
	"github.com/hashicorp/go-xcontainer/internal/testfixture"
)

func TestIdentify(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  xcontainer.Format
	}{
		{name: "executable", input: testfixture.TitleXBE(1, "ONE", testfixture.TitleImage), want: xcontainer.FormatXBE},
		{name: "archive", input: testfixture.XIP(testfixture.XIPEntry{Name: "a", Data: []byte("a")}), want: xcontainer.FormatXIP},
		{name: "empty archive header", input: testfixture.XIPHeader(16, 0, 0, 0), want: xcontainer.FormatXIP},
		{name: "bare magic", input: []byte("XBEH"), want: xcontainer.FormatXBE},
		{name: "too short", input: []byte("XB"), want: xcontainer.FormatUnknown},
		{name: "empty", input: nil, want: xcontainer.FormatUnknown},
		{name: "other data", input: []byte("PK\x03\x04rest of a zip"), want: xcontainer.FormatUnknown},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			format, r, err := xcontainer.Identify(bytes.NewReader(test.input))
			require.NoError(t, err)
			assert.Equal(t, test.want, format)

			// the returned reader replays the consumed magic
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, string(test.input), string(got))
		})
	}
}

func TestIdentifyReadError(t *testing.T) {
	readErr := errors.New("broken pipe")
	_, _, err := xcontainer.Identify(io.MultiReader(bytes.NewReader([]byte("X")), failingReader{readErr}))
	require.ErrorIs(t, err, xcontainer.ErrIO)
	require.ErrorIs(t, err, readErr)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "xbe", xcontainer.FormatXBE.String())
	assert.Equal(t, "xip", xcontainer.FormatXIP.String())
	assert.Equal(t, "unknown", xcontainer.FormatUnknown.String())
	assert.Equal(t, "unknown", xcontainer.Format(42).String())
}
