// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLimitErrorReaderRead(t *testing.T) {
	tests := []struct {
		name       string
		limit      int64
		input      string
		bufferSize int
		expectN    int
		wantErr    bool
	}{
		{
			name:       "Under limit",
			limit:      10,
			input:      "12345",
			bufferSize: 5,
			expectN:    5,
			wantErr:    false,
		},
		{
			name:       "At limit",
			limit:      5,
			input:      "12345",
			bufferSize: 5,
			expectN:    5,
			wantErr:    false,
		},
		{
			name:       "Over limit",
			limit:      4,
			input:      "12345",
			bufferSize: 5,
			expectN:    4,
			wantErr:    false,
		},
		{
			name:       "Under limit with buffer",
			limit:      10,
			input:      "12345",
			bufferSize: 2,
			expectN:    2,
			wantErr:    false,
		},
		{
			name:       "Unlimited",
			limit:      -1,
			input:      "12345",
			bufferSize: 5,
			expectN:    5,
			wantErr:    false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := strings.NewReader(test.input)
			l := newLimitErrorReader(r, test.limit)
			buf := make([]byte, test.bufferSize)
			n, err := l.Read(buf)
			if (err != nil) != test.wantErr {
				t.Fatalf("Read() error = %v, wantErr %v", err, test.wantErr)
			}
			if n != test.expectN {
				t.Errorf("Read() = %v, want %v", n, test.expectN)
			}
			if l.ReadBytes() != int64(test.expectN) {
				t.Errorf("ReadBytes() = %v, want %v", l.ReadBytes(), test.expectN)
			}
		})
	}
}

// TestLimitErrorReaderReadAll checks that a source of exactly the limit is
// accepted and a larger one is rejected.
func TestLimitErrorReaderReadAll(t *testing.T) {
	tests := []struct {
		name     string
		limit    int64
		input    string
		exceeded bool
	}{
		{name: "exactly the limit", limit: 5, input: "12345"},
		{name: "below the limit", limit: 6, input: "12345"},
		{name: "one byte over", limit: 4, input: "12345", exceeded: true},
		{name: "empty input", limit: 0, input: ""},
		{name: "unlimited", limit: -1, input: strings.Repeat("x", 1<<16)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l := newLimitErrorReader(strings.NewReader(test.input), test.limit)
			data, err := io.ReadAll(l)
			if test.exceeded {
				if !errors.Is(err, errReadLimitExceeded) {
					t.Fatalf("ReadAll() error = %v, want %v", err, errReadLimitExceeded)
				}
				if !l.Exceeded() {
					t.Errorf("Exceeded() = false, want true")
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(data) != test.input {
				t.Errorf("ReadAll() returned %d bytes, want %d", len(data), len(test.input))
			}
			if l.Exceeded() {
				t.Errorf("Exceeded() = true, want false")
			}
		})
	}
}
