// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TelemetryData holds the counters of a scan or an archive unpack.
type TelemetryData struct {
	// Duration is the time the operation took
	Duration time.Duration `json:"duration"`

	// ExtractedDirs is the number of created directories
	ExtractedDirs int64 `json:"extracted_dirs"`

	// ExtractedFiles is the number of extracted files
	ExtractedFiles int64 `json:"extracted_files"`

	// ExtractionErrors is the number of errors during the operation
	ExtractionErrors int64 `json:"extraction_errors"`

	// ExtractionSize is the number of payload bytes written
	ExtractionSize int64 `json:"extraction_size"`

	// InputSize is the size of the input
	InputSize int64 `json:"input_size"`

	// LastExtractionError is the last error during the operation
	LastExtractionError error `json:"last_extraction_error"`

	// ParsedTitles is the number of executables that yielded a title record
	ParsedTitles int64 `json:"parsed_titles"`

	// PatternMismatches is the number of skipped entries
	PatternMismatches int64 `json:"pattern_mismatches"`

	// ScannedFiles is the number of candidate executables found by a scan
	ScannedFiles int64 `json:"scanned_files"`

	// SkippedFiles is the number of candidate executables that were not usable
	SkippedFiles int64 `json:"skipped_files"`

	// Type is the kind of operation, "scan" or "xip"
	Type string `json:"type"`
}

// String returns a string representation of [TelemetryData].
func (m TelemetryData) String() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (m TelemetryData) MarshalJSON() ([]byte, error) {
	var lastError string
	if m.LastExtractionError != nil {
		lastError = m.LastExtractionError.Error()
	}

	type Alias TelemetryData
	return json.Marshal(&struct {
		LastExtractionError string `json:"last_extraction_error"`
		*Alias
	}{
		LastExtractionError: lastError,
		Alias:               (*Alias)(&m),
	})
}

// TelemetryHook is a function type that performs operations on [TelemetryData]
// after a scan or unpack has finished.
type TelemetryHook func(context.Context, *TelemetryData)

// Equals returns true if the given [TelemetryData] is equal to the receiver.
// Duration and the last error are not compared.
func (td *TelemetryData) Equals(other *TelemetryData) bool {
	if td == nil && other == nil {
		return true
	}
	if td == nil || other == nil {
		return false
	}
	return td.ExtractedDirs == other.ExtractedDirs &&
		td.ExtractedFiles == other.ExtractedFiles &&
		td.ExtractionErrors == other.ExtractionErrors &&
		td.ExtractionSize == other.ExtractionSize &&
		td.InputSize == other.InputSize &&
		td.ParsedTitles == other.ParsedTitles &&
		td.PatternMismatches == other.PatternMismatches &&
		td.ScannedFiles == other.ScannedFiles &&
		td.SkippedFiles == other.SkippedFiles &&
		td.Type == other.Type
}

// now is a function point that returns time.Now to the caller.
var now = time.Now

// captureDuration stores the time elapsed since start.
func captureDuration(td *TelemetryData, start time.Time) {
	td.Duration = now().Sub(start)
}

// handleError increases the error counter, sets the latest error and
// decides if the operation should continue.
func handleError(c *Config, td *TelemetryData, msg string, err error) error {
	td.ExtractionErrors++
	td.LastExtractionError = fmt.Errorf("%s: %w", msg, err)

	// do not end on error
	if c.ContinueOnError() {
		c.Logger().Error(msg, "error", err)
		return nil
	}

	return td.LastExtractionError
}
