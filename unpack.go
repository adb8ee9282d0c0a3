// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
)

// UnpackArchive writes every entry of a to dst on the target t. Directory
// entries become directories, all other entries become files. Entry names
// are checked for path traversal and symlinks before anything is written.
func UnpackArchive(ctx context.Context, t Target, dst string, a *Archive, cfg *Config) error {
	cfg = orDefault(cfg)

	// prepare telemetry capturing
	td := &TelemetryData{Type: telemetryTypeXIP}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())
	td.InputSize = int64(a.Header().DataOffset) + a.payloadExtent()

	return extract(ctx, t, dst, newXIPWalker(a), cfg, td)
}

// extract checks ctx for cancellation, while it walks src and creates its entries in dst.
func extract(ctx context.Context, t Target, dst string, src archiveWalker, cfg *Config, td *TelemetryData) error {
	// ensure the destination exists
	if err := createDir(t, dst, ".", cfg.CustomCreateDirMode(), cfg); err != nil {
		return handleError(cfg, td, "cannot use destination", err)
	}

	cfg.Logger().Info("start extraction", "type", src.Type(), "destination", dst)
	var objectCounter int64
	var extractedBytes int64

	for {
		// check if context is canceled
		if err := ctx.Err(); err != nil {
			return err
		}

		ae, err := src.Next()
		switch {
		case err == io.EOF:
			cfg.Logger().Info("extraction finished", "files", td.ExtractedFiles, "dirs", td.ExtractedDirs, "bytes", extractedBytes)
			return nil
		case err != nil:
			return handleError(cfg, td, "error reading", err)
		}

		// check if maximum of objects is exceeded
		objectCounter++
		if err := cfg.CheckMaxFiles(objectCounter); err != nil {
			return handleError(cfg, td, "max objects check failed", err)
		}

		// check if file needs to match patterns
		match, err := checkPatterns(cfg.Patterns(), ae.Name())
		if err != nil {
			return handleError(cfg, td, "cannot check pattern", err)
		}
		if !match {
			cfg.Logger().Info("skipping entry (pattern mismatch)", "name", ae.Name())
			td.PatternMismatches++
			continue
		}

		cfg.Logger().Debug("extract", "name", ae.Name())

		if ae.IsDir() {
			if err := createDir(t, dst, ae.Name(), cfg.CustomCreateDirMode(), cfg); err != nil {
				if err := handleError(cfg, td, "failed to create safe directory", err); err != nil {
					return err
				}
				continue
			}
			td.ExtractedDirs++
			continue
		}

		// check extraction size
		if err := cfg.CheckExtractionSize(extractedBytes + ae.Size()); err != nil {
			return handleError(cfg, td, "max extraction size exceeded", err)
		}

		n, err := extractEntry(t, dst, ae, extractedBytes, cfg)
		extractedBytes += n
		td.ExtractionSize = extractedBytes
		if err != nil {
			if err := handleError(cfg, td, "failed to create file", err); err != nil {
				return err
			}
			continue
		}
		td.ExtractedFiles++
	}
}

// extractEntry creates the file for ae and verifies that the full payload was written.
func extractEntry(t Target, dst string, ae archiveEntry, extractedBytes int64, cfg *Config) (int64, error) {
	fin, err := ae.Open()
	if err != nil {
		return 0, err
	}
	defer fin.Close()

	remaining := int64(-1)
	if cfg.MaxExtractionSize() >= 0 {
		remaining = cfg.MaxExtractionSize() - extractedBytes
	}

	n, err := createFile(t, dst, ae.Name(), fin, cfg.CustomFileMode(), remaining, cfg)
	if err != nil {
		return n, err
	}
	if n != ae.Size() {
		return n, ioError("read", ae.Name(), fmt.Errorf("payload ends after %d of %d bytes: %w", n, ae.Size(), io.ErrUnexpectedEOF))
	}
	return n, nil
}

// checkPatterns checks if the given path matches any of the given patterns.
// If no patterns are given, the function returns true.
func checkPatterns(patterns []string, path string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}
	for _, pattern := range patterns {
		match, err := filepath.Match(pattern, path)
		if err != nil {
			return false, fmt.Errorf("failed to match pattern: %w", err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
