// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Scan walks every root recursively and loads each regular file named
// cfg.ScanFileName(). Executables that fail to parse or carry no title image
// are logged, counted as skipped and never end the scan. Roots are walked
// concurrently, up to cfg.ScanConcurrency() at a time; the records are
// returned grouped by root in the order of roots and in lexical walk order
// within a root.
func Scan(ctx context.Context, roots []string, cfg *Config) ([]TitleRecord, error) {
	cfg = orDefault(cfg)

	// prepare telemetry capturing
	td := &TelemetryData{Type: telemetryTypeScan}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())

	var scanned atomic.Int64
	results := make([][]TitleRecord, len(roots))
	stats := make([]TelemetryData, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.ScanConcurrency())
	for i, root := range roots {
		i, root := i, root
		g.Go(func() error {
			s := &scanner{cfg: cfg, td: &stats[i], scanned: &scanned}
			err := s.walk(gctx, root)
			results[i] = s.records
			return err
		})
	}
	err := g.Wait()

	var records []TitleRecord
	for i := range roots {
		records = append(records, results[i]...)
		mergeScanTelemetry(td, &stats[i])
	}
	return records, err
}

// scanner collects the title records below one root.
type scanner struct {
	cfg     *Config
	td      *TelemetryData
	scanned *atomic.Int64
	records []TitleRecord
}

func (s *scanner) walk(ctx context.Context, root string) error {
	s.cfg.Logger().Info("scan root", "root", root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// a missing root is never silently skipped
			if path == root {
				return ioError("walk", root, err)
			}
			if herr := handleError(s.cfg, s.td, "cannot read directory", err); herr != nil {
				return herr
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || d.Name() != s.cfg.ScanFileName() {
			return nil
		}

		s.td.ScannedFiles++
		if err := s.cfg.CheckMaxFiles(s.scanned.Add(1)); err != nil {
			return handleError(s.cfg, s.td, "max files check failed", err)
		}
		s.load(path)
		return nil
	})
}

// load parses the executable at path and records it if it is usable.
func (s *scanner) load(path string) {
	x, err := LoadExecutable(path, s.cfg)
	if err == nil {
		var rec TitleRecord
		if rec, err = NewTitleRecord(path, x); err == nil {
			s.records = append(s.records, rec)
			s.td.ParsedTitles++
			s.cfg.Logger().Debug("found title", "path", path, "title_id", rec.TitleIDString, "title", rec.TitleName, "image_size", rec.ImageSize)
			return
		}
	}

	s.td.SkippedFiles++
	if errors.Is(err, ErrSectionNotFound) {
		s.cfg.Logger().Info("skip executable without title image", "path", path)
		return
	}
	s.td.LastExtractionError = fmt.Errorf("skip %s: %w", path, err)
	s.cfg.Logger().Warn("skip unreadable executable", "path", path, "error", err)
}

// mergeScanTelemetry adds the counters of one root to the scan total.
func mergeScanTelemetry(total *TelemetryData, root *TelemetryData) {
	total.ExtractionErrors += root.ExtractionErrors
	total.ParsedTitles += root.ParsedTitles
	total.ScannedFiles += root.ScannedFiles
	total.SkippedFiles += root.SkippedFiles
	if root.LastExtractionError != nil {
		total.LastExtractionError = root.LastExtractionError
	}
}
