// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	"context"
	"io/fs"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The parsers only consult the size limits and the title name decoding. The
// remaining options steer the scan and unpack helpers that sit on top of them.
// The default configuration refuses oversized inputs and never overwrites
// existing files.
type Config struct {
	// continueOnError decides if a scan or unpack should continue after an error
	continueOnError bool

	// copyBufferSize is the chunk size used when copying entry payloads
	copyBufferSize int

	// create destination directory if it does not exist
	createDestination bool

	// customCreateDirMode is the file mode for created directories (respecting umask)
	customCreateDirMode fs.FileMode

	// customFileMode is the file mode for extracted files (respecting umask)
	customFileMode fs.FileMode

	// logger stream for scans and unpacks
	logger logger

	// maxExtractionSize is the maximum number of payload bytes written by one operation.
	// Set value to -1 to disable the check.
	maxExtractionSize int64

	// maxFiles is the maximum number of entries or titles processed by one operation.
	// Set value to -1 to disable the check.
	maxFiles int64

	// maxInputSize is the maximum size of an input file.
	// Set value to -1 to disable the check.
	maxInputSize int64

	// Define if files should be overwritten in the destination
	overwrite bool

	// patterns is a list of file patterns an archive entry must match to be unpacked
	patterns []string

	// scanConcurrency is the number of scan roots walked in parallel
	scanConcurrency int

	// scanFileName is the executable file name a scan looks for
	scanFileName string

	// telemetryHook is a function to consume telemetry data after a finished scan or unpack
	telemetryHook TelemetryHook

	// titleNameDecoding selects how the certificate title name is decoded
	titleNameDecoding TitleNameDecoding
}

// ContinueOnError returns true if a scan or unpack should continue on error.
func (c *Config) ContinueOnError() bool {
	return c.continueOnError
}

// CopyBufferSize returns the chunk size used when copying entry payloads.
func (c *Config) CopyBufferSize() int {
	return c.copyBufferSize
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxFilesExceeded] error is returned.
func (c *Config) CheckMaxFiles(counter int64) error {

	// check if disabled
	if c.MaxFiles() == -1 {
		return nil
	}

	// check value
	if counter > c.MaxFiles() {
		return ErrMaxFilesExceeded
	}
	return nil
}

// CheckExtractionSize checks if size exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxExtractionSizeExceeded] error is returned.
func (c *Config) CheckExtractionSize(size int64) error {

	// check if disabled
	if c.MaxExtractionSize() == -1 {
		return nil
	}

	// check value
	if size > c.MaxExtractionSize() {
		return ErrMaxExtractionSizeExceeded
	}
	return nil
}

// CheckInputSize checks if size exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxInputSizeExceeded] error is returned.
func (c *Config) CheckInputSize(size int64) error {
	if c.MaxInputSize() == -1 {
		return nil
	}
	if size > c.MaxInputSize() {
		return ErrMaxInputSizeExceeded
	}
	return nil
}

// CreateDestination returns true if the destination directory should be
// created if it does not exist.
func (c *Config) CreateDestination() bool {
	return c.createDestination
}

// CustomCreateDirMode returns the file mode for created directories.
// (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// CustomFileMode returns the file mode for extracted files.
// (respecting umask)
func (c *Config) CustomFileMode() fs.FileMode {
	return c.customFileMode
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxExtractionSize returns the maximum number of payload bytes written by one operation.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum number of entries or titles processed by one operation.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of an input file.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// Patterns returns a list of unix-filepath patterns an archive entry must match to be unpacked.
// Patterns are matched using [path/filepath.Match].
func (c *Config) Patterns() []string {
	return c.patterns
}

// ScanConcurrency returns the number of scan roots that are walked in parallel.
func (c *Config) ScanConcurrency() int {
	return c.scanConcurrency
}

// ScanFileName returns the executable file name a scan looks for.
func (c *Config) ScanFileName() string {
	return c.scanFileName
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return func(ctx context.Context, d *TelemetryData) {
			// noop
		}
	}
	return c.telemetryHook
}

// TitleNameDecoding returns how certificate title names are decoded.
func (c *Config) TitleNameDecoding() TitleNameDecoding {
	return c.titleNameDecoding
}

const (
	defaultContinueOnError     = false         // stop on error and return error
	defaultCopyBufferSize      = 4096          // chunk size for payload copies
	defaultCreateDestination   = false         // don't create destination directory
	defaultCustomCreateDirMode = 0750          // default directory permissions rwxr-x---
	defaultCustomFileMode      = 0640          // default file permissions rw-r-----
	defaultMaxFiles            = 100000        // 100k files
	defaultMaxExtractionSize   = 1 << (10 * 3) // 1 Gb
	defaultMaxInputSize        = 1 << (10 * 3) // 1 Gb
	defaultOverwrite           = false         // don't overwrite existing files
	defaultScanConcurrency     = 1             // walk one root at a time
	defaultScanFileName        = "default.xbe" // dashboard launch executable
	defaultTitleNameDecoding   = TitleNameLowByte
)

var (
	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		continueOnError:     defaultContinueOnError,
		copyBufferSize:      defaultCopyBufferSize,
		createDestination:   defaultCreateDestination,
		customCreateDirMode: defaultCustomCreateDirMode,
		customFileMode:      defaultCustomFileMode,
		logger:              defaultLogger,
		maxExtractionSize:   defaultMaxExtractionSize,
		maxFiles:            defaultMaxFiles,
		maxInputSize:        defaultMaxInputSize,
		overwrite:           defaultOverwrite,
		scanConcurrency:     defaultScanConcurrency,
		scanFileName:        defaultScanFileName,
		telemetryHook:       defaultTelemetryHook,
		titleNameDecoding:   defaultTitleNameDecoding,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// orDefault returns cfg, or a default configuration if cfg is nil.
func orDefault(cfg *Config) *Config {
	if cfg == nil {
		return NewConfig()
	}
	return cfg
}

// WithContinueOnError options pattern function to continue on error during a scan or unpack.
// If set to true, the error is logged and the operation continues. If set to false, the
// operation stops and returns the error.
func WithContinueOnError(yes bool) ConfigOption {
	return func(c *Config) {
		c.continueOnError = yes
	}
}

// WithCopyBufferSize options pattern function to set the chunk size used when
// copying entry payloads. Values below 1 are ignored.
func WithCopyBufferSize(size int) ConfigOption {
	return func(c *Config) {
		if size > 0 {
			c.copyBufferSize = size
		}
	}
}

// WithCreateDestination options pattern function to create
// destination directory if it does not exist.
func WithCreateDestination(create bool) ConfigOption {
	return func(c *Config) {
		c.createDestination = create
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithCustomFileMode options pattern function to set the file mode for
// extracted files. (respecting umask)
func WithCustomFileMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customFileMode = mode
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxExtractionSize options pattern function to set the maximum number of
// payload bytes written by one operation. (-1 to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set the maximum number of entries
// or titles processed by one operation. (-1 to disable check)
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set the maximum size of an input file. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in the destination.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithPatterns options pattern function to set filepath patterns that archive entries need to
// match to be unpacked. Patterns are matched using [path/filepath.Match].
func WithPatterns(pattern ...string) ConfigOption {
	return func(c *Config) {
		c.patterns = append(c.patterns, pattern...)
	}
}

// WithScanConcurrency options pattern function to set the number of scan roots
// walked in parallel. Values below 1 are ignored.
func WithScanConcurrency(n int) ConfigOption {
	return func(c *Config) {
		if n > 0 {
			c.scanConcurrency = n
		}
	}
}

// WithScanFileName options pattern function to set the executable file name a scan looks for.
func WithScanFileName(name string) ConfigOption {
	return func(c *Config) {
		if len(name) > 0 {
			c.scanFileName = name
		}
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after
// a scan or unpack finished.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}

// WithTitleNameDecoding options pattern function to select how certificate title names are decoded.
func WithTitleNameDecoding(d TitleNameDecoding) ConfigOption {
	return func(c *Config) {
		c.titleNameDecoding = d
	}
}
