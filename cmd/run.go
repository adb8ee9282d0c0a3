// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	xcontainer "github.com/hashicorp/go-xcontainer"
)

// Globals are the flags shared by all sub commands
type Globals struct {
	Format       string           `short:"f" enum:"text,json,yaml" default:"text" help:"Output format (text, json, yaml)."`
	MaxInputSize int64            `optional:"" default:"1073741824" help:"Maximum input size that allowed is (in bytes). (disable check: -1)"`
	Telemetry    bool             `short:"T" optional:"" help:"Print telemetry data to log after scan or unpack."`
	UTF16        bool             `optional:"" name:"utf16" help:"Decode title names as UTF-16 instead of keeping the low byte of each code unit."`
	Verbose      bool             `short:"v" optional:"" help:"Verbose logging."`
	Version      kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`

	ctx    context.Context
	out    io.Writer
	logger *slog.Logger
}

// CLI are the cli parameters for the xcontainer binary
type CLI struct {
	Globals

	Info    infoCmd    `cmd:"" help:"Show the header of an executable or archive container."`
	Title   titleCmd   `cmd:"" help:"Show the title id and name of an executable."`
	Image   imageCmd   `cmd:"" help:"Write the title image of an executable to a file."`
	Scan    scanCmd    `cmd:"" help:"Find executables below the given directories and list their titles."`
	List    listCmd    `cmd:"" help:"List the entries of an archive."`
	Extract extractCmd `cmd:"" help:"Extract a single entry of an archive."`
	Unpack  unpackCmd  `cmd:"" help:"Unpack all entries of an archive into a directory."`
	Create  createCmd  `cmd:"" help:"Create an empty archive."`
	Add     addCmd     `cmd:"" help:"Add a file or directory entry to an archive."`
}

// Run the entrypoint into xcontainer as a cli tool
func Run(version, commit, date string) {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, os.Exit, version, commit, date))
}

// run parses args, executes the selected command and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, exit func(int), version, commit, date string) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("xcontainer"),
		kong.Description("Inspect console executables and read or write their archives"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(exit),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)
	if err != nil {
		fmt.Fprintf(stderr, "xcontainer: %s\n", err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "xcontainer: %s\n", err)
		return 2
	}

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Telemetry {
		logLevel = slog.LevelInfo
	}
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}
	cli.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	cli.out = stdout
	cli.ctx = ctx

	if err := kctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(stderr, "xcontainer: %s\n", err)
		return 1
	}
	return 0
}

// config returns the library configuration for the global flags and opts.
func (g *Globals) config(opts ...xcontainer.ConfigOption) *xcontainer.Config {
	decoding := xcontainer.TitleNameLowByte
	if g.UTF16 {
		decoding = xcontainer.TitleNameUTF16
	}

	// setup telemetry hook
	telemetryToLog := func(ctx context.Context, td *xcontainer.TelemetryData) {
		if g.Telemetry {
			g.logger.Info("operation finished", "telemetry", td)
		}
	}

	return xcontainer.NewConfig(append([]xcontainer.ConfigOption{
		xcontainer.WithLogger(g.logger),
		xcontainer.WithMaxInputSize(g.MaxInputSize),
		xcontainer.WithTelemetryHook(telemetryToLog),
		xcontainer.WithTitleNameDecoding(decoding),
	}, opts...)...)
}

// print writes v in the selected format. Text output is produced by text.
func (g *Globals) print(v any, text func(w io.Writer) error) error {
	switch g.Format {
	case "json":
		enc := json.NewEncoder(g.out)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "encode json")
	case "yaml":
		enc := yaml.NewEncoder(g.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return errors.Wrap(enc.Close(), "encode yaml")
	default:
		return text(g.out)
	}
}
