// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	xcontainer "github.com/hashicorp/go-xcontainer"
)

// sectionInfo is the printable form of a section record
type sectionInfo struct {
	Name       string `json:"name" yaml:"name"`
	RawAddress uint32 `json:"raw_address" yaml:"raw_address"`
	RawSize    uint32 `json:"raw_size" yaml:"raw_size"`
}

// executableInfo is the printable summary of an executable container
type executableInfo struct {
	Format             string        `json:"format" yaml:"format"`
	Path               string        `json:"path" yaml:"path"`
	Size               int           `json:"size" yaml:"size"`
	BaseAddress        uint32        `json:"base_address" yaml:"base_address"`
	EntryPoint         uint32        `json:"entry_point" yaml:"entry_point"`
	CertificateAddress uint32        `json:"certificate_address" yaml:"certificate_address"`
	TitleID            string        `json:"title_id" yaml:"title_id"`
	TitleName          string        `json:"title_name" yaml:"title_name"`
	Sections           []sectionInfo `json:"sections" yaml:"sections"`
}

// archiveInfo is the printable summary of an archive container
type archiveInfo struct {
	Format     string                    `json:"format" yaml:"format"`
	Path       string                    `json:"path" yaml:"path"`
	DataOffset uint32                    `json:"data_offset" yaml:"data_offset"`
	DataSize   uint32                    `json:"data_size" yaml:"data_size"`
	NumFiles   uint16                    `json:"num_files" yaml:"num_files"`
	NumNames   uint16                    `json:"num_names" yaml:"num_names"`
	Entries    []xcontainer.ArchiveEntry `json:"entries" yaml:"entries"`
}

// titleInfo is the printable identity of an executable
type titleInfo struct {
	Path        string        `json:"path" yaml:"path"`
	TitleID     string        `json:"title_id" yaml:"title_id"`
	TitleName   string        `json:"title_name" yaml:"title_name"`
	ImageSize   int           `json:"image_size" yaml:"image_size"`
	ImageDigest digest.Digest `json:"image_digest,omitempty" yaml:"image_digest,omitempty"`
}

type infoCmd struct {
	Path string `arg:"" name:"file" help:"Path to an executable or archive container." type:"existingfile"`
}

func (c *infoCmd) Run(g *Globals) error {
	f, err := os.Open(c.Path)
	if err != nil {
		return errors.Wrap(err, "open input")
	}
	format, _, err := xcontainer.Identify(f)
	f.Close()
	if err != nil {
		return errors.Wrap(err, "identify input")
	}

	switch format {
	case xcontainer.FormatXBE:
		return c.executable(g)
	case xcontainer.FormatXIP:
		return c.archive(g)
	default:
		return errors.Wrapf(xcontainer.ErrBadMagic, "unknown container format of %s", c.Path)
	}
}

func (c *infoCmd) executable(g *Globals) error {
	x, err := xcontainer.LoadExecutable(c.Path, g.config())
	if err != nil {
		return errors.Wrap(err, "load executable")
	}

	hdr := x.Header()
	info := executableInfo{
		Format:             xcontainer.FormatXBE.String(),
		Path:               c.Path,
		Size:               x.Size(),
		BaseAddress:        hdr.BaseAddress,
		EntryPoint:         hdr.EntryPoint,
		CertificateAddress: hdr.CertificateAddress,
		TitleID:            x.TitleIDString(),
		TitleName:          x.TitleName(),
		Sections:           []sectionInfo{},
	}
	for _, s := range x.Sections() {
		name, ok := x.SectionName(s)
		if !ok {
			name = "?"
		}
		info.Sections = append(info.Sections, sectionInfo{Name: name, RawAddress: s.RawAddress, RawSize: s.RawSize})
	}

	return g.print(info, func(w io.Writer) error {
		fmt.Fprintf(w, "format:      %s\n", info.Format)
		fmt.Fprintf(w, "size:        %d\n", info.Size)
		fmt.Fprintf(w, "base:        0x%08X\n", info.BaseAddress)
		fmt.Fprintf(w, "entry point: 0x%08X\n", info.EntryPoint)
		fmt.Fprintf(w, "title id:    %s\n", info.TitleID)
		fmt.Fprintf(w, "title name:  %s\n", info.TitleName)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SECTION\tRAW ADDRESS\tRAW SIZE")
		for _, s := range info.Sections {
			fmt.Fprintf(tw, "%s\t0x%08X\t%d\n", s.Name, s.RawAddress, s.RawSize)
		}
		return tw.Flush()
	})
}

func (c *infoCmd) archive(g *Globals) error {
	a, err := xcontainer.OpenArchive(c.Path, g.config())
	if err != nil {
		return errors.Wrap(err, "open archive")
	}
	defer a.Close()

	hdr := a.Header()
	info := archiveInfo{
		Format:     xcontainer.FormatXIP.String(),
		Path:       c.Path,
		DataOffset: hdr.DataOffset,
		DataSize:   hdr.DataSize,
		NumFiles:   hdr.NumFiles,
		NumNames:   hdr.NumNames,
		Entries:    a.Entries(),
	}
	return g.print(info, func(w io.Writer) error {
		fmt.Fprintf(w, "format:      %s\n", info.Format)
		fmt.Fprintf(w, "data offset: 0x%X\n", info.DataOffset)
		fmt.Fprintf(w, "data size:   %d\n", info.DataSize)
		fmt.Fprintf(w, "files:       %d\n", info.NumFiles)
		fmt.Fprintf(w, "names:       %d\n", info.NumNames)
		return printEntries(w, info.Entries)
	})
}

type titleCmd struct {
	Path string `arg:"" name:"xbe" help:"Path to an executable container." type:"existingfile"`
}

func (c *titleCmd) Run(g *Globals) error {
	x, err := xcontainer.LoadExecutable(c.Path, g.config())
	if err != nil {
		return errors.Wrap(err, "load executable")
	}

	info := titleInfo{Path: c.Path, TitleID: x.TitleIDString(), TitleName: x.TitleName()}
	if img, err := x.TitleImage(); err == nil {
		info.ImageSize = len(img)
		info.ImageDigest = digest.FromBytes(img)
	} else {
		g.logger.Info("no title image", "path", c.Path, "error", err)
	}

	return g.print(info, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s\t%s\n", info.TitleID, info.TitleName)
		return err
	})
}

type imageCmd struct {
	Path      string `arg:"" name:"xbe" help:"Path to an executable container." type:"existingfile"`
	Output    string `arg:"" name:"output" help:"Output file. (\"-\" for STDOUT)"`
	Overwrite bool   `short:"O" help:"Overwrite if exist."`
}

func (c *imageCmd) Run(g *Globals) error {
	cfg := g.config()
	x, err := xcontainer.LoadExecutable(c.Path, cfg)
	if err != nil {
		return errors.Wrap(err, "load executable")
	}
	img, err := x.TitleImage()
	if err != nil {
		return errors.Wrap(err, "read title image")
	}

	if c.Output == "-" {
		_, err := g.out.Write(img)
		return errors.Wrap(err, "write title image")
	}
	_, err = xcontainer.NewTargetDisk().CreateFile(c.Output, bytes.NewReader(img), cfg.CustomFileMode(), c.Overwrite, -1)
	return errors.Wrap(err, "write title image")
}

type scanCmd struct {
	Roots           []string `arg:"" name:"roots" help:"Directories to scan."`
	Name            string   `short:"n" default:"default.xbe" help:"File name of the executables to load."`
	Concurrency     int      `short:"j" default:"1" help:"Number of directories scanned in parallel."`
	ContinueOnError bool     `short:"C" help:"Continue the scan on unreadable directories."`
	MaxFiles        int64    `optional:"" default:"100000" help:"Maximum executables that are loaded before stop. (disable check: -1)"`
}

func (c *scanCmd) Run(g *Globals) error {
	cfg := g.config(
		xcontainer.WithScanFileName(c.Name),
		xcontainer.WithScanConcurrency(c.Concurrency),
		xcontainer.WithContinueOnError(c.ContinueOnError),
		xcontainer.WithMaxFiles(c.MaxFiles),
	)

	records, err := xcontainer.Scan(g.ctx, c.Roots, cfg)
	if err != nil {
		return errors.Wrap(err, "scan")
	}
	if records == nil {
		records = []xcontainer.TitleRecord{}
	}

	return g.print(records, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TITLE ID\tTITLE\tIMAGE\tPATH")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.TitleIDString, r.TitleName, r.ImageSize, r.Path)
		}
		return tw.Flush()
	})
}

type listCmd struct {
	Path string `arg:"" name:"xip" help:"Path to an archive container." type:"existingfile"`
}

func (c *listCmd) Run(g *Globals) error {
	a, err := xcontainer.OpenArchive(c.Path, g.config())
	if err != nil {
		return errors.Wrap(err, "open archive")
	}
	defer a.Close()

	entries := a.Entries()
	return g.print(entries, func(w io.Writer) error {
		return printEntries(w, entries)
	})
}

func printEntries(w io.Writer, entries []xcontainer.ArchiveEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tSIZE\tOFFSET\tTIMESTAMP")
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t0x%X\t%d\n", e.Name, kind, e.Size, e.Offset, e.Timestamp)
	}
	return tw.Flush()
}

type extractCmd struct {
	Path              string `arg:"" name:"xip" help:"Path to an archive container." type:"existingfile"`
	Name              string `arg:"" name:"name" help:"Name of the entry."`
	Output            string `arg:"" name:"output" help:"Output file. (\"-\" for STDOUT)"`
	Overwrite         bool   `short:"O" help:"Overwrite if exist."`
	MaxExtractionSize int64  `optional:"" default:"1073741824" help:"Maximum extraction size that allowed is (in bytes). (disable check: -1)"`
}

func (c *extractCmd) Run(g *Globals) error {
	cfg := g.config(
		xcontainer.WithOverwrite(c.Overwrite),
		xcontainer.WithMaxExtractionSize(c.MaxExtractionSize),
	)
	a, err := xcontainer.OpenArchive(c.Path, cfg)
	if err != nil {
		return errors.Wrap(err, "open archive")
	}
	defer a.Close()

	if c.Output == "-" {
		return errors.Wrap(a.ExtractEntry(c.Name, g.out), "extract entry")
	}
	return errors.Wrap(a.ExtractFile(c.Name, c.Output), "extract entry")
}

type unpackCmd struct {
	Path              string   `arg:"" name:"xip" help:"Path to an archive container." type:"existingfile"`
	Destination       string   `arg:"" name:"destination" optional:"" default:"." help:"Output directory."`
	ContinueOnError   bool     `short:"C" help:"Continue extraction on error."`
	CreateDestination bool     `short:"c" help:"Create destination directory if it does not exist."`
	MaxFiles          int64    `optional:"" default:"100000" help:"Maximum files that are extracted before stop. (disable check: -1)"`
	MaxExtractionSize int64    `optional:"" default:"1073741824" help:"Maximum extraction size that allowed is (in bytes). (disable check: -1)"`
	Overwrite         bool     `short:"O" help:"Overwrite if exist."`
	Pattern           []string `short:"P" optional:"" name:"pattern" help:"Extracted entries need to match the shell file name pattern."`
}

func (c *unpackCmd) Run(g *Globals) error {
	cfg := g.config(
		xcontainer.WithContinueOnError(c.ContinueOnError),
		xcontainer.WithCreateDestination(c.CreateDestination),
		xcontainer.WithMaxExtractionSize(c.MaxExtractionSize),
		xcontainer.WithMaxFiles(c.MaxFiles),
		xcontainer.WithOverwrite(c.Overwrite),
		xcontainer.WithPatterns(c.Pattern...),
	)
	a, err := xcontainer.OpenArchive(c.Path, cfg)
	if err != nil {
		return errors.Wrap(err, "open archive")
	}
	defer a.Close()

	return errors.Wrap(xcontainer.UnpackArchive(g.ctx, xcontainer.NewTargetDisk(), c.Destination, a, cfg), "unpack archive")
}

type createCmd struct {
	Path string `arg:"" name:"xip" help:"Path of the new archive container."`
}

func (c *createCmd) Run(g *Globals) error {
	a, err := xcontainer.CreateArchive(c.Path, g.config())
	if err != nil {
		return errors.Wrap(err, "create archive")
	}
	return errors.Wrap(a.Close(), "close archive")
}

type addCmd struct {
	Path  string `arg:"" name:"xip" help:"Path to an archive container." type:"existingfile"`
	Input string `arg:"" name:"file" optional:"" help:"File to add. Omit together with --dir to add a directory entry."`
	Name  string `short:"n" help:"Entry name. Defaults to the base name of the file."`
	Dir   bool   `short:"d" help:"Add a directory entry named --name."`
}

func (c *addCmd) Run(g *Globals) error {
	if c.Dir {
		if c.Name == "" {
			return errors.New("--dir needs --name")
		}
		return xcontainer.UseArchive(c.Path, g.config(), func(a *xcontainer.Archive) error {
			return errors.Wrap(a.AddDir(c.Name, 0), "add directory")
		})
	}

	if c.Input == "" {
		return errors.New("missing file to add")
	}
	f, err := os.Open(c.Input)
	if err != nil {
		return errors.Wrap(err, "open input")
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat input")
	}

	name := c.Name
	if name == "" {
		name = filepath.Base(c.Input)
	}
	return xcontainer.UseArchive(c.Path, g.config(), func(a *xcontainer.Archive) error {
		return errors.Wrap(a.AddFile(name, f, uint32(stat.ModTime().Unix())), "add file")
	})
}
