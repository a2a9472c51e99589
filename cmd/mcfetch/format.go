package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/subcommands"
	"github.com/pkg/diff"
	"github.com/rs/zerolog/log"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"

	"github.com/tie/mcfetch/config"
	"github.com/tie/mcfetch/config/hclspec"
)

// errDiagnostics is returned once diagnostics were already written out.
var errDiagnostics = errors.New("file has errors")

type FormatCommand struct {
	DisableCheck bool
	Overwrite    bool
	ContextSize  int
}

func (*FormatCommand) Name() string     { return "fmt" }
func (*FormatCommand) Synopsis() string { return "rewrite mcfetch HCL files in canonical layout" }
func (*FormatCommand) Usage() string {
	return `Usage: mcfetch fmt [-c int] [-w] [-nocheck] [file ...]

	Rewrites each file in canonical HCL layout. Without -w the changes
	are printed as a unified diff and nothing is written. With no files
	given, mcfetch.hcl in the working directory is used.

	Unless -nocheck is set, a file must also decode: *.lock as a lock
	file, sums* as a checksum list, anything else as configuration.

Flags:
`
}

func (cmd *FormatCommand) SetFlags(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.DisableCheck, "nocheck", false, "skip decoding files before formatting")
	fs.BoolVar(&cmd.Overwrite, "w", false, "replace files in place instead of printing a diff")
	fs.IntVar(&cmd.ContextSize, "c", 3, "lines of diff context, negative for all")
}

func (cmd *FormatCommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	f := formatter{
		out:     os.Stdout,
		context: cmd.ContextSize,
		write:   cmd.Overwrite,
	}
	if !cmd.DisableCheck {
		f.parser = hclparse.NewParser()
		f.diagWr, f.color = newDiagWr(f.parser)
	}

	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{config.DefaultFile}
	}
	sort.Strings(paths)

	for i, fpath := range paths {
		if i > 0 && paths[i-1] == fpath {
			continue
		}
		err := f.file(ctx, fpath)
		if errors.Is(err, errDiagnostics) {
			return subcommands.ExitFailure
		}
		if err != nil {
			log.Error().Err(err).Str("path", fpath).Msg("format")
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

type formatter struct {
	parser  *hclparse.Parser
	diagWr  hcl.DiagnosticWriter
	color   bool
	out     io.Writer
	context int
	write   bool
}

func (f *formatter) file(ctx context.Context, fpath string) error {
	src, err := os.ReadFile(fpath)
	if err != nil {
		return err
	}
	if f.parser != nil {
		if err := f.check(fpath, src); err != nil {
			return err
		}
	}

	formatted := hclwrite.Format(src)
	switch {
	case bytes.Equal(src, formatted):
		return nil
	case f.write:
		return writeFile(fpath, formatted)
	}
	return f.diff(ctx, filepath.ToSlash(fpath), src, formatted)
}

func (f *formatter) check(fpath string, src []byte) error {
	file, diags := f.parser.ParseHCL(src, fpath)
	if !diags.HasErrors() {
		diags = append(diags, gohcl.DecodeBody(file.Body, nil, specFor(fpath))...)
	}
	if len(diags) == 0 {
		return nil
	}
	if err := f.diagWr.WriteDiagnostics(diags); err != nil {
		return fmt.Errorf("write diagnostics: %w", err)
	}
	if diags.HasErrors() {
		return errDiagnostics
	}
	return nil
}

func (f *formatter) diff(ctx context.Context, name string, before, after []byte) error {
	opts := []diff.WriteOpt{diff.Names("a/"+name, "b/"+name)}
	if f.color {
		opts = append(opts, diff.TerminalColor())
	}
	pair := diff.Bytes(splitLines(before), splitLines(after))
	edit := diff.Myers(ctx, pair)
	if f.context >= 0 {
		edit = edit.WithContextSize(f.context)
	}
	if _, err := edit.WriteUnified(f.out, pair, opts...); err != nil {
		return fmt.Errorf("write diff: %w", err)
	}
	return nil
}

// specFor picks the schema a file is checked against from its name.
func specFor(fpath string) interface{} {
	base := filepath.Base(fpath)
	switch {
	case strings.HasSuffix(base, ".lock"):
		return &hclspec.Lock{}
	case strings.HasPrefix(base, "sums"):
		return &hclspec.Sums{}
	}
	return &hclspec.Config{}
}

func splitLines(b []byte) [][]byte {
	return bytes.Split(b, []byte("\n"))
}
