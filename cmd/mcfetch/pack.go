package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"

	"github.com/tie/mcfetch/builder"
	"github.com/tie/mcfetch/builder/archive"
)

type PackCommand struct {
	*app

	OutputPath   string
	LockPath     string
	DisableCache bool
}

func (*PackCommand) Name() string     { return "pack" }
func (*PackCommand) Synopsis() string { return "pack a version into a zip archive" }
func (*PackCommand) Usage() string {
	return `Usage: mcfetch pack [-o instance.zip] [-lock mcfetch.lock] [-nocache] [version]

	Downloads the version and writes the same layout install would
	produce into a zip archive.

Flags:
`
}

func (cmd *PackCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.DisableCache, "nocache", false, "disable filesystem cache")
	f.StringVar(&cmd.LockPath, "lock", "", "read tasks from a lock file")
	f.StringVar(&cmd.OutputPath, "o", "instance.zip", "archive output path")
}

func (cmd *PackCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) (rc subcommands.ExitStatus) {
	version, tasks, err := cmd.tasks(ctx, cmd.LockPath, f.Args())
	if errors.Is(err, errUsage) {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err != nil {
		log.Error().Err(err).Msg("plan")
		return subcommands.ExitFailure
	}

	c, err := cmd.openCache(cmd.DisableCache)
	if err != nil {
		log.Error().Err(err).Msg("open cache")
		return subcommands.ExitFailure
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("close cache")
			rc = subcommands.ExitFailure
		}
	}()

	if _, err := cmd.fetch(ctx, c, tasks); err != nil {
		log.Error().Err(err).Msg("download")
		return subcommands.ExitFailure
	}

	fpath := cmd.OutputPath
	file, err := os.Create(fpath)
	if err != nil {
		log.Error().Err(err).Str("path", fpath).Msg("create")
		return subcommands.ExitFailure
	}
	defer func() {
		err := file.Close()
		if err != nil {
			log.Error().Err(err).Str("path", fpath).Msg("close")
			rc = subcommands.ExitFailure
		}
	}()

	w := bufio.NewWriter(file)
	defer func() {
		if rc != subcommands.ExitSuccess {
			return
		}
		if err := w.Flush(); err != nil {
			log.Error().Err(err).Str("path", fpath).Msg("flush")
			rc = subcommands.ExitFailure
		}
	}()

	z := zip.NewWriter(w)
	defer func() {
		err := z.Close()
		if err != nil {
			log.Error().Err(err).Msg("close archive")
			rc = subcommands.ExitFailure
		}
	}()

	b := archive.NewArchiveBuilder(c, z, version)
	if err := builder.Build(ctx, b, tasks); err != nil {
		log.Error().Err(err).Msg("pack")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
