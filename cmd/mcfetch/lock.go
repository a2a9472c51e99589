package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"

	"github.com/tie/mcfetch/config"
)

type LockCommand struct {
	*app

	OutputPath string
}

func (*LockCommand) Name() string     { return "lock" }
func (*LockCommand) Synopsis() string { return "pin the files of a version" }
func (*LockCommand) Usage() string {
	return `Usage: mcfetch lock [-o mcfetch.lock] <version>

	Resolves the version and writes its task list as "task" blocks.
	A lock file can be passed to download, install and pack with -lock
	to skip resolution and reproduce the same set of files.

Flags:
`
}

func (cmd *LockCommand) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.OutputPath, "o", "mcfetch.lock", "lock file output path")
}

func (cmd *LockCommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if fs.NArg() != 1 {
		fs.Usage()
		return subcommands.ExitUsageError
	}
	d, tasks, err := cmd.plan(ctx, fs.Arg(0))
	if err != nil {
		log.Error().Err(err).Str("version", fs.Arg(0)).Msg("resolve")
		return subcommands.ExitFailure
	}

	fpath := cmd.OutputPath
	if err := writeFile(fpath, config.EncodeLock(d.ID, tasks)); err != nil {
		log.Error().Err(err).Str("path", fpath).Msg("write lock")
		return subcommands.ExitFailure
	}
	log.Info().Str("version", d.ID).Int("tasks", len(tasks)).Str("path", fpath).Msg("locked")
	return subcommands.ExitSuccess
}
