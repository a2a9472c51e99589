package main

import (
	"context"
	"errors"
	"flag"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tie/mcfetch/builder"
	"github.com/tie/mcfetch/builder/tree"
)

type InstallCommand struct {
	*app

	Dir          string
	LockPath     string
	DisableCache bool
}

func (*InstallCommand) Name() string     { return "install" }
func (*InstallCommand) Synopsis() string { return "install a version into a directory" }
func (*InstallCommand) Usage() string {
	return `Usage: mcfetch install -dir <path> [-lock mcfetch.lock] [-nocache] [version]

	Downloads the version and lays out its files under the directory the
	way the launcher does. Native libraries are unpacked into
	natives/<version>. Nothing is written unless every file downloaded.

Flags:
`
}

func (cmd *InstallCommand) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.Dir, "dir", "", "installation directory")
	fs.StringVar(&cmd.LockPath, "lock", "", "read tasks from a lock file")
	fs.BoolVar(&cmd.DisableCache, "nocache", false, "disable filesystem cache")
}

func (cmd *InstallCommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) (rc subcommands.ExitStatus) {
	if cmd.Dir == "" {
		fs.Usage()
		return subcommands.ExitUsageError
	}
	version, tasks, err := cmd.tasks(ctx, cmd.LockPath, fs.Args())
	if errors.Is(err, errUsage) {
		fs.Usage()
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

	b := tree.NewTreeBuilder(c, cmd.Dir, version)
	b.Log = *zerolog.Ctx(ctx)
	if err := builder.Build(ctx, b, tasks); err != nil {
		log.Error().Err(err).Str("dir", cmd.Dir).Msg("install")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
