package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"
)

type CleanCommand struct {
	*app
}

func (*CleanCommand) Name() string     { return "clean" }
func (*CleanCommand) Synopsis() string { return "remove cached files" }
func (*CleanCommand) Usage() string {
	return `Usage: mcfetch clean

	Removes the cache directory with every object and the entry index.
`
}

func (cmd *CleanCommand) SetFlags(f *flag.FlagSet) {
}

func (cmd *CleanCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	path := cmd.cfg.Cache.Dir
	if err := os.RemoveAll(path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("clean")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
