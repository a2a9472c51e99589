package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/rs/zerolog/log"

	"github.com/tie/mcfetch/config"
)

type SumsCommand struct {
	*app

	LockPath     string
	OutputPath   string
	DisableCache bool
}

func (*SumsCommand) Name() string     { return "sums" }
func (*SumsCommand) Synopsis() string { return "generate checksum manifest" }
func (*SumsCommand) Usage() string {
	return `Usage: mcfetch sums [-o sums.hcl] [-lock mcfetch.lock] [-nocache] [version]

	Generates checksum manifest for all files of the version. The
	resulting file contains a "check" block for each destination with
	every digest recorded for its object. Missing files are downloaded
	first.

Flags:
`
}

func (cmd *SumsCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.LockPath, "lock", "", "read tasks from a lock file")
	f.BoolVar(&cmd.DisableCache, "nocache", false, "disable filesystem cache")
	f.StringVar(&cmd.OutputPath, "o", "sums.hcl", "sums output path")
}

func (cmd *SumsCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) (rc subcommands.ExitStatus) {
	_, tasks, err := cmd.tasks(ctx, cmd.LockPath, f.Args())
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

	sumsFile := hclwrite.NewEmptyFile()
	sb := config.SumsBuilder{
		Body: sumsFile.Body(),
	}
	for _, t := range tasks {
		e, ok, err := c.Lookup(t.SHA1)
		if err == nil && !ok {
			err = fmt.Errorf("object %s not cached", t.SHA1)
		}
		if err != nil {
			log.Error().Err(err).Str("task", t.ID()).Msg("sum")
			return subcommands.ExitFailure
		}
		sb.Add(t.Dest, t.SHA1, e.Sums.List())
	}

	fpath := cmd.OutputPath
	outSrc := hclwrite.Format(sumsFile.Bytes())
	if err := writeFile(fpath, outSrc); err != nil {
		log.Error().Err(err).Str("path", fpath).Msg("write file")
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}
