package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"

	"github.com/tie/mcfetch/fetcher"
	"github.com/tie/mcfetch/graph"
)

type DownloadCommand struct {
	*app

	LockPath     string
	ReportPath   string
	RetryPath    string
	DisableCache bool
}

func (*DownloadCommand) Name() string     { return "download" }
func (*DownloadCommand) Synopsis() string { return "download a version to local cache" }
func (*DownloadCommand) Usage() string {
	return `Usage: mcfetch download [-lock mcfetch.lock] [-report report.yaml] [-retry report.yaml] [-nocache] [version]

	Downloads every file of the version to the local cache. The outcome
	of each file is written to the report. Passing a previous report with
	-retry downloads only the files that did not succeed in that run.

Flags:
`
}

func (cmd *DownloadCommand) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.LockPath, "lock", "", "read tasks from a lock file")
	fs.StringVar(&cmd.ReportPath, "report", "", "write the run report to this path")
	fs.StringVar(&cmd.RetryPath, "retry", "", "retry the failed tasks of a report")
	fs.BoolVar(&cmd.DisableCache, "nocache", false, "disable filesystem cache")
}

func (cmd *DownloadCommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) (rc subcommands.ExitStatus) {
	var tasks []graph.Task
	if cmd.RetryPath != "" {
		f, err := os.Open(cmd.RetryPath)
		if err != nil {
			log.Error().Err(err).Msg("open report")
			return subcommands.ExitFailure
		}
		prev, err := fetcher.ReadReport(f)
		f.Close()
		if err != nil {
			log.Error().Err(err).Str("path", cmd.RetryPath).Msg("read report")
			return subcommands.ExitFailure
		}
		tasks = prev.Failed()
	} else {
		var err error
		_, tasks, err = cmd.tasks(ctx, cmd.LockPath, fs.Args())
		if errors.Is(err, errUsage) {
			fs.Usage()
			return subcommands.ExitUsageError
		}
		if err != nil {
			log.Error().Err(err).Msg("plan")
			return subcommands.ExitFailure
		}
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

	rep, fetchErr := cmd.fetch(ctx, c, tasks)
	if cmd.ReportPath != "" {
		var buf bytes.Buffer
		if err := rep.Write(&buf); err != nil {
			log.Error().Err(err).Msg("encode report")
			return subcommands.ExitFailure
		}
		if err := writeFile(cmd.ReportPath, buf.Bytes()); err != nil {
			log.Error().Err(err).Str("path", cmd.ReportPath).Msg("write report")
			return subcommands.ExitFailure
		}
	}
	if fetchErr != nil {
		log.Error().Err(fetchErr).Msg("download")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
