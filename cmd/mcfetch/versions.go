package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"

	"github.com/tie/mcfetch/manifest"
)

type VersionsCommand struct {
	*app

	Type  string
	Match string
	Phase string
}

func (*VersionsCommand) Name() string     { return "versions" }
func (*VersionsCommand) Synopsis() string { return "list available versions" }
func (*VersionsCommand) Usage() string {
	return `Usage: mcfetch versions [-type release] [-phase beta] [-match regexp]

	Lists versions from the version index, oldest first, with their
	development phase and whether they carry the player safety features.
	Use "latest" as -type to print the latest release and snapshot.

Flags:
`
}

func (cmd *VersionsCommand) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.Type, "type", "", "only list versions of this type")
	fs.StringVar(&cmd.Phase, "phase", "", "only list versions of this phase")
	fs.StringVar(&cmd.Match, "match", "", "only list versions whose id matches")
}

func (cmd *VersionsCommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	var re *regexp.Regexp
	if cmd.Match != "" {
		var err error
		re, err = regexp.Compile(cmd.Match)
		if err != nil {
			log.Error().Err(err).Msg("compile -match")
			return subcommands.ExitUsageError
		}
	}

	idx, err := cmd.remote().Index(ctx)
	if err != nil {
		log.Error().Err(err).Msg("fetch index")
		return subcommands.ExitFailure
	}

	var list []manifest.VersionSummary
	if cmd.Type == "latest" {
		for _, get := range []func() (manifest.VersionSummary, bool){idx.LatestRelease, idx.LatestSnapshot} {
			if v, ok := get(); ok {
				list = append(list, v)
			}
		}
	} else {
		list = idx.Filter(func(v manifest.VersionSummary) bool {
			switch {
			case cmd.Type != "" && string(v.Type) != cmd.Type:
				return false
			case cmd.Phase != "" && string(v.Phase()) != cmd.Phase:
				return false
			case re != nil && !re.MatchString(v.ID):
				return false
			}
			return true
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, v := range list {
		compliant := ""
		if v.Compliant() {
			compliant = "compliant"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Type, v.Phase(), v.ReleaseTime.Format(time.DateOnly), compliant)
	}
	if err := w.Flush(); err != nil {
		log.Error().Err(err).Msg("write versions")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
