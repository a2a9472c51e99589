package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"
)

type ResolveCommand struct {
	*app

	ShowTasks bool
}

func (*ResolveCommand) Name() string     { return "resolve" }
func (*ResolveCommand) Synopsis() string { return "print the merged version descriptor" }
func (*ResolveCommand) Usage() string {
	return `Usage: mcfetch resolve [-tasks] <version>

	Resolves the version and its inheritance chain and prints a summary
	of the merged descriptor. With -tasks the files that make up the
	installation for the configured profile are listed as well.

Flags:
`
}

func (cmd *ResolveCommand) SetFlags(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.ShowTasks, "tasks", false, "list the files to download")
}

func (cmd *ResolveCommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if fs.NArg() != 1 {
		fs.Usage()
		return subcommands.ExitUsageError
	}
	d, tasks, err := cmd.plan(ctx, fs.Arg(0))
	if err != nil {
		log.Error().Err(err).Str("version", fs.Arg(0)).Msg("resolve")
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "id:\t%s\n", d.ID)
	fmt.Fprintf(w, "chain:\t%s\n", strings.Join(d.Chain, " <- "))
	fmt.Fprintf(w, "type:\t%s\n", d.Type)
	fmt.Fprintf(w, "main class:\t%s\n", d.MainClass)
	fmt.Fprintf(w, "assets:\t%s\n", d.Assets)
	fmt.Fprintf(w, "java:\t%s %d\n", d.JavaVersion.Component, d.JavaVersion.Major)
	fmt.Fprintf(w, "libraries:\t%d\n", len(d.Libraries))
	for _, lib := range d.Libraries {
		fmt.Fprintf(w, "\t%s\n", lib.Coordinate)
	}
	var size int64
	for _, t := range tasks {
		size += t.Size
	}
	fmt.Fprintf(w, "files:\t%d (%d bytes)\n", len(tasks), size)
	if cmd.ShowTasks {
		for _, t := range tasks {
			fmt.Fprintf(w, "\t%s\t%s\t%d\n", t.Kind, t.Dest, t.Size)
		}
	}
	if err := w.Flush(); err != nil {
		log.Error().Err(err).Msg("write descriptor")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
