package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"

	"github.com/google/subcommands"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tie/mcfetch/config"
)

const programName = "mcfetch"

func main() {
	a := &app{}

	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.Bool("h", false, "alias for help")
	fs.Bool("help", false, "print usage")
	configPath := fs.String("config", config.DefaultFile, "configuration file path")

	cdr := subcommands.NewCommander(fs, programName)
	cdr.Register(&VersionsCommand{app: a}, "")
	cdr.Register(&ResolveCommand{app: a}, "")
	cdr.Register(&LockCommand{app: a}, "")
	cdr.Register(&DownloadCommand{app: a}, "")
	cdr.Register(&SumsCommand{app: a}, "")
	cdr.Register(&VerifyCommand{app: a}, "")
	cdr.Register(&InstallCommand{app: a}, "")
	cdr.Register(&PackCommand{app: a}, "")
	cdr.Register(&FormatCommand{}, "")
	cdr.Register(&CleanCommand{app: a}, "")
	cdr.Register(cdr.HelpCommand(), "help")
	cdr.Register(cdr.FlagsCommand(), "help")
	cdr.Register(cdr.CommandsCommand(), "help")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	// The file is only required when named explicitly.
	required := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			required = true
		}
	})

	parser := hclparse.NewParser()
	loader := config.Loader{Parser: parser}
	cfg, diags, err := loader.Load(*configPath, required)
	if len(diags) > 0 {
		diagWr, _ := newDiagWr(parser)
		if err := diagWr.WriteDiagnostics(diags); err != nil {
			log.Error().Err(err).Msg("write diags")
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg == nil {
		os.Exit(1)
	}
	a.cfg = cfg

	logger := setupLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx = logger.WithContext(ctx)

	rc := cdr.Execute(ctx)
	stop()
	switch rc {
	case subcommands.ExitFailure:
		os.Exit(1)
	case subcommands.ExitUsageError:
		os.Exit(2)
	}
}

func setupLogger(cfg *config.Config) zerolog.Logger {
	var w io.Writer = os.Stderr
	if cfg.Log.Format == "text" {
		_, color := fdinfo(int(os.Stderr.Fd()))
		w = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !color}
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}
