package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/google/subcommands"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog/log"

	"github.com/tie/mcfetch/config"
	"github.com/tie/mcfetch/fetcher"
)

type VerifyCommand struct {
	*app

	Rebuild  bool
	SumsPath string
}

func (*VerifyCommand) Name() string     { return "verify" }
func (*VerifyCommand) Synopsis() string { return "check the integrity of the cache" }
func (*VerifyCommand) Usage() string {
	return `Usage: mcfetch verify [-rebuild] [-sums sums.hcl]

	Rehashes every cached object and drops the ones that no longer match
	their hash. With -rebuild the entry index is recreated from the
	objects directory instead. With -sums the recorded digests are also
	compared against a checksum manifest.

Flags:
`
}

func (cmd *VerifyCommand) SetFlags(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.Rebuild, "rebuild", false, "rebuild the index from the objects directory")
	fs.StringVar(&cmd.SumsPath, "sums", "", "compare against a checksum manifest")
}

func (cmd *VerifyCommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) (rc subcommands.ExitStatus) {
	c, err := cmd.openCache(false)
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

	if cmd.Rebuild {
		st, err := c.Rebuild(ctx)
		if err != nil {
			log.Error().Err(err).Msg("rebuild")
			return subcommands.ExitFailure
		}
		log.Info().Int("entries", st.Entries).Int("removed", st.Removed).Msg("rebuilt")
	} else {
		var hashes []string
		err := c.Walk(func(e *fetcher.Entry) error {
			hashes = append(hashes, e.Hash)
			return nil
		})
		if err != nil {
			log.Error().Err(err).Msg("walk cache")
			return subcommands.ExitFailure
		}
		bad := 0
		for _, h := range hashes {
			if err := ctx.Err(); err != nil {
				log.Error().Err(err).Msg("verify")
				return subcommands.ExitFailure
			}
			_, err := c.Verify(h)
			switch {
			case errors.Is(err, fetcher.ErrIntegrity):
				log.Warn().Err(err).Str("hash", h).Msg("dropped")
				bad++
			case err != nil:
				log.Error().Err(err).Str("hash", h).Msg("verify")
				return subcommands.ExitFailure
			}
		}
		log.Info().Int("entries", len(hashes)).Int("dropped", bad).Msg("verified")
		if bad > 0 {
			rc = subcommands.ExitFailure
		}
	}

	if cmd.SumsPath != "" {
		if err := cmd.checkSums(c); err != nil {
			log.Error().Err(err).Str("path", cmd.SumsPath).Msg("check sums")
			return subcommands.ExitFailure
		}
	}
	return rc
}

// checkSums compares each check block with the digests recorded in the
// cache. Objects missing from the cache are skipped.
func (cmd *VerifyCommand) checkSums(c *fetcher.Cache) error {
	src, err := os.ReadFile(cmd.SumsPath)
	if err != nil {
		return err
	}
	parser := hclparse.NewParser()
	checks, diags := config.DecodeSums(parser, src, cmd.SumsPath)
	if len(diags) > 0 {
		diagWr, _ := newDiagWr(parser)
		if err := diagWr.WriteDiagnostics(diags); err != nil {
			log.Error().Err(err).Msg("write diags")
		}
	}
	if diags.HasErrors() {
		return diags
	}

	mismatched := 0
	for dest, check := range checks {
		e, ok, err := c.Lookup(check.SHA1)
		if err != nil {
			return err
		}
		if !ok {
			log.Debug().Str("dest", dest).Msg("not cached")
			continue
		}
		have := e.Sums.List()
		for _, sum := range check.Sums {
			if !slices.Contains(have, sum) {
				log.Warn().Str("dest", dest).Str("sum", sum).Msg("digest mismatch")
				mismatched++
			}
		}
	}
	if mismatched > 0 {
		return fmt.Errorf("%d digests do not match", mismatched)
	}
	return nil
}
