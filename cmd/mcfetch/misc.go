package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/renameio/v2"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/tie/mcfetch/config"
	"github.com/tie/mcfetch/fetcher"
	"github.com/tie/mcfetch/graph"
	"github.com/tie/mcfetch/resolver"
	"github.com/tie/mcfetch/rules"
	"github.com/tie/mcfetch/source"
)

var errUsage = errors.New("want a version argument or a lock file")

// app carries what every command shares. cfg is set before any command
// executes.
type app struct {
	cfg    *config.Config
	client http.Client
	index  *source.HTTP
}

func (a *app) remote() *source.HTTP {
	if a.index == nil {
		a.index = &source.HTTP{
			Client:   &a.client,
			IndexURL: a.cfg.Source.IndexURL,
		}
	}
	return a.index
}

// source tries the local launcher directory, when configured, before the
// remote index.
func (a *app) source() source.Source {
	remote := a.remote()
	if a.cfg.Source.Versions == "" {
		return remote
	}
	local := &source.Dir{Files: osfs.New(a.cfg.Source.Versions)}
	return source.Chain{local, remote}
}

// openCache opens the on-disk cache, or an in-memory one when nocache is set.
func (a *app) openCache(nocache bool) (*fetcher.Cache, error) {
	if nocache {
		return fetcher.OpenMemory()
	}
	dir := a.cfg.Cache.Dir
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return fetcher.Open(osfs.New(dir), filepath.Join(dir, fetcher.IndexName))
}

func (a *app) fetcher(c *fetcher.Cache) *fetcher.Fetcher {
	return &fetcher.Fetcher{
		Cache:       c,
		Client:      &a.client,
		Concurrency: a.cfg.Fetch.Concurrency,
		Retry:       a.cfg.Retry(),
		Limiter:     a.cfg.Limiter(),
	}
}

// plan resolves id and builds its task list for the configured profile.
func (a *app) plan(ctx context.Context, id string) (*resolver.Descriptor, []graph.Task, error) {
	src := a.source()
	d, err := resolver.Resolve(ctx, id, src)
	if err != nil {
		return nil, nil, err
	}
	memo, err := rules.NewMemo(0)
	if err != nil {
		return nil, nil, err
	}
	b := graph.Builder{
		ResourcesURL: a.cfg.Source.ResourcesURL,
		Rules:        memo,
	}
	tasks, err := b.Build(ctx, d, a.cfg.RulesProfile(), src)
	if err != nil {
		return nil, nil, err
	}
	return d, tasks, nil
}

// tasks returns the version and task list named by a lock file, or by the
// single version argument when lockPath is empty.
func (a *app) tasks(ctx context.Context, lockPath string, args []string) (string, []graph.Task, error) {
	if lockPath == "" {
		if len(args) != 1 {
			return "", nil, errUsage
		}
		d, tasks, err := a.plan(ctx, args[0])
		if err != nil {
			return "", nil, err
		}
		return d.ID, tasks, nil
	}
	if len(args) != 0 {
		return "", nil, errUsage
	}
	src, err := os.ReadFile(lockPath)
	if err != nil {
		return "", nil, err
	}
	parser := hclparse.NewParser()
	version, tasks, diags := config.DecodeLock(parser, src, lockPath)
	if len(diags) > 0 {
		diagWr, _ := newDiagWr(parser)
		if err := diagWr.WriteDiagnostics(diags); err != nil {
			log.Error().Err(err).Msg("write diags")
		}
	}
	if diags.HasErrors() {
		return "", nil, fmt.Errorf("decode %q: %w", lockPath, diags)
	}
	return version, tasks, nil
}

// fetch runs tasks and fails unless every task ended in the cache.
func (a *app) fetch(ctx context.Context, c *fetcher.Cache, tasks []graph.Task) (*fetcher.Report, error) {
	rep := a.fetcher(c).Run(ctx, tasks)
	if failed := rep.Failed(); len(failed) > 0 {
		for _, o := range rep.Outcomes {
			if !o.Kind.Succeeded() {
				zerolog.Ctx(ctx).Error().Err(o.Err).Str("task", o.Task.ID()).Str("outcome", string(o.Kind)).Msg("task failed")
			}
		}
		return rep, fmt.Errorf("%d of %d tasks failed", len(failed), len(tasks))
	}
	return rep, nil
}

func writeFile(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0o644)
}

func newDiagWr(p *hclparse.Parser) (diagWr hcl.DiagnosticWriter, color bool) {
	files := p.Files()
	stderr := os.Stderr
	fd := int(stderr.Fd())
	istty, color := fdinfo(fd)
	if !istty {
		diagWr := hcl.NewDiagnosticTextWriter(stderr, files, 80, color)
		return diagWr, color
	}
	width := uint(80)
	if w, _, err := term.GetSize(fd); err != nil {
		log.Debug().Err(err).Msg("get term size")
	} else if w > 0 {
		width = uint(w)
	}
	return hcl.NewDiagnosticTextWriter(stderr, files, width, color), color
}

func fdinfo(fd int) (istty, color bool) {
	istty = term.IsTerminal(fd)
	if istty {
		color = true
	}
	// See https://no-color.org
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		color = false
	}
	return
}
