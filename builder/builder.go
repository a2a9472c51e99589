// Package builder realizes downloaded tasks as an installation layout.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/tie/mcfetch/graph"
	"github.com/tie/mcfetch/manifest"
)

var ErrUnsafePath = errors.New("path escapes the destination")

// Builder receives tasks whose objects are in the cache.
type Builder interface {
	Add(t graph.Task) error
	Close() error
}

// Objects opens cached objects by hash.
type Objects interface {
	Open(hash string) (billy.File, error)
}

// NativesDir is where native archives of a version are unpacked.
func NativesDir(version string) string {
	return path.Join("natives", version)
}

// Build adds every task to b and closes it.
func Build(ctx context.Context, b Builder, tasks []graph.Task) (err error) {
	defer func() {
		cerr := b.Close()
		if err == nil {
			err = cerr
		}
	}()
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.Add(t); err != nil {
			return fmt.Errorf("add %s: %w", t.ID(), err)
		}
	}
	zerolog.Ctx(ctx).Debug().Int("tasks", len(tasks)).Msg("built")
	return nil
}

// CleanPath checks that a slash separated relative path stays below its
// root and returns it cleaned.
func CleanPath(name string) (string, error) {
	p := path.Clean(name)
	if p == "." || path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}
	return p, nil
}

// Unzip calls fn for every regular file of a native archive that is not
// excluded, with its name joined to dir.
func Unzip(f billy.File, e *manifest.Extract, dir string, fn func(zf *zip.File, name string) error) error {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	z, err := zip.NewReader(f, size)
	if err != nil {
		return err
	}
	for _, zf := range z.File {
		// Directories are created along with the files in them.
		if strings.HasSuffix(zf.Name, "/") {
			continue
		}
		if e.Excluded(zf.Name) {
			continue
		}
		name, err := CleanPath(zf.Name)
		if err != nil {
			return err
		}
		if err := fn(zf, path.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
