// Package tree copies cached objects into an installation directory.
package tree

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/tie/mcfetch/builder"
	"github.com/tie/mcfetch/graph"
)

var _ builder.Builder = (*TreeBuilder)(nil)

// TreeBuilder writes each task to <Root>/<Dest>. Files are replaced
// atomically, so an interrupted install leaves either the old or the new
// content. Native archives are also unpacked to <Root>/natives/<Version>.
type TreeBuilder struct {
	Objects builder.Objects
	Root    string
	Version string
	Log     zerolog.Logger

	copied, unpacked int
}

func NewTreeBuilder(objects builder.Objects, root, version string) *TreeBuilder {
	return &TreeBuilder{Objects: objects, Root: root, Version: version, Log: zerolog.Nop()}
}

func (b *TreeBuilder) Add(t graph.Task) error {
	name, err := builder.CleanPath(t.Dest)
	if err != nil {
		return err
	}
	src, err := b.Objects.Open(t.SHA1)
	if err != nil {
		return err
	}
	defer func() {
		err := src.Close()
		if err != nil {
			b.Log.Warn().Err(err).Str("hash", t.SHA1).Msg("close object")
		}
	}()
	if err := b.writeFile(src, name); err != nil {
		return err
	}
	b.copied++
	if t.Kind == graph.KindNative {
		return b.unpack(src, t)
	}
	return nil
}

func (b *TreeBuilder) unpack(f billy.File, t graph.Task) error {
	return builder.Unzip(f, t.Extract, builder.NativesDir(b.Version), func(zf *zip.File, name string) error {
		r, err := zf.Open()
		if err != nil {
			return err
		}
		defer r.Close()
		if err := b.writeFile(r, name); err != nil {
			return err
		}
		b.unpacked++
		return nil
	})
}

func (b *TreeBuilder) writeFile(r io.Reader, name string) error {
	dst := filepath.Join(b.Root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	pf, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer pf.Cleanup()
	if _, err := io.Copy(pf, r); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

func (b *TreeBuilder) Close() error {
	b.Log.Info().
		Str("root", b.Root).
		Int("files", b.copied).
		Int("natives", b.unpacked).
		Msg("installed")
	return nil
}
