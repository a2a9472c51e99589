package archive

import (
	"io"
	"log"

	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/zip"

	"github.com/tie/mcfetch/builder"
	"github.com/tie/mcfetch/graph"
)

var _ builder.Builder = (*ArchiveBuilder)(nil)

// ArchiveBuilder writes the installation layout into a zip archive.
type ArchiveBuilder struct {
	Objects builder.Objects
	Archive *zip.Writer
	// Version names the natives directory.
	Version string
}

func NewArchiveBuilder(objects builder.Objects, w *zip.Writer, version string) *ArchiveBuilder {
	return &ArchiveBuilder{objects, w, version}
}

func (b *ArchiveBuilder) Add(t graph.Task) error {
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
			log.Printf("close: %+v", err)
		}
	}()
	if err := b.AddReader(src, name); err != nil {
		return err
	}
	if t.Kind == graph.KindNative {
		return b.AddUnzip(src, t, builder.NativesDir(b.Version))
	}
	return nil
}

func (b *ArchiveBuilder) AddUnzip(f billy.File, t graph.Task, dir string) error {
	return builder.Unzip(f, t.Extract, dir, b.AddZipFile)
}

func (b *ArchiveBuilder) AddZipFile(f *zip.File, name string) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	return b.AddReader(r, name)
}

func (b *ArchiveBuilder) AddReader(r io.Reader, name string) error {
	w, err := b.Archive.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}

func (b *ArchiveBuilder) Close() error {
	return nil
}
