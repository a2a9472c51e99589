package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog"

	"github.com/tie/mcfetch/manifest"
)

// Dir reads documents from a launcher directory. Version documents live at
// versions/<id>/<id>.json and asset indexes at assets/indexes/<id>.json,
// both relative to the filesystem root.
type Dir struct {
	Files billy.Filesystem
}

func (s *Dir) FetchDocument(ctx context.Context, id string) ([]byte, error) {
	return s.read(ctx, s.Files.Join("versions", id, id+".json"))
}

func (s *Dir) FetchAssetIndex(ctx context.Context, ref manifest.AssetIndexRef) ([]byte, error) {
	data, err := s.read(ctx, s.Files.Join("assets", "indexes", ref.ID+".json"))
	if err != nil {
		return nil, err
	}
	if err := verifySHA1("asset index "+ref.ID, data, ref.SHA1); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Dir) read(ctx context.Context, name string) ([]byte, error) {
	zerolog.Ctx(ctx).Debug().Str("file", name).Msg("read document")
	data, err := util.ReadFile(s.Files, name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return data, err
}
