package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/tie/mcfetch/manifest"
)

// Chain tries each source in order and returns the first document found.
// Only ErrNotFound moves on to the next source; any other error is final.
type Chain []Source

func (c Chain) FetchDocument(ctx context.Context, id string) ([]byte, error) {
	for _, s := range c {
		data, err := s.FetchDocument(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("version %q: %w", id, ErrNotFound)
}

func (c Chain) FetchAssetIndex(ctx context.Context, ref manifest.AssetIndexRef) ([]byte, error) {
	for _, s := range c {
		data, err := s.FetchAssetIndex(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("asset index %q: %w", ref.ID, ErrNotFound)
}
