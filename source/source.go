// Package source fetches raw launcher metadata documents: the version
// index, version documents by id and asset indexes by reference.
package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tie/mcfetch/manifest"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrDigestMismatch = errors.New("document digest mismatch")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// DocumentFetcher returns the raw version document for an id.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, id string) ([]byte, error)
}

// AssetIndexFetcher returns the raw asset index a version refers to.
type AssetIndexFetcher interface {
	FetchAssetIndex(ctx context.Context, ref manifest.AssetIndexRef) ([]byte, error)
}

type Source interface {
	DocumentFetcher
	AssetIndexFetcher
}

var (
	_ Source = (*HTTP)(nil)
	_ Source = (*Dir)(nil)
	_ Source = Chain(nil)
)

func verifySHA1(what string, data []byte, want string) error {
	if want == "" {
		return nil
	}
	sum := sha1.Sum(data)
	if got := hex.EncodeToString(sum[:]); got != want {
		return fmt.Errorf("%s: %w: got sha1 %s, want %s", what, ErrDigestMismatch, got, want)
	}
	return nil
}
