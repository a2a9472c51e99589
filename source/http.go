package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tie/mcfetch/manifest"
)

const (
	DefaultIndexURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

	// DefaultMaxSize bounds a single metadata document.
	DefaultMaxSize = 64 << 20
)

// HTTP fetches documents from the launcher metadata service. Version
// documents are located through the index and checked against the digest
// the index lists for them.
type HTTP struct {
	Client   *http.Client
	IndexURL string
	MaxSize  int64

	mu    sync.Mutex
	index *manifest.Index
}

func (s *HTTP) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *HTTP) indexURL() string {
	if s.IndexURL != "" {
		return s.IndexURL
	}
	return DefaultIndexURL
}

// Index fetches and parses the version index. The parsed index is kept for
// the lifetime of s.
func (s *HTTP) Index(ctx context.Context) (*manifest.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, nil
	}
	data, err := s.get(ctx, s.indexURL())
	if err != nil {
		return nil, err
	}
	x, err := manifest.ParseIndex(data)
	if err != nil {
		return nil, err
	}
	s.index = x
	return x, nil
}

func (s *HTTP) FetchDocument(ctx context.Context, id string) ([]byte, error) {
	x, err := s.Index(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := x.Get(id)
	if !ok {
		return nil, fmt.Errorf("version %q: %w", id, ErrNotFound)
	}
	data, err := s.get(ctx, v.URL)
	if err != nil {
		return nil, err
	}
	if err := verifySHA1("version "+id, data, v.SHA1); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *HTTP) FetchAssetIndex(ctx context.Context, ref manifest.AssetIndexRef) ([]byte, error) {
	data, err := s.get(ctx, ref.URL)
	if err != nil {
		return nil, err
	}
	if err := verifySHA1("asset index "+ref.ID, data, ref.SHA1); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *HTTP) get(ctx context.Context, rawurl string) ([]byte, error) {
	zerolog.Ctx(ctx).Debug().Str("url", rawurl).Msg("fetch document")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	r := resp.Body
	defer func() {
		err := r.Close()
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("url", rawurl).Msg("close response body")
		}
	}()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", rawurl, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{URL: rawurl, StatusCode: resp.StatusCode}
	}

	limit := s.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("GET %s: document exceeds %d bytes", rawurl, limit)
	}
	return data, nil
}
