package fetcher_test

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tie/mcfetch/fetcher"
	"github.com/tie/mcfetch/graph"
	"github.com/tie/mcfetch/resolver"
	"github.com/tie/mcfetch/rules"
	"github.com/tie/mcfetch/source"
)

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// TestInstallScenario resolves a version from an index served over HTTP,
// downloads its two files into an empty cache and runs again.
func TestInstallScenario(t *testing.T) {
	client := strings.Repeat("c", 12345)
	library := "library bytes"

	var (
		srv     *httptest.Server
		doc     string
		fetches atomic.Int32
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"versions": [{"id": "1.20", "type": "release", "url": %q, "sha1": %q}]}`,
			srv.URL+"/1.20.json", sha1Hex(doc))
	})
	mux.HandleFunc("/1.20.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, doc)
	})
	mux.HandleFunc("/client.jar", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		fmt.Fprint(w, client)
	})
	mux.HandleFunc("/lib.jar", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		fmt.Fprint(w, library)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	doc = fmt.Sprintf(`{
		"id": "1.20",
		"parentId": null,
		"type": "release",
		"javaVersion": {"majorVersion": 17},
		"downloads": {"client": {"url": %q, "sha1": %q, "size": 12345}},
		"libraries": [{"name": "com.example:lib:1.0", "downloads": {"artifact": {"url": %q, "sha1": %q, "size": %d}}}]
	}`, srv.URL+"/client.jar", sha1Hex(client), srv.URL+"/lib.jar", sha1Hex(library), len(library))

	ctx := context.Background()
	src := &source.HTTP{Client: srv.Client(), IndexURL: srv.URL + "/index.json"}
	d, err := resolver.Resolve(ctx, "1.20", src)
	require.NoError(t, err)

	var b graph.Builder
	tasks, err := b.Build(ctx, d, rules.Profile{OS: "linux", Arch: "x86_64"}, src)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "jar:versions/1.20/1.20.jar", tasks[0].ID())
	assert.Equal(t, "library:libraries/com/example/lib/1.0/lib-1.0.jar", tasks[1].ID())

	root := t.TempDir()
	cache, err := fetcher.Open(osfs.New(root), filepath.Join(root, fetcher.IndexName))
	require.NoError(t, err)
	defer cache.Close()
	dl := &fetcher.Fetcher{Cache: cache, Client: srv.Client()}

	rep := dl.Run(ctx, tasks)
	for _, o := range rep.Outcomes {
		assert.Equal(t, fetcher.Downloaded, o.Kind, o.Err)
	}
	for _, task := range tasks {
		e, ok, err := cache.Lookup(task.SHA1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, e.Verified)
	}
	assert.EqualValues(t, 2, fetches.Load())

	rep = dl.Run(ctx, tasks)
	for _, o := range rep.Outcomes {
		assert.Equal(t, fetcher.Cached, o.Kind)
	}
	assert.EqualValues(t, 2, fetches.Load(), "rerun fetches nothing")
}
