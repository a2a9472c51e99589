package builder

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tie/mcfetch/graph"
	"github.com/tie/mcfetch/manifest"
)

func TestCleanPath(t *testing.T) {
	for _, ok := range []string{"a", "a/b", "a/../b", "./a"} {
		_, err := CleanPath(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", ".", "..", "../a", "a/../../b", "/etc/passwd"} {
		_, err := CleanPath(bad)
		assert.ErrorIs(t, err, ErrUnsafePath, bad)
	}
}

func TestUnzip(t *testing.T) {
	var buf bytes.Buffer
	z := zip.NewWriter(&buf)
	for _, name := range []string{"liblwjgl.so", "META-INF/MANIFEST.MF", "sub/", "sub/libopenal.so"} {
		w, err := z.Create(name)
		require.NoError(t, err)
		if !strings.HasSuffix(name, "/") {
			_, err = w.Write([]byte(name))
			require.NoError(t, err)
		}
	}
	require.NoError(t, z.Close())

	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "natives.jar", buf.Bytes(), 0o644))
	f, err := fs.Open("natives.jar")
	require.NoError(t, err)
	defer f.Close()

	var names []string
	err = Unzip(f, &manifest.Extract{Exclude: []string{"META-INF/"}}, "natives/1.20", func(zf *zip.File, name string) error {
		names = append(names, name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"natives/1.20/liblwjgl.so", "natives/1.20/sub/libopenal.so"}, names)
}

type recorder struct {
	added  []string
	closed bool
	fail   string
}

func (r *recorder) Add(t graph.Task) error {
	if t.Dest == r.fail {
		return errors.New("boom")
	}
	r.added = append(r.added, t.Dest)
	return nil
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func TestBuild(t *testing.T) {
	tasks := []graph.Task{{Dest: "a", Kind: graph.KindJar}, {Dest: "b", Kind: graph.KindLibrary}}

	r := &recorder{}
	require.NoError(t, Build(context.Background(), r, tasks))
	assert.Equal(t, []string{"a", "b"}, r.added)
	assert.True(t, r.closed)

	r = &recorder{fail: "a"}
	err := Build(context.Background(), r, tasks)
	assert.ErrorContains(t, err, "jar:a")
	assert.True(t, r.closed, "closed on error too")
}
