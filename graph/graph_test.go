package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tie/mcfetch/manifest"
	"github.com/tie/mcfetch/resolver"
	"github.com/tie/mcfetch/rules"
)

type testdata struct {
	t      *testing.T
	assets string
}

func (d testdata) read(name string) []byte {
	d.t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "manifest", "testdata", name))
	require.NoError(d.t, err)
	return data
}

func (d testdata) FetchDocument(ctx context.Context, id string) ([]byte, error) {
	switch id {
	case "1.20":
		return d.read("1.20.json"), nil
	case "fabric-loader-0.14.21-1.20":
		return d.read("fabric.json"), nil
	}
	return nil, os.ErrNotExist
}

func (d testdata) FetchAssetIndex(ctx context.Context, ref manifest.AssetIndexRef) ([]byte, error) {
	if d.assets != "" {
		return []byte(d.assets), nil
	}
	return d.read("assets.json"), nil
}

func resolve(t *testing.T, src testdata, id string) *resolver.Descriptor {
	t.Helper()
	d, err := resolver.Resolve(context.Background(), id, src)
	require.NoError(t, err)
	return d
}

func dests(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID()
	}
	return out
}

var linux = rules.Profile{OS: "linux", Arch: "x86_64"}

func TestBuildLinux(t *testing.T) {
	src := testdata{t: t}
	d := resolve(t, src, "1.20")
	var b Builder
	tasks, err := b.Build(context.Background(), d, linux, src)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"jar:versions/1.20/1.20.jar",
		"mappings:versions/1.20/1.20-client.txt",
		"jar:versions/1.20/1.20-server.jar",
		"library:libraries/com/mojang/logging/1.1.1/logging-1.1.1.jar",
		"library:libraries/org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-linux.jar",
		"native:libraries/org/lwjgl/lwjgl/lwjgl-platform/2.9.4-nightly-20150209/lwjgl-platform-2.9.4-nightly-20150209-natives-linux.jar",
		"asset_index:assets/indexes/5.json",
		"asset_object:assets/objects/bd/bdf48ef6b5d0d23bbb02e17d04865216179f510a",
		"asset_object:assets/objects/ef/ef4a4c9e6a7c3b8d2e5f1a0b9c8d7e6f5a4b3c2d",
	}, dests(tasks))

	native := tasks[5]
	require.NotNil(t, native.Extract)
	assert.Equal(t, []string{"META-INF/"}, native.Extract.Exclude)
	assert.EqualValues(t, 578680, native.Size)

	obj := tasks[7]
	assert.Equal(t, "https://resources.download.minecraft.net/bd/bdf48ef6b5d0d23bbb02e17d04865216179f510a", obj.URL)
	assert.EqualValues(t, 3665, obj.Size)
	assert.Nil(t, obj.Extract)
}

func TestBuildOSX(t *testing.T) {
	src := testdata{t: t}
	d := resolve(t, src, "1.20")
	b := Builder{ResourcesURL: "http://mirror.example/objects/"}
	tasks, err := b.Build(context.Background(), d, rules.Profile{OS: "osx", Arch: "arm64"}, src)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"jar:versions/1.20/1.20.jar",
		"mappings:versions/1.20/1.20-client.txt",
		"jar:versions/1.20/1.20-server.jar",
		"library:libraries/com/mojang/logging/1.1.1/logging-1.1.1.jar",
		"asset_index:assets/indexes/5.json",
		"asset_object:assets/objects/bd/bdf48ef6b5d0d23bbb02e17d04865216179f510a",
		"asset_object:assets/objects/ef/ef4a4c9e6a7c3b8d2e5f1a0b9c8d7e6f5a4b3c2d",
	}, dests(tasks))
	assert.Equal(t, "http://mirror.example/objects/ef/ef4a4c9e6a7c3b8d2e5f1a0b9c8d7e6f5a4b3c2d", tasks[6].URL)
}

func TestBuildWindowsNatives(t *testing.T) {
	src := testdata{t: t}
	d := resolve(t, src, "1.20")
	var b Builder
	tasks, err := b.Build(context.Background(), d, rules.Profile{OS: "windows", Arch: "x86_64"}, src)
	require.NoError(t, err)
	assert.Contains(t, dests(tasks),
		"native:libraries/org/lwjgl/lwjgl/lwjgl-platform/2.9.4-nightly-20150209/lwjgl-platform-2.9.4-nightly-20150209-natives-windows-64.jar")
}

func TestBuildInherited(t *testing.T) {
	src := testdata{t: t}
	d := resolve(t, src, "fabric-loader-0.14.21-1.20")
	var b Builder
	tasks, err := b.Build(context.Background(), d, linux, src)
	require.NoError(t, err)

	ids := dests(tasks)
	assert.Equal(t, "jar:versions/fabric-loader-0.14.21-1.20/fabric-loader-0.14.21-1.20.jar", ids[0])
	assert.Contains(t, ids, "library:libraries/net/fabricmc/fabric-loader/0.14.21/fabric-loader-0.14.21.jar")
	assert.Len(t, tasks, 10)
}

func TestBuildVirtualAssets(t *testing.T) {
	const assets = `{"virtual": true, "objects": {
		"b.txt": {"hash": "bdf48ef6b5d0d23bbb02e17d04865216179f510a", "size": 1},
		"a.txt": {"hash": "bdf48ef6b5d0d23bbb02e17d04865216179f510a", "size": 1}}}`
	src := testdata{t: t, assets: assets}
	d := resolve(t, src, "1.20")
	var b Builder
	tasks, err := b.Build(context.Background(), d, linux, src)
	require.NoError(t, err)
	ids := dests(tasks)
	assert.Equal(t, []string{
		"asset_object:assets/virtual/5/a.txt",
		"asset_object:assets/virtual/5/b.txt",
	}, ids[len(ids)-2:], "same hash under two paths gives two destinations")

	src.assets = `{"map_to_resources": true, "objects": {"a.txt": {"hash": "bdf48ef6b5d0d23bbb02e17d04865216179f510a", "size": 1}}}`
	tasks, err = b.Build(context.Background(), d, linux, src)
	require.NoError(t, err)
	assert.Equal(t, "resources/a.txt", tasks[len(tasks)-1].Dest)
}

type failingAssets struct{ testdata }

func (failingAssets) FetchAssetIndex(context.Context, manifest.AssetIndexRef) ([]byte, error) {
	return nil, errors.New("offline")
}

func TestBuildAssetIndexErrors(t *testing.T) {
	src := testdata{t: t}
	d := resolve(t, src, "1.20")
	var b Builder

	_, err := b.Build(context.Background(), d, linux, failingAssets{src})
	assert.ErrorContains(t, err, "offline")

	_, err = b.Build(context.Background(), d, linux, testdata{t: t, assets: `{"objects": {"x": {"hash": "short"}}}`})
	assert.ErrorIs(t, err, manifest.ErrMalformed)

	_, err = b.Build(context.Background(), d, linux, nil)
	assert.Error(t, err)
}

func TestBuildDeterministic(t *testing.T) {
	src := testdata{t: t}
	d := resolve(t, src, "1.20")
	memo, err := rules.NewMemo(0)
	require.NoError(t, err)

	properties := gopter.NewProperties(nil)
	properties.Property("equal inputs give equal task lists", prop.ForAll(
		func(goos, arch string, custom bool) bool {
			p := rules.Profile{OS: goos, Arch: arch, Features: map[string]bool{"has_custom_resolution": custom}}
			plain := Builder{}
			memoized := Builder{Rules: memo}
			a, err := plain.Build(context.Background(), d, p, src)
			if err != nil {
				return false
			}
			b, err := memoized.Build(context.Background(), d, p, src)
			if err != nil {
				return false
			}
			c, err := memoized.Build(context.Background(), d, p, src)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(a, b) && reflect.DeepEqual(b, c)
		},
		gen.OneConstOf("linux", "windows", "osx"),
		gen.OneConstOf("x86", "x86_64", "arm64"),
		gen.Bool(),
	))
	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
