package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tie/mcfetch/manifest"
)

var errOffline = errors.New("offline")

type docs map[string]string

func (d docs) FetchDocument(ctx context.Context, id string) ([]byte, error) {
	s, ok := d[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, errOffline)
	}
	return []byte(s), nil
}

type counting struct {
	DocumentFetcher
	calls []string
}

func (c *counting) FetchDocument(ctx context.Context, id string) ([]byte, error) {
	c.calls = append(c.calls, id)
	return c.DocumentFetcher.FetchDocument(ctx, id)
}

const sha = "e575a48efda46cf88111ba05b624ef90c520eef1"

func lib(coord string) string {
	return fmt.Sprintf(`{"name": %q, "downloads": {"artifact": {"url": "https://libraries.example/%s", "sha1": %q, "size": 1}}}`, coord, coord, sha)
}

func libNames(libs []manifest.Library) []string {
	out := make([]string, len(libs))
	for i, l := range libs {
		out[i] = l.String()
	}
	return out
}

func TestResolveMergesLibraries(t *testing.T) {
	f := docs{
		"parent": `{"id": "parent", "type": "release", "javaVersion": {"majorVersion": 17},
			"libraries": [` + lib("g:a:1") + `, ` + lib("g:b:1") + `]}`,
		"child": `{"id": "child", "inheritsFrom": "parent",
			"libraries": [` + lib("g:a:2") + `]}`,
	}
	d, err := Resolve(context.Background(), "child", f)
	require.NoError(t, err)
	assert.Equal(t, []string{"g:a:2", "g:b:1"}, libNames(d.Libraries))
	assert.Equal(t, []string{"child", "parent"}, d.Chain)
	assert.Equal(t, "child", d.ID)
	assert.Equal(t, manifest.Release, d.Type, "type is inherited")
	assert.Equal(t, 17, d.JavaVersion.Major)
}

func TestResolveOverrides(t *testing.T) {
	dl := func(name, url string) string {
		return fmt.Sprintf(`%q: {"url": %q, "sha1": %q, "size": 10}`, name, url, sha)
	}
	f := docs{
		"base": `{"id": "base", "type": "release", "mainClass": "net.minecraft.client.main.Main",
			"javaVersion": {"majorVersion": 17},
			"assetIndex": {"id": "5", "url": "https://meta.example/5.json", "sha1": "` + sha + `", "size": 3},
			"downloads": {` + dl("client", "https://base/client.jar") + `, ` + dl("server", "https://base/server.jar") + `},
			"arguments": {"game": ["--demo"], "jvm": ["-Xss1M"]}}`,
		"mod": `{"id": "mod", "parentId": "base", "mainClass": "net.fabricmc.loader.Knot",
			"javaVersion": {"majorVersion": 21},
			"downloads": {` + dl("client", "https://mod/client.jar") + `},
			"arguments": {"game": ["--mod"], "jvm": []}}`,
	}
	d, err := Resolve(context.Background(), "mod", f)
	require.NoError(t, err)

	assert.Equal(t, "net.fabricmc.loader.Knot", d.MainClass)
	assert.Equal(t, 21, d.JavaVersion.Major)
	assert.Equal(t, "https://mod/client.jar", d.Downloads[manifest.Client].URL)
	assert.Equal(t, "https://base/server.jar", d.Downloads[manifest.Server].URL)
	require.NotNil(t, d.AssetIndex)
	assert.Equal(t, "5", d.AssetIndex.ID)
	assert.Equal(t, "5", d.Assets)

	require.Len(t, d.Arguments.Game, 2)
	assert.Equal(t, []string{"--demo"}, d.Arguments.Game[0].Values, "parent arguments come first")
	assert.Equal(t, []string{"--mod"}, d.Arguments.Game[1].Values)
	assert.Len(t, d.Arguments.JVM, 1)
}

func TestResolveCycle(t *testing.T) {
	f := &counting{DocumentFetcher: docs{
		"X": `{"id": "X", "inheritsFrom": "Y"}`,
		"Y": `{"id": "Y", "inheritsFrom": "X"}`,
	}}
	_, err := Resolve(context.Background(), "X", f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicInheritance)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "X", rerr.ID)
	assert.Equal(t, []string{"X", "Y", "X"}, rerr.Chain)
	assert.Equal(t, []string{"X", "Y"}, f.calls, "each document is fetched once")
}

func TestResolveSelfParent(t *testing.T) {
	_, err := Resolve(context.Background(), "X", docs{"X": `{"id": "X", "inheritsFrom": "X"}`})
	assert.ErrorIs(t, err, ErrCyclicInheritance)
}

func TestResolveTooDeep(t *testing.T) {
	f := docs{}
	for i := 0; i <= MaxDepth; i++ {
		f[fmt.Sprint(i)] = fmt.Sprintf(`{"id": "%d", "inheritsFrom": "%d"}`, i, i+1)
	}
	_, err := Resolve(context.Background(), "0", f)
	assert.ErrorIs(t, err, ErrCyclicInheritance)
}

func TestResolveMissingParent(t *testing.T) {
	f := docs{
		"child":  `{"id": "child", "inheritsFrom": "parent"}`,
		"broken": `{"id": "broken", "inheritsFrom": "bad"}`,
		"bad":    `{"id": "bad", "downloads": {"client": {}}}`,
	}
	_, err := Resolve(context.Background(), "child", f)
	assert.ErrorIs(t, err, ErrMissingParent)
	assert.ErrorIs(t, err, errOffline)

	_, err = Resolve(context.Background(), "broken", f)
	assert.ErrorIs(t, err, ErrMissingParent)
	assert.ErrorIs(t, err, manifest.ErrMalformed)
}

func TestResolveTopLevelErrors(t *testing.T) {
	_, err := Resolve(context.Background(), "absent", docs{})
	assert.ErrorIs(t, err, errOffline)
	assert.NotErrorIs(t, err, ErrMissingParent)

	_, err = Resolve(context.Background(), "bad", docs{"bad": `{`})
	assert.ErrorIs(t, err, manifest.ErrMalformed)
	var rerr *Error
	assert.False(t, errors.As(err, &rerr))
}

func TestResolveRequiresJavaVersion(t *testing.T) {
	_, err := Resolve(context.Background(), "old", docs{"old": `{"id": "old", "type": "old_alpha"}`})
	assert.ErrorIs(t, err, manifest.ErrMalformed)
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Resolve(ctx, "X", docs{"X": `{"id": "X", "javaVersion": {"majorVersion": 8}}`})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeLibrariesProperties(t *testing.T) {
	toLibs := func(keys []int, version string) []manifest.Library {
		libs := make([]manifest.Library, len(keys))
		for i, k := range keys {
			libs[i] = manifest.Library{Coordinate: manifest.Coordinate{
				Group: "g", Name: fmt.Sprint(k), Version: version,
			}}
		}
		return libs
	}

	properties := gopter.NewProperties(nil)

	properties.Property("keys are distinct in first occurrence order", prop.ForAll(
		func(parent, child []int) bool {
			merged := MergeLibraries(toLibs(parent, "1"), toLibs(child, "2"))
			var want []string
			seen := make(map[int]bool)
			for _, k := range append(append([]int{}, parent...), child...) {
				if !seen[k] {
					seen[k] = true
					want = append(want, fmt.Sprintf("g:%d", k))
				}
			}
			if len(merged) != len(want) {
				return false
			}
			for i, l := range merged {
				if l.Key() != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 9)),
		gen.SliceOf(gen.IntRange(0, 9)),
	))

	properties.Property("child value wins", prop.ForAll(
		func(parent, child []int) bool {
			inChild := make(map[string]bool)
			for _, k := range child {
				inChild[fmt.Sprintf("g:%d", k)] = true
			}
			for _, l := range MergeLibraries(toLibs(parent, "1"), toLibs(child, "2")) {
				if inChild[l.Key()] != (l.Version == "2") {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 9)),
		gen.SliceOf(gen.IntRange(0, 9)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
