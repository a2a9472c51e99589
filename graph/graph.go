// Package graph flattens a resolved version into the list of files that
// make up an installation.
package graph

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tie/mcfetch/manifest"
	"github.com/tie/mcfetch/resolver"
	"github.com/tie/mcfetch/rules"
)

const DefaultResourcesURL = "https://resources.download.minecraft.net"

// AssetIndexFetcher returns raw asset index bytes.
type AssetIndexFetcher interface {
	FetchAssetIndex(ctx context.Context, ref manifest.AssetIndexRef) ([]byte, error)
}

type Builder struct {
	// ResourcesURL is the base URL of asset objects.
	ResourcesURL string
	// Rules, when set, memoizes rule evaluation across builds.
	Rules  *rules.Memo
	Parser manifest.Parser
}

// Build returns the tasks for d under profile p. The result depends only
// on its inputs: equal inputs give equal task lists, order included.
func (b *Builder) Build(ctx context.Context, d *resolver.Descriptor, p rules.Profile, f AssetIndexFetcher) ([]Task, error) {
	var l taskList

	for _, k := range manifest.Kinds {
		a, ok := d.Downloads[k]
		if !ok {
			continue
		}
		dest, kind := versionFile(d.ID, k)
		l.add(Task{Dest: dest, URL: a.URL, SHA1: a.SHA1, Size: a.Size, Kind: kind})
	}

	for _, lib := range d.Libraries {
		if !b.Rules.Evaluate(lib.Rules, p) {
			zerolog.Ctx(ctx).Debug().Str("library", lib.String()).Msg("excluded by rules")
			continue
		}
		if a := lib.Artifact; a != nil {
			l.add(Task{Dest: "libraries/" + a.Path, URL: a.URL, SHA1: a.SHA1, Size: a.Size, Kind: KindLibrary})
		}
		if _, a, ok := lib.NativeClassifier(p); ok {
			l.add(Task{
				Dest:    "libraries/" + a.Path,
				URL:     a.URL,
				SHA1:    a.SHA1,
				Size:    a.Size,
				Kind:    KindNative,
				Extract: extractOf(lib.Extract),
			})
		}
	}

	if ref := d.AssetIndex; ref != nil {
		l.add(Task{
			Dest: "assets/indexes/" + ref.ID + ".json",
			URL:  ref.URL,
			SHA1: ref.SHA1,
			Size: ref.Size,
			Kind: KindAssetIndex,
		})
		if f == nil {
			return nil, fmt.Errorf("asset index %q: no fetcher", ref.ID)
		}
		data, err := f.FetchAssetIndex(ctx, *ref)
		if err != nil {
			return nil, fmt.Errorf("asset index %q: %w", ref.ID, err)
		}
		idx, err := b.Parser.ParseAssetIndex(ref.ID, data)
		if err != nil {
			return nil, err
		}
		for _, name := range idx.Paths() {
			o := idx.Objects[name]
			l.add(Task{
				Dest: objectDest(idx, name, o.Hash),
				URL:  b.objectURL(o.Hash),
				SHA1: o.Hash,
				Size: o.Size,
				Kind: KindAssetObject,
			})
		}
	}

	zerolog.Ctx(ctx).Debug().
		Str("version", d.ID).
		Int("tasks", len(l.tasks)).
		Int("duplicates", l.dups).
		Msg("built task list")
	return l.tasks, nil
}

func (b *Builder) objectURL(hash string) string {
	base := b.ResourcesURL
	if base == "" {
		base = DefaultResourcesURL
	}
	return strings.TrimSuffix(base, "/") + "/" + hash[:2] + "/" + hash
}

func versionFile(id string, k manifest.Kind) (string, Kind) {
	dir := path.Join("versions", id)
	switch k {
	case manifest.Client:
		return path.Join(dir, id+".jar"), KindJar
	case manifest.Server:
		return path.Join(dir, id+"-server.jar"), KindJar
	case manifest.ClientMappings:
		return path.Join(dir, id+"-client.txt"), KindMappings
	case manifest.ServerMappings:
		return path.Join(dir, id+"-server.txt"), KindMappings
	}
	panic("graph: unknown download kind " + string(k))
}

func objectDest(idx *manifest.AssetIndex, name, hash string) string {
	switch {
	case idx.MapToResources:
		return path.Join("resources", name)
	case idx.Virtual:
		return path.Join("assets", "virtual", idx.ID, name)
	}
	return path.Join("assets", "objects", hash[:2], hash)
}

func extractOf(e *manifest.Extract) *manifest.Extract {
	if e == nil {
		return &manifest.Extract{}
	}
	return &manifest.Extract{Exclude: append([]string(nil), e.Exclude...)}
}

type taskKey struct {
	dest string
	sha1 string
}

// taskList keeps the first task for each destination and digest.
type taskList struct {
	tasks []Task
	seen  map[taskKey]bool
	dups  int
}

func (l *taskList) add(t Task) {
	if l.seen == nil {
		l.seen = make(map[taskKey]bool)
	}
	k := taskKey{dest: t.Dest, sha1: t.SHA1}
	if l.seen[k] {
		l.dups++
		return
	}
	l.seen[k] = true
	l.tasks = append(l.tasks, t)
}
