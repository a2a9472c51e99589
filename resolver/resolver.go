// Package resolver merges a version document with the documents it
// inherits from into one descriptor.
package resolver

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/tie/mcfetch/manifest"
)

// MaxDepth is the longest inheritance chain accepted.
const MaxDepth = 16

// DocumentFetcher returns raw version document bytes for an id.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, id string) ([]byte, error)
}

// Descriptor is a fully merged version. It is not modified after Resolve
// returns it.
type Descriptor struct {
	ID string
	// Chain lists the merged documents, child first.
	Chain     []string
	Type      manifest.VersionType
	MainClass string
	Assets    string

	Libraries   []manifest.Library
	AssetIndex  *manifest.AssetIndexRef
	Downloads   map[manifest.Kind]manifest.Artifact
	JavaVersion manifest.JavaVersion

	Arguments          manifest.Arguments
	MinecraftArguments string

	ReleaseTime time.Time
}

// Resolver resolves documents with a given parser.
type Resolver struct {
	Parser manifest.Parser
}

// Resolve resolves id with the default parser.
func Resolve(ctx context.Context, id string, f DocumentFetcher) (*Descriptor, error) {
	var r Resolver
	return r.Resolve(ctx, id, f)
}

func (r *Resolver) Resolve(ctx context.Context, id string, f DocumentFetcher) (*Descriptor, error) {
	docs, err := r.chain(ctx, id, f)
	if err != nil {
		return nil, err
	}
	d := merge(docs)
	if d.JavaVersion.Major == 0 {
		return nil, &manifest.Error{
			Kind:   manifest.ErrMalformed,
			Doc:    id,
			Field:  "javaVersion",
			Reason: "missing from every document in the chain",
		}
	}
	zerolog.Ctx(ctx).Debug().
		Str("version", id).
		Strs("chain", d.Chain).
		Int("libraries", len(d.Libraries)).
		Msg("resolved")
	return d, nil
}

// chain fetches id and its ancestors, returning them root first. The walk
// is sequential: a parent is only fetched once its child has been parsed.
func (r *Resolver) chain(ctx context.Context, id string, f DocumentFetcher) ([]*manifest.Document, error) {
	var (
		docs []*manifest.Document
		path []string
	)
	onPath := make(map[string]bool)
	for cur := id; cur != ""; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if onPath[cur] {
			return nil, &Error{ID: id, Chain: append(path, cur), Err: ErrCyclicInheritance}
		}
		if len(path) >= MaxDepth {
			return nil, &Error{
				ID:    id,
				Chain: append(path, cur),
				Err:   fmt.Errorf("%w: deeper than %d", ErrCyclicInheritance, MaxDepth),
			}
		}
		onPath[cur] = true
		path = append(path, cur)

		doc, err := r.fetch(ctx, cur, f)
		if err != nil {
			if cur == id {
				return nil, err
			}
			return nil, &Error{ID: id, Chain: slices.Clone(path), Err: fmt.Errorf("%w %q: %w", ErrMissingParent, cur, err)}
		}
		docs = append(docs, doc)
		cur = doc.Parent
	}
	slices.Reverse(docs)
	return docs, nil
}

func (r *Resolver) fetch(ctx context.Context, id string, f DocumentFetcher) (*manifest.Document, error) {
	data, err := f.FetchDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := r.Parser.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	if doc.ID != id {
		zerolog.Ctx(ctx).Warn().Str("want", id).Str("got", doc.ID).Msg("document id differs from requested id")
	}
	return doc, nil
}

// merge folds documents root first, each child overriding its parent.
func merge(docs []*manifest.Document) *Descriptor {
	d := &Descriptor{
		Downloads: make(map[manifest.Kind]manifest.Artifact),
	}
	var libs [][]manifest.Library
	for _, doc := range docs {
		d.Chain = append([]string{doc.ID}, d.Chain...)
		d.ID = doc.ID
		if doc.Type != "" {
			d.Type = doc.Type
		}
		if doc.MainClass != "" {
			d.MainClass = doc.MainClass
		}
		if doc.Assets != "" {
			d.Assets = doc.Assets
		}
		if doc.AssetIndex != nil {
			ref := *doc.AssetIndex
			d.AssetIndex = &ref
		}
		if doc.JavaVersion != nil {
			d.JavaVersion = *doc.JavaVersion
		}
		if doc.MinecraftArguments != "" {
			d.MinecraftArguments = doc.MinecraftArguments
		}
		if !doc.ReleaseTime.IsZero() {
			d.ReleaseTime = doc.ReleaseTime
		}
		maps.Copy(d.Downloads, doc.Downloads)
		d.Arguments.JVM = append(d.Arguments.JVM, doc.Arguments.JVM...)
		d.Arguments.Game = append(d.Arguments.Game, doc.Arguments.Game...)
		libs = append(libs, doc.Libraries)
	}
	d.Libraries = MergeLibraries(libs...)
	if d.Assets == "" && d.AssetIndex != nil {
		d.Assets = d.AssetIndex.ID
	}
	return d
}

// MergeLibraries concatenates lists and collapses entries sharing a
// library key. Each surviving key keeps the position of its first
// occurrence and the value of its last.
func MergeLibraries(lists ...[]manifest.Library) []manifest.Library {
	var out []manifest.Library
	pos := make(map[string]int)
	for _, list := range lists {
		for _, l := range list {
			k := l.Key()
			if i, ok := pos[k]; ok {
				out[i] = l
				continue
			}
			pos[k] = len(out)
			out = append(out, l)
		}
	}
	return out
}
