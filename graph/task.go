package graph

import (
	"github.com/tie/mcfetch/manifest"
)

type Kind string

const (
	KindJar         Kind = "jar"
	KindMappings    Kind = "mappings"
	KindLibrary     Kind = "library"
	KindNative      Kind = "native"
	KindAssetIndex  Kind = "asset_index"
	KindAssetObject Kind = "asset_object"
)

func (k Kind) Valid() bool {
	switch k {
	case KindJar, KindMappings, KindLibrary, KindNative, KindAssetIndex, KindAssetObject:
		return true
	}
	return false
}

// Task is one file to download. Dest is a slash separated path relative
// to the instance root.
type Task struct {
	Dest string
	URL  string
	SHA1 string
	Size int64
	Kind Kind

	// Extract is set for native archives that are unpacked after download.
	Extract *manifest.Extract
}

// ID identifies the task within a task list.
func (t Task) ID() string {
	return string(t.Kind) + ":" + t.Dest
}
