// Package manifest parses the launcher version index, version documents
// and asset indexes into typed values. It performs no I/O.
package manifest

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tie/mcfetch/rules"
)

type VersionType string

const (
	Release  VersionType = "release"
	Snapshot VersionType = "snapshot"
	OldBeta  VersionType = "old_beta"
	OldAlpha VersionType = "old_alpha"
)

func (t VersionType) Valid() bool {
	switch t {
	case Release, Snapshot, OldBeta, OldAlpha:
		return true
	}
	return false
}

// Phase is the development phase a version was released in.
type Phase string

const (
	PhasePreClassic Phase = "pre-classic"
	PhaseClassic    Phase = "classic"
	PhaseIndev      Phase = "indev"
	PhaseInfdev     Phase = "infdev"
	PhaseAlpha      Phase = "alpha"
	PhaseBeta       Phase = "beta"
	PhaseRelease    Phase = "release"
)

// PhaseOf derives the phase from the version id prefix and type.
func PhaseOf(id string, t VersionType) Phase {
	switch t {
	case OldAlpha:
		switch {
		case strings.HasPrefix(id, "rd"):
			return PhasePreClassic
		case strings.HasPrefix(id, "c"):
			return PhaseClassic
		case strings.HasPrefix(id, "inf"):
			return PhaseInfdev
		case strings.HasPrefix(id, "in"):
			return PhaseIndev
		}
		return PhaseAlpha
	case OldBeta:
		return PhaseBeta
	}
	return PhaseRelease
}

type VersionSummary struct {
	ID              string
	Type            VersionType
	URL             string
	SHA1            string
	Time            time.Time
	ReleaseTime     time.Time
	ComplianceLevel int
}

func (v VersionSummary) Phase() Phase {
	return PhaseOf(v.ID, v.Type)
}

// Compliant reports whether the version carries the current player safety
// features.
func (v VersionSummary) Compliant() bool {
	return v.ComplianceLevel == 1
}

type Latest struct {
	Release  string
	Snapshot string
}

// Index is the top-level version list in document order.
type Index struct {
	Latest   Latest
	Versions []VersionSummary
}

func (x *Index) Get(id string) (VersionSummary, bool) {
	for _, v := range x.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return VersionSummary{}, false
}

func (x *Index) LatestRelease() (VersionSummary, bool) {
	return x.Get(x.Latest.Release)
}

func (x *Index) LatestSnapshot() (VersionSummary, bool) {
	return x.Get(x.Latest.Snapshot)
}

// Filter returns matching versions ordered by release time, oldest first.
func (x *Index) Filter(keep func(VersionSummary) bool) []VersionSummary {
	var out []VersionSummary
	for _, v := range x.Versions {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReleaseTime.Before(out[j].ReleaseTime)
	})
	return out
}

func (x *Index) Releases() []VersionSummary {
	return x.Filter(func(v VersionSummary) bool { return v.Type == Release })
}

func (x *Index) Snapshots() []VersionSummary {
	return x.Filter(func(v VersionSummary) bool { return v.Type == Snapshot })
}

func (x *Index) Search(re *regexp.Regexp) []VersionSummary {
	return x.Filter(func(v VersionSummary) bool { return re.MatchString(v.ID) })
}

func (x *Index) ByPhase(p Phase) []VersionSummary {
	return x.Filter(func(v VersionSummary) bool { return v.Phase() == p })
}

// Kind names an entry of a version's downloads map.
type Kind string

const (
	Client         Kind = "client"
	ClientMappings Kind = "client_mappings"
	Server         Kind = "server"
	ServerMappings Kind = "server_mappings"
)

// Kinds lists the download kinds in the order tasks are emitted.
var Kinds = []Kind{Client, ClientMappings, Server, ServerMappings}

// Artifact references one downloadable file. SHA1 and Size are always set.
type Artifact struct {
	Path string
	URL  string
	SHA1 string
	Size int64
}

type AssetIndexRef struct {
	ID        string
	URL       string
	SHA1      string
	Size      int64
	TotalSize int64
}

type JavaVersion struct {
	Component string
	Major     int
}

type Argument struct {
	Values []string
	Rules  rules.Set
}

type Arguments struct {
	JVM  []Argument
	Game []Argument
}

type Extract struct {
	Exclude []string
}

// Excluded reports whether name falls under one of the exclude prefixes.
func (e *Extract) Excluded(name string) bool {
	if e == nil {
		return false
	}
	for _, prefix := range e.Exclude {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

type Library struct {
	Coordinate

	// Artifact is the default classifier, nil for natives-only entries.
	Artifact    *Artifact
	Classifiers map[string]Artifact
	// Natives maps an OS name to a classifier, possibly containing ${arch}.
	Natives map[string]string
	Rules   rules.Set
	Extract *Extract
}

// NativeClassifier returns the native artifact for the profile's OS.
func (l *Library) NativeClassifier(p rules.Profile) (string, Artifact, bool) {
	name, ok := l.Natives[p.OS]
	if !ok {
		return "", Artifact{}, false
	}
	name = strings.ReplaceAll(name, "${arch}", p.Bits())
	a, ok := l.Classifiers[name]
	return name, a, ok
}

// Document is one version document before inheritance is applied.
type Document struct {
	ID        string
	Parent    string
	Type      VersionType
	MainClass string
	Assets    string

	AssetIndex  *AssetIndexRef
	Downloads   map[Kind]Artifact
	Libraries   []Library
	JavaVersion *JavaVersion

	Arguments          Arguments
	MinecraftArguments string

	MinimumLauncherVersion int
	ComplianceLevel        int

	Time        time.Time
	ReleaseTime time.Time
}

type Object struct {
	Hash string
	Size int64
}

type AssetIndex struct {
	ID             string
	Objects        map[string]Object
	Virtual        bool
	MapToResources bool
}

// Mirrored reports whether objects are laid out under their virtual paths
// rather than by hash.
func (a *AssetIndex) Mirrored() bool {
	return a.Virtual || a.MapToResources
}

// Paths returns the object paths in sorted order.
func (a *AssetIndex) Paths() []string {
	paths := make([]string, 0, len(a.Objects))
	for p := range a.Objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
