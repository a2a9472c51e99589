package manifest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/tie/mcfetch/manifest/jsonspec"
	"github.com/tie/mcfetch/rules"
)

// DefaultMaxSchema is the newest minimumLauncherVersion understood.
const DefaultMaxSchema = 21

// Parser decodes documents. The zero value accepts schemas up to
// DefaultMaxSchema.
type Parser struct {
	MaxSchema *semver.Version
}

var defaultParser Parser

func ParseIndex(data []byte) (*Index, error) {
	return defaultParser.ParseIndex(data)
}

func ParseDocument(data []byte) (*Document, error) {
	return defaultParser.ParseDocument(data)
}

func ParseAssetIndex(id string, data []byte) (*AssetIndex, error) {
	return defaultParser.ParseAssetIndex(id, data)
}

func (p Parser) maxSchema() *semver.Version {
	if p.MaxSchema != nil {
		return p.MaxSchema
	}
	return semver.New(DefaultMaxSchema, 0, 0, "", "")
}

func (p Parser) ParseIndex(data []byte) (*Index, error) {
	var spec jsonspec.Index
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, &Error{Kind: ErrMalformed, Doc: "index", Cause: err}
	}
	if spec.Versions == nil {
		return nil, malformed("index", "versions", "missing")
	}
	x := &Index{Versions: make([]VersionSummary, 0, len(spec.Versions))}
	if spec.Latest != nil {
		x.Latest = Latest{Release: spec.Latest.Release, Snapshot: spec.Latest.Snapshot}
	}
	seen := make(map[string]bool, len(spec.Versions))
	for i, v := range spec.Versions {
		field := fmt.Sprintf("versions[%d]", i)
		if v.ID == "" {
			return nil, malformed("index", field+".id", "missing")
		}
		if seen[v.ID] {
			return nil, malformed("index", field+".id", "duplicate "+v.ID)
		}
		seen[v.ID] = true
		t := VersionType(v.Type)
		if !t.Valid() {
			return nil, malformed("index", field+".type", fmt.Sprintf("unknown type %q", v.Type))
		}
		if v.URL == "" {
			return nil, malformed("index", field+".url", "missing")
		}
		if v.SHA1 != "" && !ValidSHA1(v.SHA1) {
			return nil, malformed("index", field+".sha1", "not a sha1 digest")
		}
		s := VersionSummary{
			ID:   v.ID,
			Type: t,
			URL:  v.URL,
			SHA1: strings.ToLower(v.SHA1),
		}
		var err error
		if s.Time, err = parseTime(v.Time); err != nil {
			return nil, &Error{Kind: ErrMalformed, Doc: "index", Field: field + ".time", Cause: err}
		}
		if s.ReleaseTime, err = parseTime(v.ReleaseTime); err != nil {
			return nil, &Error{Kind: ErrMalformed, Doc: "index", Field: field + ".releaseTime", Cause: err}
		}
		if v.ComplianceLevel != nil {
			s.ComplianceLevel = *v.ComplianceLevel
		}
		x.Versions = append(x.Versions, s)
	}
	return x, nil
}

func (p Parser) ParseDocument(data []byte) (*Document, error) {
	var spec jsonspec.Version
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, &Error{Kind: ErrMalformed, Cause: err}
	}
	if spec.ID == "" {
		return nil, malformed("", "id", "missing")
	}
	id := spec.ID
	if spec.MinimumLauncherVersion != nil {
		n := *spec.MinimumLauncherVersion
		if n < 0 {
			return nil, malformed(id, "minimumLauncherVersion", "negative")
		}
		if err := p.checkSchema(id, "minimumLauncherVersion", semver.New(uint64(n), 0, 0, "", "")); err != nil {
			return nil, err
		}
	}
	if spec.SchemaVersion != "" {
		v, err := semver.NewVersion(spec.SchemaVersion)
		if err != nil {
			return nil, &Error{Kind: ErrMalformed, Doc: id, Field: "schemaVersion", Cause: err}
		}
		if err := p.checkSchema(id, "schemaVersion", v); err != nil {
			return nil, err
		}
	}

	d := &Document{
		ID:                 id,
		Parent:             spec.InheritsFrom,
		MainClass:          spec.MainClass,
		Assets:             spec.Assets,
		MinecraftArguments: spec.MinecraftArguments,
	}
	if d.Parent == "" {
		d.Parent = spec.ParentID
	}
	if spec.Type != "" {
		d.Type = VersionType(spec.Type)
	}
	if spec.MinimumLauncherVersion != nil {
		d.MinimumLauncherVersion = *spec.MinimumLauncherVersion
	}
	if spec.ComplianceLevel != nil {
		d.ComplianceLevel = *spec.ComplianceLevel
	}
	var err error
	if d.Time, err = parseTime(spec.Time); err != nil {
		return nil, &Error{Kind: ErrMalformed, Doc: id, Field: "time", Cause: err}
	}
	if d.ReleaseTime, err = parseTime(spec.ReleaseTime); err != nil {
		return nil, &Error{Kind: ErrMalformed, Doc: id, Field: "releaseTime", Cause: err}
	}

	if ref := spec.AssetIndex; ref != nil {
		if ref.ID == "" {
			return nil, malformed(id, "assetIndex.id", "missing")
		}
		a, err := artifact(id, "assetIndex", &jsonspec.Download{URL: ref.URL, SHA1: ref.SHA1, Size: ref.Size})
		if err != nil {
			return nil, err
		}
		d.AssetIndex = &AssetIndexRef{
			ID:        ref.ID,
			URL:       a.URL,
			SHA1:      a.SHA1,
			Size:      a.Size,
			TotalSize: ref.TotalSize,
		}
	}

	if len(spec.Downloads) > 0 {
		d.Downloads = make(map[Kind]Artifact, len(spec.Downloads))
		kinds := make([]string, 0, len(spec.Downloads))
		for k := range spec.Downloads {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			a, err := artifact(id, "downloads."+k, spec.Downloads[k])
			if err != nil {
				return nil, err
			}
			d.Downloads[Kind(k)] = a
		}
	}

	d.Libraries = make([]Library, 0, len(spec.Libraries))
	for i, l := range spec.Libraries {
		lib, err := library(id, fmt.Sprintf("libraries[%d]", i), l)
		if err != nil {
			return nil, err
		}
		d.Libraries = append(d.Libraries, lib)
	}

	if jv := spec.JavaVersion; jv != nil {
		if jv.MajorVersion == nil || *jv.MajorVersion <= 0 {
			return nil, malformed(id, "javaVersion.majorVersion", "missing")
		}
		d.JavaVersion = &JavaVersion{Component: jv.Component, Major: *jv.MajorVersion}
	}

	if a := spec.Arguments; a != nil {
		if d.Arguments.JVM, err = arguments(id, "arguments.jvm", a.JVM); err != nil {
			return nil, err
		}
		if d.Arguments.Game, err = arguments(id, "arguments.game", a.Game); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (p Parser) checkSchema(doc, field string, v *semver.Version) error {
	limit := p.maxSchema()
	if !v.GreaterThan(limit) {
		return nil
	}
	return &Error{
		Kind:   ErrUnsupportedSchema,
		Doc:    doc,
		Field:  field,
		Reason: fmt.Sprintf("%s is newer than supported %s", v, limit),
	}
}

func (p Parser) ParseAssetIndex(id string, data []byte) (*AssetIndex, error) {
	doc := "assets " + id
	var spec jsonspec.AssetIndex
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, &Error{Kind: ErrMalformed, Doc: doc, Cause: err}
	}
	if spec.Objects == nil {
		return nil, malformed(doc, "objects", "missing")
	}
	a := &AssetIndex{
		ID:             id,
		Objects:        make(map[string]Object, len(spec.Objects)),
		Virtual:        spec.Virtual,
		MapToResources: spec.MapToResources,
	}
	for name, o := range spec.Objects {
		if !ValidSHA1(o.Hash) {
			return nil, malformed(doc, "objects."+name+".hash", "not a sha1 digest")
		}
		if o.Size == nil || *o.Size < 0 {
			return nil, malformed(doc, "objects."+name+".size", "missing")
		}
		a.Objects[name] = Object{Hash: strings.ToLower(o.Hash), Size: *o.Size}
	}
	return a, nil
}

func artifact(doc, field string, d *jsonspec.Download) (Artifact, error) {
	if d == nil {
		return Artifact{}, malformed(doc, field, "missing")
	}
	if d.URL == "" {
		return Artifact{}, malformed(doc, field+".url", "missing")
	}
	if !ValidSHA1(d.SHA1) {
		return Artifact{}, malformed(doc, field+".sha1", "not a sha1 digest")
	}
	if d.Size == nil || *d.Size < 0 {
		return Artifact{}, malformed(doc, field+".size", "missing")
	}
	return Artifact{
		Path: d.Path,
		URL:  d.URL,
		SHA1: strings.ToLower(d.SHA1),
		Size: *d.Size,
	}, nil
}

func library(doc, field string, l jsonspec.Library) (Library, error) {
	if l.Name == "" {
		return Library{}, malformed(doc, field+".name", "missing")
	}
	c, err := ParseCoordinate(l.Name)
	if err != nil {
		return Library{}, &Error{Kind: ErrMalformed, Doc: doc, Field: field + ".name", Cause: err}
	}
	lib := Library{Coordinate: c, Natives: l.Natives}
	if l.Downloads != nil {
		if l.Downloads.Artifact != nil {
			a, err := artifact(doc, field+".downloads.artifact", l.Downloads.Artifact)
			if err != nil {
				return Library{}, err
			}
			if a.Path == "" {
				a.Path = c.Path("")
			}
			lib.Artifact = &a
		}
		if len(l.Downloads.Classifiers) > 0 {
			lib.Classifiers = make(map[string]Artifact, len(l.Downloads.Classifiers))
			for name, d := range l.Downloads.Classifiers {
				a, err := artifact(doc, field+".downloads.classifiers."+name, d)
				if err != nil {
					return Library{}, err
				}
				if a.Path == "" {
					a.Path = c.Path(name)
				}
				lib.Classifiers[name] = a
			}
		}
	} else if l.URL != "" && l.SHA1 != "" && l.Size != nil {
		p := c.Path("")
		a, err := artifact(doc, field, &jsonspec.Download{
			Path: p,
			URL:  strings.TrimSuffix(l.URL, "/") + "/" + p,
			SHA1: l.SHA1,
			Size: l.Size,
		})
		if err != nil {
			return Library{}, err
		}
		lib.Artifact = &a
	}
	if l.Extract != nil {
		lib.Extract = &Extract{Exclude: l.Extract.Exclude}
	}
	if lib.Rules, err = ruleSet(doc, field+".rules", l.Rules); err != nil {
		return Library{}, err
	}
	return lib, nil
}

func arguments(doc, field string, args []jsonspec.Argument) ([]Argument, error) {
	out := make([]Argument, 0, len(args))
	for i, a := range args {
		rs, err := ruleSet(doc, fmt.Sprintf("%s[%d].rules", field, i), a.Rules)
		if err != nil {
			return nil, err
		}
		out = append(out, Argument{Values: a.Value, Rules: rs})
	}
	return out, nil
}

func ruleSet(doc, field string, specs []jsonspec.Rule) (rules.Set, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	set := make(rules.Set, 0, len(specs))
	for i, s := range specs {
		f := fmt.Sprintf("%s[%d]", field, i)
		r := rules.Rule{Action: rules.Action(s.Action)}
		if r.Action != rules.Allow && r.Action != rules.Disallow {
			return nil, malformed(doc, f+".action", fmt.Sprintf("unknown action %q", s.Action))
		}
		if os := s.OS; os != nil {
			if os.Name != "" {
				r.Conditions = append(r.Conditions, rules.OSName(os.Name))
			}
			if os.Version != "" {
				c, err := rules.OSVersion(os.Version)
				if err != nil {
					return nil, &Error{Kind: ErrMalformed, Doc: doc, Field: f + ".os.version", Cause: err}
				}
				r.Conditions = append(r.Conditions, c)
			}
			if os.Arch != "" {
				r.Conditions = append(r.Conditions, rules.Arch(os.Arch))
			}
		}
		names := make([]string, 0, len(s.Features))
		for name := range s.Features {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r.Conditions = append(r.Conditions, rules.Feature(name, s.Features[name]))
		}
		set = append(set, r)
	}
	return set, nil
}

// ValidSHA1 reports whether s is a hex encoded sha1 digest in either case.
func ValidSHA1(s string) bool {
	if len(s) != 40 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
