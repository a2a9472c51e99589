// Package rules evaluates the allow/disallow rule sets that gate libraries
// and arguments in version manifests.
package rules

import (
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

type Action string

const (
	Allow    Action = "allow"
	Disallow Action = "disallow"
)

// Kind tags the condition variant.
type Kind int

const (
	KindOSName Kind = iota
	KindOSVersion
	KindArch
	KindFeature
)

// Condition is a single predicate of a rule. Only the fields relevant to
// Kind are set.
type Condition struct {
	Kind    Kind
	Value   string
	Pattern *regexp.Regexp
	Want    bool
}

func OSName(name string) Condition {
	return Condition{Kind: KindOSName, Value: name}
}

// OSVersion compiles pattern the way the launcher does: an unanchored
// regular expression matched against the profile OS version.
func OSVersion(pattern string) (Condition, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Condition{}, fmt.Errorf("os version pattern %q: %w", pattern, err)
	}
	return Condition{Kind: KindOSVersion, Value: pattern, Pattern: re}, nil
}

func Arch(arch string) Condition {
	return Condition{Kind: KindArch, Value: arch}
}

func Feature(name string, want bool) Condition {
	return Condition{Kind: KindFeature, Value: name, Want: want}
}

func (c Condition) Match(p Profile) bool {
	switch c.Kind {
	case KindOSName:
		return c.Value == p.OS
	case KindOSVersion:
		return c.Pattern != nil && c.Pattern.MatchString(p.OSVersion)
	case KindArch:
		return c.Value == p.Arch
	case KindFeature:
		return p.Features[c.Value] == c.Want
	}
	return false
}

func (c Condition) String() string {
	switch c.Kind {
	case KindOSName:
		return "os.name=" + c.Value
	case KindOSVersion:
		return "os.version~" + c.Value
	case KindArch:
		return "os.arch=" + c.Value
	case KindFeature:
		return "feature." + c.Value + "=" + strconv.FormatBool(c.Want)
	}
	return "unknown"
}

type Rule struct {
	Action     Action
	Conditions []Condition
}

// Matches reports whether every condition holds. A rule without
// conditions matches any profile.
func (r Rule) Matches(p Profile) bool {
	for _, c := range r.Conditions {
		if !c.Match(p) {
			return false
		}
	}
	return true
}

// Set is an ordered rule list as it appears in a manifest.
type Set []Rule

// Key returns a stable fingerprint of the set.
func (s Set) Key() string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(string(r.Action))
		for _, c := range r.Conditions {
			b.WriteByte(',')
			b.WriteString(c.String())
		}
	}
	return b.String()
}

// Profile describes the target platform rules are evaluated against.
type Profile struct {
	OS        string
	OSVersion string
	Arch      string
	Features  map[string]bool
}

// Key returns a stable fingerprint of the profile.
func (p Profile) Key() string {
	names := make([]string, 0, len(p.Features))
	for name, on := range p.Features {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return fmt.Sprintf("%s|%s|%s|%s", p.OS, p.OSVersion, p.Arch, strings.Join(names, ","))
}

// Evaluate folds the set over p. An empty set allows. A non-empty set starts
// from disallow and the last matching rule decides.
func Evaluate(s Set, p Profile) bool {
	if len(s) == 0 {
		return true
	}
	allowed := false
	for _, r := range s {
		if r.Matches(p) {
			allowed = r.Action == Allow
		}
	}
	return allowed
}

// Host returns the profile of the running process. OS version is left
// empty; callers that care about version-gated rules should set it.
func Host() Profile {
	return Profile{
		OS:       OSNameOf(runtime.GOOS),
		Arch:     ArchOf(runtime.GOARCH),
		Features: map[string]bool{},
	}
}

// OSNameOf maps a GOOS value to the name used in manifests.
func OSNameOf(goos string) string {
	switch goos {
	case "darwin":
		return "osx"
	case "windows":
		return "windows"
	case "linux":
		return "linux"
	}
	return goos
}

// ArchOf maps a GOARCH value to the name used in manifests.
func ArchOf(goarch string) string {
	switch goarch {
	case "386":
		return "x86"
	case "amd64":
		return "x86_64"
	case "arm64":
		return "arm64"
	}
	return goarch
}

// Bits returns the ${arch} substitution used in legacy native classifiers.
func (p Profile) Bits() string {
	switch p.Arch {
	case "x86", "arm32":
		return "32"
	}
	return "64"
}
