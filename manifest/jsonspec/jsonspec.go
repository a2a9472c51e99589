// Package jsonspec holds the wire shapes of launcher metadata documents.
// Fields are pointers where absence must be told apart from a zero value.
package jsonspec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Index struct {
	Latest   *Latest        `json:"latest"`
	Versions []IndexVersion `json:"versions"`
}

type Latest struct {
	Release  string `json:"release"`
	Snapshot string `json:"snapshot"`
}

type IndexVersion struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	SHA1            string `json:"sha1"`
	Time            string `json:"time"`
	ReleaseTime     string `json:"releaseTime"`
	ComplianceLevel *int   `json:"complianceLevel"`
}

type Version struct {
	ID           string `json:"id"`
	InheritsFrom string `json:"inheritsFrom"`
	ParentID     string `json:"parentId"`
	Type         string `json:"type"`
	MainClass    string `json:"mainClass"`
	Assets       string `json:"assets"`

	AssetIndex  *AssetIndexRef       `json:"assetIndex"`
	Downloads   map[string]*Download `json:"downloads"`
	Libraries   []Library            `json:"libraries"`
	JavaVersion *JavaVersion         `json:"javaVersion"`

	Arguments          *Arguments `json:"arguments"`
	MinecraftArguments string     `json:"minecraftArguments"`

	MinimumLauncherVersion *int   `json:"minimumLauncherVersion"`
	SchemaVersion          string `json:"schemaVersion"`
	ComplianceLevel        *int   `json:"complianceLevel"`

	Time        string `json:"time"`
	ReleaseTime string `json:"releaseTime"`
}

type Download struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
	Size *int64 `json:"size"`
}

type AssetIndexRef struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	SHA1      string `json:"sha1"`
	Size      *int64 `json:"size"`
	TotalSize int64  `json:"totalSize"`
}

type Library struct {
	Name string `json:"name"`

	// Maven repository layout used by mod loader profiles.
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
	Size *int64 `json:"size"`

	Downloads *LibraryDownloads `json:"downloads"`
	Natives   map[string]string `json:"natives"`
	Extract   *Extract          `json:"extract"`
	Rules     []Rule            `json:"rules"`
}

type LibraryDownloads struct {
	Artifact    *Download            `json:"artifact"`
	Classifiers map[string]*Download `json:"classifiers"`
}

type Extract struct {
	Exclude []string `json:"exclude"`
}

type Rule struct {
	Action   string          `json:"action"`
	OS       *OS             `json:"os"`
	Features map[string]bool `json:"features"`
}

type OS struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Arch    string `json:"arch"`
}

type JavaVersion struct {
	Component    string `json:"component"`
	MajorVersion *int   `json:"majorVersion"`
}

type Arguments struct {
	Game []Argument `json:"game"`
	JVM  []Argument `json:"jvm"`
}

// Argument is either a bare string or an object carrying rules and one or
// more values.
type Argument struct {
	Value []string
	Rules []Rule
}

func (a *Argument) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.Value = []string{s}
		return nil
	}
	var obj struct {
		Rules []Rule          `json:"rules"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	a.Rules = obj.Rules
	v := bytes.TrimSpace(obj.Value)
	switch {
	case len(v) == 0:
		return fmt.Errorf("argument without value")
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		a.Value = []string{s}
	default:
		if err := json.Unmarshal(v, &a.Value); err != nil {
			return err
		}
	}
	return nil
}

type AssetIndex struct {
	Objects        map[string]Object `json:"objects"`
	Virtual        bool              `json:"virtual"`
	MapToResources bool              `json:"map_to_resources"`
}

type Object struct {
	Hash string `json:"hash"`
	Size *int64 `json:"size"`
}
