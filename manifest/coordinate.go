package manifest

import (
	"fmt"
	"path"
	"strings"
)

// Coordinate is a maven coordinate group:name:version[:classifier][@ext].
type Coordinate struct {
	Group      string
	Name       string
	Version    string
	Classifier string
	Ext        string
}

func ParseCoordinate(s string) (Coordinate, error) {
	var c Coordinate
	spec := s
	if i := strings.LastIndexByte(spec, '@'); i >= 0 {
		c.Ext = spec[i+1:]
		spec = spec[:i]
	}
	parts := strings.Split(spec, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Coordinate{}, fmt.Errorf("coordinate %q: want group:name:version[:classifier]", s)
	}
	for _, p := range parts {
		if p == "" {
			return Coordinate{}, fmt.Errorf("coordinate %q: empty component", s)
		}
	}
	c.Group, c.Name, c.Version = parts[0], parts[1], parts[2]
	if len(parts) == 4 {
		c.Classifier = parts[3]
	}
	return c, nil
}

// Key is the merge identity of a library: group and name, plus the
// classifier when the coordinate itself names one. The version never takes
// part, so a later entry replaces an earlier one of another version.
func (c Coordinate) Key() string {
	k := c.Group + ":" + c.Name
	if c.Classifier != "" {
		k += ":" + c.Classifier
	}
	return k
}

func (c Coordinate) String() string {
	s := c.Group + ":" + c.Name + ":" + c.Version
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	if c.Ext != "" {
		s += "@" + c.Ext
	}
	return s
}

// Path returns the maven repository path of the artifact. A non-empty
// classifier argument overrides the coordinate's own.
func (c Coordinate) Path(classifier string) string {
	if classifier == "" {
		classifier = c.Classifier
	}
	ext := c.Ext
	if ext == "" {
		ext = "jar"
	}
	base := c.Name + "-" + c.Version
	if classifier != "" {
		base += "-" + classifier
	}
	dir := path.Join(strings.ReplaceAll(c.Group, ".", "/"), c.Name, c.Version)
	return path.Join(dir, base+"."+ext)
}
