// Package hclspec declares the HCL shape of the configuration, lock and sums
// files.
package hclspec

// Config is the mcfetch.hcl file. Every block and attribute is optional.
type Config struct {
	Profile *Profile `hcl:"profile,block"`
	Cache   *Cache   `hcl:"cache,block"`
	Fetch   *Fetch   `hcl:"fetch,block"`
	Source  *Source  `hcl:"source,block"`
	Log     *Log     `hcl:"log,block"`
}

type Profile struct {
	OS        *string  `hcl:"os,optional"`
	OSVersion *string  `hcl:"os_version,optional"`
	Arch      *string  `hcl:"arch,optional"`
	Features  []string `hcl:"features,optional"`
}

type Cache struct {
	Dir *string `hcl:"dir,optional"`
}

type Fetch struct {
	Concurrency *int     `hcl:"concurrency,optional"`
	RateLimit   *float64 `hcl:"rate_limit,optional"`
	RateBurst   *int     `hcl:"rate_burst,optional"`
	Retry       *Retry   `hcl:"retry,block"`
}

// Retry durations are Go duration strings such as "500ms".
type Retry struct {
	Attempts   *int     `hcl:"attempts,optional"`
	Initial    *string  `hcl:"initial,optional"`
	Max        *string  `hcl:"max,optional"`
	Multiplier *float64 `hcl:"multiplier,optional"`
}

type Source struct {
	IndexURL     *string `hcl:"index_url,optional"`
	ResourcesURL *string `hcl:"resources_url,optional"`
	// Versions is a launcher directory holding versions/<id>/<id>.json.
	Versions *string `hcl:"versions,optional"`
}

type Log struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Lock pins the task list of one version.
type Lock struct {
	Version string `hcl:"version,attr"`
	Tasks   []Task `hcl:"task,block"`
}

type Task struct {
	Dest    string   `hcl:"dest,label"`
	Kind    string   `hcl:"kind,attr"`
	URL     string   `hcl:"url,attr"`
	SHA1    string   `hcl:"sha1,attr"`
	Size    int64    `hcl:"size,attr"`
	// Exclude is only meaningful for native archives.
	Exclude []string `hcl:"exclude,optional"`
}

// Sums lists every digest recorded for the files of a version.
type Sums struct {
	Checks []Check `hcl:"check,block"`
}

type Check struct {
	Dest string   `hcl:"dest,label"`
	SHA1 string   `hcl:"sha1,attr"`
	Sums []string `hcl:"sums,attr"`
}
