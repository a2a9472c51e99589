// Package config loads mcfetch settings. Values are layered: built-in
// defaults, then the HCL file, then MCFETCH_* environment variables (with a
// .env file filling in unset ones), then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tie/mcfetch/config/hclspec"
	"github.com/tie/mcfetch/fetcher"
	"github.com/tie/mcfetch/graph"
	"github.com/tie/mcfetch/rules"
	"github.com/tie/mcfetch/source"
)

const (
	DefaultFile   = "mcfetch.hcl"
	DefaultDotEnv = ".env"
	EnvPrefix     = "MCFETCH_"
)

type Config struct {
	Profile Profile `envPrefix:"PROFILE_"`
	Cache   Cache
	Fetch   Fetch  `envPrefix:"FETCH_"`
	Source  Source `envPrefix:"SOURCE_"`
	Log     Log    `envPrefix:"LOG_"`
}

type Profile struct {
	OS        string   `env:"OS" validate:"oneof=windows osx linux"`
	OSVersion string   `env:"OS_VERSION"`
	Arch      string   `env:"ARCH" validate:"required"`
	Features  []string `env:"FEATURES" envSeparator:","`
}

type Cache struct {
	Dir string `env:"CACHE_DIR" validate:"required"`
}

type Fetch struct {
	Concurrency int `env:"CONCURRENCY" validate:"min=1,max=256"`
	// RateLimit is in requests per second, zero disables pacing.
	RateLimit float64 `env:"RATE_LIMIT" validate:"gte=0"`
	RateBurst int     `env:"RATE_BURST" validate:"min=0"`

	RetryAttempts   int           `env:"RETRY_ATTEMPTS" validate:"min=1,max=32"`
	RetryInitial    time.Duration `env:"RETRY_INITIAL"`
	RetryMax        time.Duration `env:"RETRY_MAX"`
	RetryMultiplier float64       `env:"RETRY_MULTIPLIER" validate:"gte=1"`
}

type Source struct {
	IndexURL     string `env:"INDEX_URL" validate:"required,url"`
	ResourcesURL string `env:"RESOURCES_URL" validate:"required,url"`
	Versions     string `env:"VERSIONS"`
}

type Log struct {
	Level  string `env:"LEVEL" validate:"oneof=trace debug info warn error"`
	Format string `env:"FORMAT" validate:"oneof=json text"`
}

// Default returns the built-in settings for the running host.
func Default() *Config {
	host := rules.Host()
	cfg := &Config{
		Profile: Profile{
			OS:   host.OS,
			Arch: host.Arch,
		},
		Fetch: Fetch{
			Concurrency:     fetcher.DefaultConcurrency,
			RetryAttempts:   fetcher.DefaultRetry.Attempts,
			RetryInitial:    fetcher.DefaultRetry.Initial,
			RetryMax:        fetcher.DefaultRetry.Max,
			RetryMultiplier: fetcher.DefaultRetry.Multiplier,
		},
		Source: Source{
			IndexURL:     source.DefaultIndexURL,
			ResourcesURL: graph.DefaultResourcesURL,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
	if dir, err := os.UserCacheDir(); err == nil {
		cfg.Cache.Dir = filepath.Join(dir, "mcfetch")
	}
	return cfg
}

// Loader reads configuration. The zero value uses the process environment
// and .env in the working directory.
type Loader struct {
	// Parser collects the parsed files for diagnostics output.
	Parser *hclparse.Parser
	// Environ replaces the process environment when set.
	Environ map[string]string
	// DotEnv is the path of the dotenv file.
	DotEnv string
}

// Load returns the layered configuration. A missing file at path is only
// an error when required is set. HCL problems are returned as diagnostics
// with a nil error so the caller can render them.
func (l *Loader) Load(path string, required bool) (*Config, hcl.Diagnostics, error) {
	cfg := Default()

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			spec, diags := l.decode(path)
			if diags.HasErrors() {
				return nil, diags, nil
			}
			if err := cfg.ApplyFile(spec); err != nil {
				return nil, diags, fmt.Errorf("config %q: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, nil, err
		}
	}

	environ, err := l.environ()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(environ); err != nil {
		return nil, nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil, nil
}

func (l *Loader) decode(path string) (*hclspec.Config, hcl.Diagnostics) {
	if l.Parser == nil {
		l.Parser = hclparse.NewParser()
	}
	var spec hclspec.Config
	file, diags := l.Parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, diags
	}
	diags = append(diags, gohcl.DecodeBody(file.Body, nil, &spec)...)
	return &spec, diags
}

// environ merges the dotenv file under the environment. Variables already
// set are never overridden.
func (l *Loader) environ() (map[string]string, error) {
	m := make(map[string]string)
	if l.Environ != nil {
		for k, v := range l.Environ {
			m[k] = v
		}
	} else {
		for _, kv := range os.Environ() {
			k, v, _ := strings.Cut(kv, "=")
			m[k] = v
		}
	}
	name := l.DotEnv
	if name == "" {
		name = DefaultDotEnv
	}
	dot, err := godotenv.Read(name)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return m, nil
	case err != nil:
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	for k, v := range dot {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return m, nil
}

// ApplyFile overlays the values set in spec.
func (cfg *Config) ApplyFile(spec *hclspec.Config) error {
	if p := spec.Profile; p != nil {
		setString(&cfg.Profile.OS, p.OS)
		setString(&cfg.Profile.OSVersion, p.OSVersion)
		setString(&cfg.Profile.Arch, p.Arch)
		if p.Features != nil {
			cfg.Profile.Features = p.Features
		}
	}
	if c := spec.Cache; c != nil {
		setString(&cfg.Cache.Dir, c.Dir)
	}
	if f := spec.Fetch; f != nil {
		setInt(&cfg.Fetch.Concurrency, f.Concurrency)
		setInt(&cfg.Fetch.RateBurst, f.RateBurst)
		if f.RateLimit != nil {
			cfg.Fetch.RateLimit = *f.RateLimit
		}
		if r := f.Retry; r != nil {
			setInt(&cfg.Fetch.RetryAttempts, r.Attempts)
			if r.Multiplier != nil {
				cfg.Fetch.RetryMultiplier = *r.Multiplier
			}
			if err := setDuration(&cfg.Fetch.RetryInitial, r.Initial); err != nil {
				return fmt.Errorf("retry initial: %w", err)
			}
			if err := setDuration(&cfg.Fetch.RetryMax, r.Max); err != nil {
				return fmt.Errorf("retry max: %w", err)
			}
		}
	}
	if s := spec.Source; s != nil {
		setString(&cfg.Source.IndexURL, s.IndexURL)
		setString(&cfg.Source.ResourcesURL, s.ResourcesURL)
		setString(&cfg.Source.Versions, s.Versions)
	}
	if l := spec.Log; l != nil {
		setString(&cfg.Log.Level, l.Level)
		setString(&cfg.Log.Format, l.Format)
	}
	return nil
}

// ApplyEnv overlays MCFETCH_* variables from environ.
func (cfg *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{
		Environment: environ,
		Prefix:      EnvPrefix,
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Validate validates the configuration using struct tags
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Fetch.RetryInitial < time.Millisecond {
		return fmt.Errorf("retry initial interval must be at least 1ms")
	}
	if cfg.Fetch.RetryMax < cfg.Fetch.RetryInitial {
		return fmt.Errorf("retry max interval must not be below the initial interval")
	}
	if cfg.Fetch.RateLimit > 0 && cfg.Fetch.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when a rate limit is set")
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var messages []string
	for _, e := range verrs {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "min", "gte":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "url":
			messages = append(messages, fmt.Sprintf("%s must be a URL", field))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, e.Tag()))
		}
	}
	return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
}

// RulesProfile returns the profile rules are evaluated against.
func (cfg *Config) RulesProfile() rules.Profile {
	p := rules.Profile{
		OS:        cfg.Profile.OS,
		OSVersion: cfg.Profile.OSVersion,
		Arch:      cfg.Profile.Arch,
		Features:  make(map[string]bool, len(cfg.Profile.Features)),
	}
	for _, name := range cfg.Profile.Features {
		if name = strings.TrimSpace(name); name != "" {
			p.Features[name] = true
		}
	}
	return p
}

func (cfg *Config) Retry() fetcher.Retry {
	return fetcher.Retry{
		Attempts:   cfg.Fetch.RetryAttempts,
		Initial:    cfg.Fetch.RetryInitial,
		Max:        cfg.Fetch.RetryMax,
		Multiplier: cfg.Fetch.RetryMultiplier,
	}
}

// Limiter returns nil when no rate limit is configured.
func (cfg *Config) Limiter() *rate.Limiter {
	if cfg.Fetch.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.Fetch.RateLimit), cfg.Fetch.RateBurst)
}

func (cfg *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
