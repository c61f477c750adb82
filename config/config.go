// Package config handles mksnapshot configuration: an optional TOML file
// merged with command-line flags and checked against an embedded schema.
package config

import (
	"errors"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPackage is the package clause of the generated file.
const DefaultPackage = "snapshot"

// Config is one mksnapshot invocation.
type Config struct {
	Output         string `toml:"output" json:"output"`
	Package        string `toml:"package" json:"package"`
	Omit           bool   `toml:"omit" json:"omit"`
	RawFile        string `toml:"raw-file" json:"raw-file,omitempty"`
	RawContextFile string `toml:"raw-context-file" json:"raw-context-file,omitempty"`
	ExtraCode      string `toml:"extra-code" json:"extra-code,omitempty"`
	Verbosity      int    `toml:"verbosity" json:"verbosity"`

	// Source is the configuration file the values came from, if any.
	Source string `toml:"-" json:"-"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{Package: DefaultPackage}
}

// UsageError reports an invalid invocation.
type UsageError struct {
	Msg string
	Err error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *UsageError) Unwrap() error { return e.Err }

func usagef(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// Load parses a TOML configuration file. Relative paths in the file are
// resolved against the file's directory. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &UsageError{Msg: "cannot read config " + path, Err: err}
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, &UsageError{Msg: "parse error in " + path, Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, usagef("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	c.Source = path
	dir := filepath.Dir(path)
	for _, p := range []*string{&c.Output, &c.RawFile, &c.RawContextFile, &c.ExtraCode} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return c, nil
}

// Validate checks the configuration against the schema and the rules the
// schema cannot express.
func (c *Config) Validate() error {
	if err := validateSchema(c); err != nil {
		return &UsageError{Msg: "invalid configuration", Err: err}
	}
	if (c.RawFile == "") != (c.RawContextFile == "") {
		return usagef("raw-file and raw-context-file must be given together")
	}
	if !token.IsIdentifier(c.Package) {
		return usagef("package %q is not a Go identifier", c.Package)
	}
	if c.Package == "_" {
		return usagef("package name must not be the blank identifier")
	}
	if c.RawFile != "" && (c.RawFile == c.RawContextFile || c.RawFile == c.Output || c.RawContextFile == c.Output) {
		return usagef("output, raw-file and raw-context-file must be distinct")
	}
	return nil
}

// ErrNoOutput is returned when no output path is configured.
var ErrNoOutput = errors.New("no output file given")
