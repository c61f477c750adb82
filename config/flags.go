package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
)

// countFlag is a boolean flag that counts its occurrences.
type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }

func (c *countFlag) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if b {
		*c++
	}
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

// Parse builds the configuration for a command line. Values from -config
// are loaded first; flags given explicitly override them. The result is
// validated. -help returns flag.ErrHelp after printing the usage to
// stderr; every other problem is a *UsageError.
func Parse(name string, args []string, stderr io.Writer) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	flags := Default()
	var (
		configPath string
		verbosity  countFlag
		help       bool
	)
	fs.BoolVar(&flags.Omit, "omit", false, "omit the literal byte values of the snapshot tables")
	fs.StringVar(&flags.RawFile, "raw-file", "", "write the uncompressed main stream to `file`")
	fs.StringVar(&flags.RawContextFile, "raw-context-file", "", "write the uncompressed context stream to `file`")
	fs.StringVar(&flags.ExtraCode, "extra-code", "", "run the script in `file` before capturing the context")
	fs.StringVar(&flags.Package, "package", DefaultPackage, "package `name` of the generated file")
	fs.StringVar(&configPath, "config", "", "load settings from TOML `file`")
	fs.Var(&verbosity, "v", "increase log verbosity (repeatable)")
	fs.BoolVar(&help, "help", false, "print this message")

	usage := func() {
		fmt.Fprintf(stderr, "Usage: %s [flag] ... outfile\n", name)
		fs.SetOutput(stderr)
		fs.PrintDefaults()
		fs.SetOutput(io.Discard)
	}

	if err := fs.Parse(args); err != nil {
		usage()
		if errors.Is(err, flag.ErrHelp) {
			return nil, flag.ErrHelp
		}
		return nil, &UsageError{Msg: "invalid flags", Err: err}
	}
	if help {
		usage()
		return nil, flag.ErrHelp
	}

	c := Default()
	if configPath != "" {
		loaded, err := Load(configPath)
		if err != nil {
			return nil, err
		}
		c = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "omit":
			c.Omit = flags.Omit
		case "raw-file":
			c.RawFile = flags.RawFile
		case "raw-context-file":
			c.RawContextFile = flags.RawContextFile
		case "extra-code":
			c.ExtraCode = flags.ExtraCode
		case "package":
			c.Package = flags.Package
		case "v":
			c.Verbosity = int(verbosity)
		}
	})

	switch fs.NArg() {
	case 0:
		if c.Output == "" {
			usage()
			return nil, &UsageError{Msg: "missing outfile", Err: ErrNoOutput}
		}
	case 1:
		c.Output = fs.Arg(0)
	default:
		usage()
		return nil, usagef("expected exactly one outfile, got %d arguments", fs.NArg())
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
