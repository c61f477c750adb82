// mksnapshot bootstraps a heap, optionally runs extra code in its global
// context, and writes the startup and context snapshots as a Go source
// file that embeds both streams.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	"github.com/tliron/commonlog/simple"
	"github.com/tliron/kutil/util"

	"github.com/chazu/mksnapshot/config"
	"github.com/chazu/mksnapshot/driver"
	"github.com/chazu/mksnapshot/script"
)

func main() {
	util.Exit(run(os.Args[1:], os.Stderr))
}

// run returns the process exit code. Every output handle is closed by
// the time it returns.
func run(args []string, stderr io.Writer) int {
	cfg, err := config.Parse("mksnapshot", args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "mksnapshot: %v\n", err)
		}
		return 1
	}

	configureLogging(cfg.Verbosity, stderr)
	if err := driver.Run(cfg, commonlog.GetLogger("mksnapshot.driver")); err != nil {
		var se *script.Error
		if errors.As(err, &se) {
			fmt.Fprintln(stderr, se.Format(isTerminal(stderr)))
		} else {
			fmt.Fprintf(stderr, "mksnapshot: %v\n", err)
		}
		return 1
	}
	return 0
}

// configureLogging sends log lines straight to stderr, unbuffered, so
// nothing is lost when the process exits.
func configureLogging(verbosity int, stderr io.Writer) {
	backend := simple.NewBackend()
	backend.Buffered = false
	backend.Configure(verbosity, nil)
	backend.Writer = util.NewSyncedWriter(stderr)
	commonlog.SetBackend(backend)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
