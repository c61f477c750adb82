// Package driver runs one mksnapshot invocation: it bootstraps a heap,
// runs the extra code, captures the startup and context streams, and
// hands them to the snapshot writer.
package driver

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"

	"github.com/chazu/mksnapshot/compress"
	"github.com/chazu/mksnapshot/config"
	"github.com/chazu/mksnapshot/heap"
	"github.com/chazu/mksnapshot/script"
	"github.com/chazu/mksnapshot/snapshot"
)

// EnvironmentInitError reports that the heap could not be bootstrapped.
type EnvironmentInitError struct {
	Err error
}

func (e *EnvironmentInitError) Error() string {
	return "failed to initialize environment: " + e.Err.Error()
}

func (e *EnvironmentInitError) Unwrap() error { return e.Err }

// newHeap is replaced in tests.
var newHeap = heap.New

// Run produces the artifact described by cfg. Nothing appears at any
// output path unless the whole run succeeds.
func Run(cfg *config.Config, log commonlog.Logger) error {
	_, err := run(cfg, log, compress.Default())
	return err
}

// captured is what run serialized.
type captured struct {
	main, context           []byte
	mainSizes, contextSizes snapshot.Sizes
	report                  *snapshot.Report
}

func run(cfg *config.Config, log commonlog.Logger, c compress.Compressor) (*captured, error) {
	if log == nil {
		log = commonlog.GetLogger("mksnapshot.driver")
	}

	h, err := newHeap()
	if err != nil {
		return nil, &EnvironmentInitError{Err: err}
	}
	scope := h.NewContext()
	log.Infof("environment ready: %d natives", h.NativesCount())

	if cfg.ExtraCode != "" {
		if err := runExtraCode(cfg.ExtraCode, scope, log); err != nil {
			return nil, err
		}
	}

	h.MaterializeNatives()
	stats := h.CollectAllGarbage()
	log.Debugf("gc: %d live, %d swept, %d promoted, %d symbols cleared, %s -> %s in %s",
		stats.Live, stats.Swept, stats.Promoted, stats.SymbolsCleared,
		humanize.Bytes(uint64(stats.Before.Total())), humanize.Bytes(uint64(stats.After.Total())), stats.Duration)

	ctx := scope.Handle().Get()
	scope.Handle().Reset()

	mainSink := snapshot.NewListSink(stats.After.Total())
	ser := heap.NewStartupSerializer(h, mainSink)
	ser.SerializeStrongReferences()

	contextSink := snapshot.NewListSink(0)
	cser := heap.NewPartialSerializer(h, ser, contextSink)
	cser.Serialize(ctx)
	contextSizes := snapshot.RecordSizes(cser)

	ser.SerializeWeakReferences()
	mainSizes := snapshot.RecordSizes(ser)

	log.Infof("serialized %d startup objects (%d shared with the context) and %d context objects",
		ser.ObjectCount(), ser.CacheLen(), cser.ObjectCount())
	for _, r := range snapshot.Regions() {
		log.Debugf("%-12s main %8s  context %8s", r,
			humanize.Bytes(uint64(mainSizes[r])), humanize.Bytes(uint64(contextSizes[r])))
	}

	w, err := snapshot.NewWriter(cfg.Output, snapshot.Options{
		Package:        cfg.Package,
		Omit:           cfg.Omit,
		RawFile:        cfg.RawFile,
		RawContextFile: cfg.RawContextFile,
		Compressor:     c,
	})
	if err != nil {
		return nil, err
	}
	defer w.Close()

	rep, err := w.WriteSnapshot(mainSink.Bytes(), mainSizes, contextSink.Bytes(), contextSizes)
	if err != nil {
		return nil, err
	}
	if err := w.Commit(); err != nil {
		return nil, err
	}
	log.Infof("snapshot: main %s, context %s (%v)",
		humanize.Bytes(uint64(rep.Main.Size)), humanize.Bytes(uint64(rep.Context.Size)), rep.Algorithm)

	return &captured{
		main:         mainSink.Bytes(),
		context:      contextSink.Bytes(),
		mainSizes:    mainSizes,
		contextSizes: contextSizes,
		report:       rep,
	}, nil
}

func runExtraCode(path string, scope *heap.Scope, log commonlog.Logger) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return &snapshot.IOError{Op: "read", Path: path, Err: err}
	}
	p, err := script.Compile(path, string(src))
	if err != nil {
		return err
	}
	last, err := p.Run(scope)
	if err != nil {
		return err
	}
	log.Infof("ran %s: %d statements, %d globals", path, p.Len(), len(scope.Names()))
	log.Debugf("last value: %v", last)
	return nil
}
