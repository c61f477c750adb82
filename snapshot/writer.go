package snapshot

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
	"github.com/zeebo/xxh3"

	"github.com/chazu/mksnapshot/compress"
)

// BytesPerLine is the number of table entries emitted per line.
const BytesPerLine = 32

// DefaultPackage is the package clause used when Options.Package is empty.
const DefaultPackage = "snapshot"

// Stream prefixes used for generated identifiers.
const (
	MainPrefix    = ""
	ContextPrefix = "Context"
)

// Options configures a Writer.
type Options struct {
	// Package is the package clause of the generated file.
	Package string

	// Omit suppresses the literal byte values of both tables. Lengths are
	// still declared. Such an artifact must never be loaded as data.
	Omit bool

	// RawFile and RawContextFile receive byte-exact copies of the
	// uncompressed streams. Both or neither must be set.
	RawFile        string
	RawContextFile string

	// Compressor is applied to both streams. Nil selects the identity
	// strategy.
	Compressor compress.Compressor

	Log commonlog.Logger
}

// StreamReport describes one emitted stream.
type StreamReport struct {
	Name       string
	RawSize    int
	Size       int
	Compressed bool
	Digest     uint64
	Sizes      Sizes
}

// Report summarizes a WriteSnapshot call.
type Report struct {
	Algorithm compress.Algorithm
	Omitted   bool
	Main      StreamReport
	Context   StreamReport
}

// Writer emits the snapshot artifact: a Go source file declaring both
// stream tables, their lengths and the per-region sizes, plus optional
// raw side files.
//
// All files are created at construction and only appear at their paths
// after Commit. Close must always be called; it discards anything that
// was not committed.
type Writer struct {
	opts Options
	log  commonlog.Logger

	out            *pendingFile
	rawFile        *pendingFile
	rawContextFile *pendingFile

	err     error // first write failure; blocks Commit
	written bool
	ok      bool
}

// NewWriter opens the artifact at path and, when configured, both raw
// side files.
func NewWriter(path string, opts Options) (*Writer, error) {
	if (opts.RawFile == "") != (opts.RawContextFile == "") {
		return nil, errors.New("snapshot: raw file and raw context file must be set together")
	}
	if opts.Package == "" {
		opts.Package = DefaultPackage
	}
	if opts.Compressor == nil {
		opts.Compressor = compress.NewIdentity()
	}
	w := &Writer{opts: opts, log: opts.Log}
	if w.log == nil {
		w.log = commonlog.GetLogger("mksnapshot.writer")
	}

	var err error
	if w.out, err = createPending(path); err != nil {
		return nil, err
	}
	if opts.RawFile != "" {
		if w.rawFile, err = createPending(opts.RawFile); err != nil {
			w.Close()
			return nil, err
		}
		if w.rawContextFile, err = createPending(opts.RawContextFile); err != nil {
			w.Close()
			return nil, err
		}
	}
	return w, nil
}

// WriteSnapshot encodes both streams. It may be called once.
//
// Both streams are compressed before anything is written, so a
// compression failure leaves every output untouched.
func (w *Writer) WriteSnapshot(main []byte, mainSizes Sizes, context []byte, contextSizes Sizes) (*Report, error) {
	if w.written {
		return nil, errors.New("snapshot: WriteSnapshot called twice")
	}
	w.written = true
	rep, err := w.writeSnapshot(main, mainSizes, context, contextSizes)
	if err != nil {
		if w.err == nil {
			w.err = err
		}
		return nil, err
	}
	w.ok = true
	return rep, nil
}

func (w *Writer) writeSnapshot(main []byte, mainSizes Sizes, context []byte, contextSizes Sizes) (*Report, error) {
	mainPayload, err := w.compress("main", main)
	if err != nil {
		return nil, err
	}
	contextPayload, err := w.compress("context", context)
	if err != nil {
		return nil, err
	}

	rep := &Report{Algorithm: w.opts.Compressor.Algorithm(), Omitted: w.opts.Omit}

	w.writeFilePrefix()
	rep.Main, err = w.writeData(MainPrefix, main, mainPayload, w.rawFile)
	if err != nil {
		return nil, err
	}
	rep.Context, err = w.writeData(ContextPrefix, context, contextPayload, w.rawContextFile)
	if err != nil {
		return nil, err
	}
	w.writeMeta(ContextPrefix, contextSizes)
	w.writeMeta(MainPrefix, mainSizes)
	w.writeFileSuffix()
	if w.err != nil {
		return nil, &IOError{Op: "write", Path: w.out.path, Err: w.err}
	}

	rep.Main.Name, rep.Main.Sizes = "main", mainSizes
	rep.Context.Name, rep.Context.Sizes = "context", contextSizes
	return rep, nil
}

// Commit moves every output into place. Every file is flushed and
// synced before any is renamed, and raw side files go before the
// artifact. If a rename fails the files already moved are removed again.
// Commit refuses to run unless WriteSnapshot succeeded.
func (w *Writer) Commit() error {
	if w.err != nil {
		return fmt.Errorf("snapshot: not committing after failed write: %w", w.err)
	}
	if !w.ok {
		return errors.New("snapshot: Commit before WriteSnapshot")
	}
	var outputs []*pendingFile
	for _, p := range []*pendingFile{w.rawFile, w.rawContextFile, w.out} {
		if p != nil {
			outputs = append(outputs, p)
		}
	}
	for _, p := range outputs {
		if err := p.finish(); err != nil {
			w.err = err
			return err
		}
	}
	for i, p := range outputs {
		if err := p.commit(); err != nil {
			for _, prev := range outputs[:i] {
				prev.retract()
			}
			w.err = err
			return err
		}
	}
	w.log.Infof("wrote %s", w.out.path)
	return nil
}

// Close releases all file handles. Outputs that were not committed are
// removed. It is safe to call more than once.
func (w *Writer) Close() {
	for _, p := range []*pendingFile{w.out, w.rawFile, w.rawContextFile} {
		if p != nil {
			p.discard()
		}
	}
}

// compress selects the buffer to embed for a stream. The identity
// strategy hands back the source itself; any other strategy's output is
// copied out because the strategy owns it.
func (w *Writer) compress(stream string, source []byte) ([]byte, error) {
	c := w.opts.Compressor
	if !c.Compress(source) {
		cerr := &CompressionError{Stream: stream, Algorithm: c.Algorithm(), Code: compress.CodeInternal}
		if r, ok := c.(interface{ LastError() (int, error) }); ok {
			cerr.Code, cerr.Err = r.LastError()
		}
		return nil, cerr
	}
	if c.Algorithm() == compress.AlgorithmNone {
		return source, nil
	}
	out := c.Output()
	return append(make([]byte, 0, len(out)), out...), nil
}

func (w *Writer) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.out.writer(), format, args...)
}

func (w *Writer) writeFilePrefix() {
	w.printf("// Code generated by mksnapshot. DO NOT EDIT.\n\n")
	w.printf("package %s\n\n", w.opts.Package)
}

func (w *Writer) writeFileSuffix() {
	w.printf("// End of generated snapshot.\n")
}

func (w *Writer) writeData(prefix string, source, payload []byte, raw *pendingFile) (StreamReport, error) {
	if raw != nil {
		if err := raw.writeAll(source); err != nil {
			return StreamReport{}, err
		}
	}

	compressed := w.opts.Compressor.Algorithm() != compress.AlgorithmNone

	if w.opts.Omit || len(payload) == 0 {
		w.printf("var %sData = []byte{}\n\n", prefix)
	} else {
		w.printf("var %sData = []byte{\n", prefix)
		w.writeSnapshotData(payload)
		w.printf("}\n\n")
	}
	w.printf("const %sSize = %d\n\n", prefix, len(payload))

	if !compressed && !w.opts.Omit {
		w.printf("var %sRawData = %sData\n\n", prefix, prefix)
		w.printf("const %sRawSize = %sSize\n\n", prefix, prefix)
	} else {
		w.printf("var %sRawData []byte\n\n", prefix)
		w.printf("const %sRawSize = %d\n\n", prefix, len(source))
	}

	rep := StreamReport{
		RawSize:    len(source),
		Size:       len(payload),
		Compressed: compressed,
		Digest:     xxh3.Hash(source),
	}
	w.log.Debugf("stream %q: %s raw, %s embedded, xxh3 %016x",
		prefix, humanize.Bytes(uint64(rep.RawSize)), humanize.Bytes(uint64(rep.Size)), rep.Digest)
	return rep, nil
}

// writeSnapshotData emits the table body, BytesPerLine values per line.
func (w *Writer) writeSnapshotData(data []byte) {
	line := make([]byte, 0, BytesPerLine*5+2)
	for start := 0; start < len(data); start += BytesPerLine {
		end := min(start+BytesPerLine, len(data))
		line = append(line[:0], '\t')
		for i := start; i < end; i++ {
			if i > start {
				line = append(line, ' ')
			}
			line = strconv.AppendUint(line, uint64(data[i]), 10)
			line = append(line, ',')
		}
		line = append(line, '\n')
		if w.err != nil {
			return
		}
		_, w.err = w.out.writer().Write(line)
	}
}

func (w *Writer) writeMeta(prefix string, sizes Sizes) {
	for _, r := range Regions() {
		w.printf("const %s%sSpaceUsed = %d\n", prefix, r, sizes[r])
	}
	w.printf("\n")
}
