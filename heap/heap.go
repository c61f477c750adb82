// Package heap implements the managed heap that mksnapshot bootstraps and
// captures: objects partitioned into the snapshot regions, a mark-sweep
// collector, lazily materialized native resources, a global evaluation
// scope, and the startup and partial serializers that walk the graph.
package heap

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/chazu/mksnapshot/snapshot"
)

//go:embed natives/*.expr
var nativesFS embed.FS

// native is a built-in resource compiled into a code object on first use.
type native struct {
	name   string
	source string
}

type space struct {
	objects []*Object
	used    int
}

// Heap owns every object of one environment. It is not safe for
// concurrent use.
type Heap struct {
	spaces [snapshot.NumRegions]space

	rootList  []*Object
	rootIndex map[*Object]int
	kindMaps  [numKinds]*Object

	recordMaps map[string]*Object
	symbols    *SymbolTable

	natives  []native
	builtins *Object

	handles []*Handle
	gcCount int
}

// New bootstraps a heap with the embedded natives.
func New() (*Heap, error) {
	return newWithNatives(nativesFS)
}

func newWithNatives(fsys fs.FS) (*Heap, error) {
	natives, err := loadNatives(fsys)
	if err != nil {
		return nil, err
	}
	h := newShell()
	h.natives = natives
	h.bootstrap()
	return h, nil
}

// newShell returns a heap with no objects, used by bootstrap and by the
// deserializer.
func newShell() *Heap {
	return &Heap{
		rootIndex:  make(map[*Object]int),
		recordMaps: make(map[string]*Object),
		symbols:    newSymbolTable(),
	}
}

func loadNatives(fsys fs.FS) ([]native, error) {
	files, err := fs.Glob(fsys, "natives/*.expr")
	if err != nil {
		return nil, fmt.Errorf("heap: list natives: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("heap: no natives found")
	}
	sort.Strings(files)

	natives := make([]native, 0, len(files))
	for _, file := range files {
		src, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("heap: read native %s: %w", file, err)
		}
		if strings.TrimSpace(string(src)) == "" {
			return nil, fmt.Errorf("heap: native %s is empty", file)
		}
		natives = append(natives, native{
			name:   strings.TrimSuffix(path.Base(file), ".expr"),
			source: string(src),
		})
	}
	return natives, nil
}

func (h *Heap) bootstrap() {
	meta := h.allocate(KindMap, snapshot.Map, 0, marshalDescriptor(Descriptor{Kind: KindMap, Name: "Map"}))
	meta.shape = meta
	h.kindMaps[KindMap] = meta
	h.addRoot(meta)

	for k := Kind(0); k < numKinds; k++ {
		if k == KindMap {
			continue
		}
		m := h.allocate(KindMap, snapshot.Map, 0, marshalDescriptor(Descriptor{Kind: k, Name: k.String()}))
		h.kindMaps[k] = m
		h.addRoot(m)
	}

	for _, name := range []string{"undefined", "null", "true", "false"} {
		h.addRoot(h.allocate(KindOddball, snapshot.OldPointer, 0, []byte(name)))
	}
	h.addRoot(h.allocate(KindString, snapshot.OldData, 0, nil))
	h.addRoot(h.allocate(KindArray, snapshot.OldPointer, 0, nil))

	h.builtins = h.allocate(KindBuiltins, snapshot.OldPointer, len(h.natives), nil)
	for i := range h.natives {
		h.builtins.fields[i] = h.allocate(KindCell, snapshot.Cell, 1, nil)
	}
	h.addRoot(h.builtins)
}

func (h *Heap) addRoot(o *Object) {
	h.rootIndex[o] = len(h.rootList)
	h.rootList = append(h.rootList, o)
}

// allocate creates an object in space r, shaped by its kind's map.
func (h *Heap) allocate(kind Kind, r snapshot.Region, nfields int, data []byte) *Object {
	o := &Object{
		kind:  kind,
		space: r,
		shape: h.kindMaps[kind],
		data:  data,
	}
	if nfields > 0 {
		o.fields = make([]Value, nfields)
	}
	h.track(o)
	return o
}

func (h *Heap) track(o *Object) {
	sp := &h.spaces[o.space]
	sp.objects = append(sp.objects, o)
	sp.used += o.Size()
}

// The root list holds one map per kind, the four oddballs, the empty
// string and array, and the builtins object.
const (
	numRootMaps = int(numKinds)
	rootListLen = numRootMaps + 7
)

func (h *Heap) oddball(i int) *Object { return h.rootList[numRootMaps+i] }

// Undefined returns the undefined oddball.
func (h *Heap) Undefined() *Object { return h.oddball(0) }

// Null returns the null oddball.
func (h *Heap) Null() *Object { return h.oddball(1) }

// True returns the true oddball.
func (h *Heap) True() *Object { return h.oddball(2) }

// False returns the false oddball.
func (h *Heap) False() *Object { return h.oddball(3) }

// Bool returns the oddball for b.
func (h *Heap) Bool(b bool) *Object {
	if b {
		return h.True()
	}
	return h.False()
}

// EmptyString returns the canonical empty string.
func (h *Heap) EmptyString() *Object { return h.oddball(4) }

// EmptyArray returns the canonical empty array.
func (h *Heap) EmptyArray() *Object { return h.oddball(5) }

// Builtins returns the object holding one cell per native.
func (h *Heap) Builtins() *Object { return h.builtins }

// RootList returns the immortal roots in serialization order.
func (h *Heap) RootList() []*Object {
	return append([]*Object(nil), h.rootList...)
}

// RootIndex returns the position of o in the root list.
func (h *Heap) RootIndex(o *Object) (int, bool) {
	i, ok := h.rootIndex[o]
	return i, ok
}

// KindMap returns the map shared by all objects of kind k. Records get
// their maps from RecordMap instead.
func (h *Heap) KindMap(k Kind) *Object { return h.kindMaps[k] }

// SpaceUsed returns the bytes allocated in region r.
func (h *Heap) SpaceUsed(r snapshot.Region) int { return h.spaces[r].used }

// ObjectCount returns the number of live objects in region r.
func (h *Heap) ObjectCount(r snapshot.Region) int { return len(h.spaces[r].objects) }

// Handle keeps an object alive across collections until Reset.
type Handle struct {
	h   *Heap
	obj *Object
}

// Persist creates a handle rooting o.
func (h *Heap) Persist(o *Object) *Handle {
	hd := &Handle{h: h, obj: o}
	h.handles = append(h.handles, hd)
	return hd
}

// Get returns the held object, or nil after Reset.
func (hd *Handle) Get() *Object { return hd.obj }

// IsEmpty reports whether the handle no longer holds an object.
func (hd *Handle) IsEmpty() bool { return hd.obj == nil }

// Reset releases the object. The handle stops being a root.
func (hd *Handle) Reset() {
	if hd.obj == nil {
		return
	}
	hd.obj = nil
	for i, other := range hd.h.handles {
		if other == hd {
			hd.h.handles = append(hd.h.handles[:i], hd.h.handles[i+1:]...)
			break
		}
	}
}

// Handles returns the live persistent handles in creation order.
func (h *Heap) Handles() []*Handle {
	return append([]*Handle(nil), h.handles...)
}

// NativesCount returns the number of built-in resources.
func (h *Heap) NativesCount() int { return len(h.natives) }

// NativeName returns the name of native i.
func (h *Heap) NativeName(i int) string { return h.natives[i].name }

// NativesSourceLookup returns the code object for native i, compiling and
// caching it in its builtins cell on first use.
func (h *Heap) NativesSourceLookup(i int) *Object {
	cell := h.builtins.fields[i].(*Object)
	if code, ok := cell.fields[0].(*Object); ok {
		return code
	}
	n := h.natives[i]
	code := h.allocate(KindCode, snapshot.Code, 1, []byte(n.source))
	code.fields[0] = h.Intern(n.name)
	cell.fields[0] = code
	return code
}

// IsNativeMaterialized reports whether native i has been compiled.
func (h *Heap) IsNativeMaterialized(i int) bool {
	cell := h.builtins.fields[i].(*Object)
	return cell.fields[0] != nil
}

// MaterializeNatives compiles every native that has not been used yet.
func (h *Heap) MaterializeNatives() {
	for i := range h.natives {
		h.NativesSourceLookup(i)
	}
}

// NewString allocates a young string.
func (h *Heap) NewString(s string) *Object {
	if s == "" {
		return h.EmptyString()
	}
	return h.allocate(KindString, snapshot.Young, 0, []byte(s))
}

// NewNumber allocates a young heap number.
func (h *Heap) NewNumber(f float64) *Object {
	return h.allocate(KindNumber, snapshot.Young, 0, encodeNumber(f))
}

// NewInteger returns a Smi when n fits, a heap number otherwise.
func (h *Heap) NewInteger(n int64) Value {
	if IsSmiRange(n) {
		return Smi(n)
	}
	return h.NewNumber(float64(n))
}

// NewArray allocates a young array holding vals.
func (h *Heap) NewArray(vals []Value) *Object {
	if len(vals) == 0 {
		return h.EmptyArray()
	}
	a := h.allocate(KindArray, snapshot.Young, len(vals), nil)
	copy(a.fields, vals)
	return a
}

// NewRecord allocates a young record with the given properties.
func (h *Heap) NewRecord(keys []string, vals []Value) (*Object, error) {
	if len(keys) != len(vals) {
		return nil, fmt.Errorf("heap: record has %d keys and %d values", len(keys), len(vals))
	}
	r := h.allocate(KindRecord, snapshot.Young, len(vals), nil)
	r.shape = h.RecordMap(keys)
	copy(r.fields, vals)
	return r, nil
}

// RecordMap returns the map for records with exactly these keys, in
// order. Maps are shared between records of the same shape.
func (h *Heap) RecordMap(keys []string) *Object {
	id := stringsKey(keys)
	if m, ok := h.recordMaps[id]; ok {
		return m
	}
	m := h.allocate(KindMap, snapshot.Map, 0, marshalDescriptor(Descriptor{
		Kind: KindRecord,
		Name: "Record",
		Keys: append([]string(nil), keys...),
	}))
	h.recordMaps[id] = m
	return m
}

func stringsKey(keys []string) string { return strings.Join(keys, "\x00") }

// RecordKeys returns a record's property names.
func (h *Heap) RecordKeys(r *Object) ([]string, error) {
	if r.kind != KindRecord {
		return nil, fmt.Errorf("heap: %v is not a record", r.kind)
	}
	d, err := r.shape.Descriptor()
	if err != nil {
		return nil, err
	}
	return d.Keys, nil
}
