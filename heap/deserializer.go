package heap

import (
	"fmt"

	"github.com/chazu/mksnapshot/snapshot"
)

// deserializer rebuilds objects from one stream. shared resolves the
// references that point outside the stream's own numbering.
type deserializer struct {
	h       *Heap
	r       *reader
	objects []*Object
	alloc   snapshot.Sizes

	rootRef  func(i int) (*Object, error)
	cacheRef func(i int) (*Object, error)
}

func (d *deserializer) readValue() (Value, error) {
	b, err := d.r.readByte()
	if err != nil {
		return nil, err
	}
	switch b & opMask {
	case opNewObject:
		return d.readObject(snapshot.Region(b & regionMask))
	case opBackref:
		i, err := d.r.readVarInt()
		if err != nil {
			return nil, err
		}
		if i >= uint64(len(d.objects)) {
			return nil, d.r.errorf("backref %d out of range", i)
		}
		return d.objects[i], nil
	case opRootRef:
		return d.shared(d.rootRef, "root ref")
	case opCacheRef:
		return d.shared(d.cacheRef, "cache ref")
	case opSmi:
		u, err := d.r.readVarInt()
		if err != nil {
			return nil, err
		}
		n := unzigzag(u)
		if !IsSmiRange(n) {
			return nil, d.r.errorf("smi %d out of range", n)
		}
		return Smi(n), nil
	case opHole:
		return nil, nil
	}
	return nil, d.r.errorf("unknown opcode 0x%02x", b)
}

func (d *deserializer) shared(resolve func(int) (*Object, error), what string) (Value, error) {
	i, err := d.r.readVarInt()
	if err != nil {
		return nil, err
	}
	if resolve == nil {
		return nil, d.r.errorf("%s not allowed in this stream", what)
	}
	o, err := resolve(int(i))
	if err != nil {
		return nil, d.r.errorf("%s %d: %v", what, i, err)
	}
	return o, nil
}

func (d *deserializer) readObject(region snapshot.Region) (*Object, error) {
	if !region.Valid() {
		return nil, d.r.errorf("invalid region %d", region)
	}
	kb, err := d.r.readByte()
	if err != nil {
		return nil, err
	}
	if Kind(kb) >= numKinds {
		return nil, d.r.errorf("invalid kind %d", kb)
	}
	size, err := d.r.readVarInt()
	if err != nil {
		return nil, err
	}

	o := &Object{kind: Kind(kb), space: region}
	d.objects = append(d.objects, o)

	shape, err := d.readObjectRef("shape")
	if err != nil {
		return nil, err
	}
	o.shape = shape

	n, err := d.r.readCount()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		o.fields = make([]Value, n)
	}
	for i := range o.fields {
		if o.fields[i], err = d.readValue(); err != nil {
			return nil, err
		}
	}

	ndata, err := d.r.readCount()
	if err != nil {
		return nil, err
	}
	if ndata > 0 {
		if o.data, err = d.r.readBytes(ndata); err != nil {
			return nil, err
		}
	}

	if int(size) != o.Size() {
		return nil, d.r.errorf("%v declares %d bytes, layout needs %d", o.kind, size, o.Size())
	}
	d.alloc[region] += o.Size()
	d.h.track(o)
	return o, nil
}

func (d *deserializer) readObjectRef(what string) (*Object, error) {
	v, err := d.readValue()
	if err != nil {
		return nil, err
	}
	o, ok := v.(*Object)
	if !ok || o == nil {
		return nil, d.r.errorf("%s is not an object", what)
	}
	return o, nil
}

// readObjects reads a varint count followed by that many objects.
func (d *deserializer) readObjects(what string) ([]*Object, error) {
	n, err := d.r.readCount()
	if err != nil {
		return nil, err
	}
	out := make([]*Object, n)
	for i := range out {
		if out[i], err = d.readObjectRef(what); err != nil {
			return nil, err
		}
	}
	return out, d.r.expectSync(what)
}

func (d *deserializer) checkSizes(want snapshot.Sizes) error {
	if !d.r.done() {
		return d.r.errorf("%d trailing bytes", len(d.r.data)-d.r.pos)
	}
	for _, reg := range snapshot.Regions() {
		if d.alloc[reg] != want[reg] {
			return fmt.Errorf("heap: %s stream allocates %d bytes in %v, recorded %d: %w",
				d.r.name, d.alloc[reg], reg, want[reg], ErrCorrupt)
		}
	}
	return nil
}

// Deserialize rebuilds a heap from a main stream and a context stream and
// returns it with the deserialized context. Each stream's allocations must
// match its recorded region sizes exactly.
func Deserialize(main []byte, mainSizes snapshot.Sizes, context []byte, contextSizes snapshot.Sizes) (*Heap, *Object, error) {
	h := newShell()
	startup := &deserializer{h: h, r: &reader{name: "main", data: main}}

	roots, err := startup.readObjects("root list")
	if err != nil {
		return nil, nil, err
	}
	if err := h.adoptRoots(roots); err != nil {
		return nil, nil, err
	}

	handles, err := startup.readObjects("handles")
	if err != nil {
		return nil, nil, err
	}
	for _, o := range handles {
		h.Persist(o)
	}

	// The cache entries were emitted in cache order while the context was
	// serialized; the list ends at the next synchronize marker.
	var cache []*Object
	for {
		b, err := startup.r.peek()
		if err != nil {
			return nil, nil, err
		}
		if b == opSynchronize {
			startup.r.pos++
			break
		}
		o, err := startup.readObjectRef("cache entry")
		if err != nil {
			return nil, nil, err
		}
		cache = append(cache, o)
	}

	syms, err := startup.readObjects("symbol table")
	if err != nil {
		return nil, nil, err
	}
	for _, sym := range syms {
		if sym.kind != KindSymbol {
			return nil, nil, fmt.Errorf("heap: symbol table holds %v: %w", sym.kind, ErrCorrupt)
		}
		h.symbols.add(sym)
	}
	if err := startup.checkSizes(mainSizes); err != nil {
		return nil, nil, err
	}

	partial := &deserializer{
		h: h,
		r: &reader{name: "context", data: context},
		rootRef: func(i int) (*Object, error) {
			if i >= len(h.rootList) {
				return nil, fmt.Errorf("out of range")
			}
			return h.rootList[i], nil
		},
		cacheRef: func(i int) (*Object, error) {
			if i >= len(cache) {
				return nil, fmt.Errorf("out of range")
			}
			return cache[i], nil
		},
	}
	ctx, err := partial.readObjectRef("context")
	if err != nil {
		return nil, nil, err
	}
	if ctx.kind != KindContext {
		return nil, nil, fmt.Errorf("heap: context stream holds %v: %w", ctx.kind, ErrCorrupt)
	}
	if err := partial.r.expectSync("context"); err != nil {
		return nil, nil, err
	}
	if err := partial.checkSizes(contextSizes); err != nil {
		return nil, nil, err
	}

	h.indexRecordMaps()
	return h, ctx, nil
}

// adoptRoots installs a deserialized root list and recovers the kind maps,
// builtins and natives from it.
func (h *Heap) adoptRoots(roots []*Object) error {
	if len(roots) != rootListLen {
		return fmt.Errorf("heap: root list has %d entries, want %d: %w", len(roots), rootListLen, ErrCorrupt)
	}
	for _, o := range roots {
		h.addRoot(o)
	}
	for _, m := range roots[:numRootMaps] {
		desc, err := m.Descriptor()
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrCorrupt)
		}
		if desc.Kind >= numKinds || h.kindMaps[desc.Kind] != nil {
			return fmt.Errorf("heap: duplicate map for %v: %w", desc.Kind, ErrCorrupt)
		}
		h.kindMaps[desc.Kind] = m
	}

	h.builtins = roots[len(roots)-1]
	if h.builtins.kind != KindBuiltins {
		return fmt.Errorf("heap: last root is %v: %w", h.builtins.kind, ErrCorrupt)
	}
	h.natives = make([]native, len(h.builtins.fields))
	for i, f := range h.builtins.fields {
		cell, ok := f.(*Object)
		if !ok || cell.kind != KindCell || len(cell.fields) != 1 {
			return fmt.Errorf("heap: builtins slot %d is not a cell: %w", i, ErrCorrupt)
		}
		code, ok := cell.fields[0].(*Object)
		if !ok || code.kind != KindCode || len(code.fields) != 1 {
			continue
		}
		if name, ok := code.fields[0].(*Object); ok {
			h.natives[i] = native{name: name.StringValue(), source: string(code.data)}
		}
	}
	return nil
}

func (h *Heap) indexRecordMaps() {
	for _, m := range h.spaces[snapshot.Map].objects {
		desc, err := m.Descriptor()
		if err != nil || desc.Kind != KindRecord {
			continue
		}
		h.recordMaps[stringsKey(desc.Keys)] = m
	}
}
