package heap

import (
	"github.com/chazu/mksnapshot/snapshot"
)

// serializer holds what both passes share: the output sink, the object
// numbering used for back-references, and per-region allocation cursors.
type serializer struct {
	h     *Heap
	sink  snapshot.Sink
	index map[*Object]int
	alloc snapshot.Sizes

	// reference emits a short reference to o and reports whether it did.
	reference func(o *Object) bool
}

func newSerializer(h *Heap, sink snapshot.Sink) serializer {
	return serializer{h: h, sink: sink, index: make(map[*Object]int)}
}

// CurrentAllocationAddress returns the bytes the pass has allocated in
// region r so far.
func (s *serializer) CurrentAllocationAddress(r snapshot.Region) int {
	return s.alloc[r]
}

// ObjectCount returns the number of objects the pass has emitted.
func (s *serializer) ObjectCount() int { return len(s.index) }

func (s *serializer) synchronize(desc string) {
	s.sink.Put(opSynchronize, desc)
}

func (s *serializer) visit(v Value) {
	switch x := v.(type) {
	case nil:
		s.sink.Put(opHole, "hole")
	case Smi:
		s.sink.Put(opSmi, "smi")
		putVarInt(s.sink, zigzag(int64(x)), "smi value")
	case *Object:
		if x == nil {
			s.sink.Put(opHole, "hole")
			return
		}
		if s.reference != nil && s.reference(x) {
			return
		}
		if i, ok := s.index[x]; ok {
			s.sink.Put(opBackref, "backref")
			putVarInt(s.sink, uint64(i), "backref index")
			return
		}
		s.serializeObject(x)
	}
}

// serializeObject emits o in full. The object is numbered before its
// shape and fields are visited so cycles resolve to back-references.
func (s *serializer) serializeObject(o *Object) {
	s.index[o] = len(s.index)
	size := o.Size()
	s.alloc[o.space] += size

	s.sink.Put(opNewObject|byte(o.space), "new object")
	s.sink.Put(byte(o.kind), "kind")
	putVarInt(s.sink, uint64(size), "size")
	s.visit(o.shape)
	putVarInt(s.sink, uint64(len(o.fields)), "field count")
	for _, f := range o.fields {
		s.visit(f)
	}
	putVarInt(s.sink, uint64(len(o.data)), "data length")
	if len(o.data) > 0 {
		s.sink.PutBytes(o.data, "data")
	}
}

// StartupSerializer writes the main stream: the root list and persistent
// handles (strong), the partial snapshot cache filled while the context is
// serialized, and the symbol table (weak).
type StartupSerializer struct {
	serializer
	cache      []*Object
	cacheIndex map[*Object]int
}

// NewStartupSerializer creates a serializer writing to sink.
func NewStartupSerializer(h *Heap, sink snapshot.Sink) *StartupSerializer {
	return &StartupSerializer{
		serializer: newSerializer(h, sink),
		cacheIndex: make(map[*Object]int),
	}
}

// SerializeStrongReferences emits the root list, then the persistent
// handles, each section closed by a synchronize marker.
func (s *StartupSerializer) SerializeStrongReferences() {
	putVarInt(s.sink, uint64(len(s.h.rootList)), "root count")
	for _, o := range s.h.rootList {
		s.visit(o)
	}
	s.synchronize("root list")

	putVarInt(s.sink, uint64(len(s.h.handles)), "handle count")
	for _, hd := range s.h.handles {
		s.visit(hd.obj)
	}
	s.synchronize("handles")
}

// PartialSnapshotCacheIndex returns o's slot in the partial snapshot
// cache, adding it and emitting it into the main stream on first use.
func (s *StartupSerializer) PartialSnapshotCacheIndex(o *Object) int {
	if i, ok := s.cacheIndex[o]; ok {
		return i
	}
	i := len(s.cache)
	s.cache = append(s.cache, o)
	s.cacheIndex[o] = i
	s.visit(o)
	return i
}

// CacheLen returns the number of partial snapshot cache entries.
func (s *StartupSerializer) CacheLen() int { return len(s.cache) }

// SerializeWeakReferences terminates the partial snapshot cache and emits
// the symbol table. Call it after the partial pass.
func (s *StartupSerializer) SerializeWeakReferences() {
	s.synchronize("partial snapshot cache")

	syms := s.h.symbols.All()
	putVarInt(s.sink, uint64(len(syms)), "symbol count")
	for _, sym := range syms {
		s.visit(sym)
	}
	s.synchronize("symbol table")
}

// PartialSerializer writes the context stream. Roots are referenced by
// root index; maps, symbols, code and anything the startup pass already
// emitted are referenced through the partial snapshot cache.
type PartialSerializer struct {
	serializer
	startup *StartupSerializer
}

// NewPartialSerializer creates a serializer writing to sink that shares
// objects with startup.
func NewPartialSerializer(h *Heap, startup *StartupSerializer, sink snapshot.Sink) *PartialSerializer {
	p := &PartialSerializer{
		serializer: newSerializer(h, sink),
		startup:    startup,
	}
	p.reference = p.referToShared
	return p
}

func (p *PartialSerializer) referToShared(o *Object) bool {
	if i, ok := p.h.rootIndex[o]; ok {
		p.sink.Put(opRootRef, "root ref")
		putVarInt(p.sink, uint64(i), "root index")
		return true
	}
	if p.shouldBeInStartup(o) {
		i := p.startup.PartialSnapshotCacheIndex(o)
		p.sink.Put(opCacheRef, "cache ref")
		putVarInt(p.sink, uint64(i), "cache index")
		return true
	}
	return false
}

func (p *PartialSerializer) shouldBeInStartup(o *Object) bool {
	switch o.kind {
	case KindMap, KindSymbol, KindCode, KindBuiltins:
		return true
	}
	_, ok := p.startup.index[o]
	return ok
}

// Serialize emits the context and everything reachable from it.
func (p *PartialSerializer) Serialize(ctx *Object) {
	p.visit(ctx)
	p.synchronize("context")
}
