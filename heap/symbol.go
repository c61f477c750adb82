package heap

import "github.com/chazu/mksnapshot/snapshot"

// SymbolTable interns strings to Symbol objects. The table holds its
// entries weakly: a collection removes symbols nothing else references.
type SymbolTable struct {
	byName map[string]*Object
	order  []*Object // insertion order, for deterministic iteration
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]*Object)}
}

// Lookup returns the symbol for name if it is interned.
func (st *SymbolTable) Lookup(name string) (*Object, bool) {
	sym, ok := st.byName[name]
	return sym, ok
}

// Len returns the number of interned symbols.
func (st *SymbolTable) Len() int {
	return len(st.order)
}

// All returns the interned symbols in insertion order.
func (st *SymbolTable) All() []*Object {
	out := make([]*Object, len(st.order))
	copy(out, st.order)
	return out
}

func (st *SymbolTable) add(sym *Object) {
	st.byName[sym.StringValue()] = sym
	st.order = append(st.order, sym)
}

// sweep drops symbols that were not marked. Returns the number removed.
func (st *SymbolTable) sweep() int {
	kept := st.order[:0]
	removed := 0
	for _, sym := range st.order {
		if sym.marked {
			kept = append(kept, sym)
			continue
		}
		delete(st.byName, sym.StringValue())
		removed++
	}
	for i := len(kept); i < len(st.order); i++ {
		st.order[i] = nil
	}
	st.order = kept
	return removed
}

// Intern returns the symbol for name, allocating it on first use.
func (h *Heap) Intern(name string) *Object {
	if sym, ok := h.symbols.Lookup(name); ok {
		return sym
	}
	sym := h.allocate(KindSymbol, snapshot.OldData, 0, []byte(name))
	h.symbols.add(sym)
	return sym
}

// Symbols returns the heap's symbol table.
func (h *Heap) Symbols() *SymbolTable {
	return h.symbols
}
