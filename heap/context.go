package heap

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/chazu/mksnapshot/snapshot"
)

// Context slots.
const (
	contextGlobal = iota
	contextBuiltins
	contextSlots
)

// Property cell slots.
const (
	cellName = iota
	cellValue
	cellSlots
)

// Scope is the global evaluation scope of a context. Globals live in
// property cells hung off the context's global object.
type Scope struct {
	h      *Heap
	ctx    *Object
	handle *Handle
}

// NewContext creates a context with an empty global object and roots it
// with a persistent handle.
func (h *Heap) NewContext() *Scope {
	ctx := h.allocate(KindContext, snapshot.OldPointer, contextSlots, nil)
	ctx.fields[contextGlobal] = h.allocate(KindGlobalObject, snapshot.OldPointer, 0, nil)
	ctx.fields[contextBuiltins] = h.builtins
	return &Scope{h: h, ctx: ctx, handle: h.Persist(ctx)}
}

// ContextScope wraps an existing context, such as one returned by
// Deserialize. The scope does not root it.
func (h *Heap) ContextScope(ctx *Object) (*Scope, error) {
	if ctx == nil || ctx.kind != KindContext || len(ctx.fields) != contextSlots {
		return nil, fmt.Errorf("heap: %v is not a context", ctx)
	}
	if g, ok := ctx.fields[contextGlobal].(*Object); !ok || g.kind != KindGlobalObject {
		return nil, fmt.Errorf("heap: context has no global object")
	}
	return &Scope{h: h, ctx: ctx}, nil
}

// Heap returns the heap the scope allocates in.
func (s *Scope) Heap() *Heap { return s.h }

// Context returns the context object.
func (s *Scope) Context() *Object { return s.ctx }

// Handle returns the persistent handle rooting the context.
func (s *Scope) Handle() *Handle { return s.handle }

func (s *Scope) global() *Object { return s.ctx.fields[contextGlobal].(*Object) }

func (s *Scope) cell(name string) *Object {
	for _, f := range s.global().fields {
		c := f.(*Object)
		if c.fields[cellName].(*Object).StringValue() == name {
			return c
		}
	}
	return nil
}

// Define binds name to v, replacing any previous binding.
func (s *Scope) Define(name string, v Value) {
	if c := s.cell(name); c != nil {
		c.fields[cellValue] = v
		return
	}
	c := s.h.allocate(KindPropertyCell, snapshot.PropertyCell, cellSlots, nil)
	c.fields[cellName] = s.h.Intern(name)
	c.fields[cellValue] = v
	s.h.appendField(s.global(), c)
}

// Lookup returns the value bound to name.
func (s *Scope) Lookup(name string) (Value, bool) {
	c := s.cell(name)
	if c == nil {
		return nil, false
	}
	return c.fields[cellValue], true
}

// Names returns the bound names in definition order.
func (s *Scope) Names() []string {
	g := s.global()
	names := make([]string, len(g.fields))
	for i, f := range g.fields {
		names[i] = f.(*Object).fields[cellName].(*Object).StringValue()
	}
	return names
}

// Globals returns every binding converted to Go values.
func (s *Scope) Globals() (map[string]any, error) {
	out := make(map[string]any, s.global().NumFields())
	for _, name := range s.Names() {
		v, _ := s.Lookup(name)
		g, err := s.h.ToGo(v)
		if err != nil {
			return nil, fmt.Errorf("global %q: %w", name, err)
		}
		out[name] = g
	}
	return out, nil
}

// appendField grows o by one slot, keeping its region accounting current.
func (h *Heap) appendField(o *Object, v Value) {
	h.spaces[o.space].used -= o.Size()
	o.fields = append(o.fields, v)
	h.spaces[o.space].used += o.Size()
}

// FromGo allocates the heap representation of a Go value. Map keys are
// sorted so equal maps share a record map.
func (h *Heap) FromGo(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return h.Undefined(), nil
	case Value:
		return x, nil
	case bool:
		return h.Bool(x), nil
	case string:
		return h.NewString(x), nil
	case int:
		return h.NewInteger(int64(x)), nil
	case int32:
		return Smi(x), nil
	case int64:
		return h.NewInteger(x), nil
	case float64:
		return h.NewNumber(x), nil
	case float32:
		return h.NewNumber(float64(x)), nil
	case []any:
		return h.arrayFromGo(len(x), func(i int) any { return x[i] })
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return h.recordFromGo(keys, func(k string) any { return x[k] })
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return h.NewInteger(rv.Int()), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint, reflect.Uint64:
		u := rv.Uint()
		if u <= MaxSmi {
			return Smi(u), nil
		}
		return h.NewNumber(float64(u)), nil
	case reflect.Slice, reflect.Array:
		return h.arrayFromGo(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return h.recordFromGo(keys, func(k string) any {
			return rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()
		})
	}
	return nil, fmt.Errorf("heap: cannot represent %T", v)
}

func (h *Heap) arrayFromGo(n int, at func(int) any) (Value, error) {
	vals := make([]Value, n)
	for i := range vals {
		v, err := h.FromGo(at(i))
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return h.NewArray(vals), nil
}

func (h *Heap) recordFromGo(keys []string, at func(string) any) (Value, error) {
	vals := make([]Value, len(keys))
	for i, k := range keys {
		v, err := h.FromGo(at(k))
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return h.NewRecord(keys, vals)
}

// ToGo converts a heap value back to plain Go values.
func (h *Heap) ToGo(v Value) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case Smi:
		return int(x), nil
	case *Object:
		switch x.kind {
		case KindOddball:
			switch x {
			case h.True():
				return true, nil
			case h.False():
				return false, nil
			}
			return nil, nil
		case KindString, KindSymbol:
			return x.StringValue(), nil
		case KindNumber:
			return x.NumberValue(), nil
		case KindArray:
			out := make([]any, len(x.fields))
			for i, f := range x.fields {
				g, err := h.ToGo(f)
				if err != nil {
					return nil, err
				}
				out[i] = g
			}
			return out, nil
		case KindRecord:
			keys, err := h.RecordKeys(x)
			if err != nil {
				return nil, err
			}
			out := make(map[string]any, len(keys))
			for i, k := range keys {
				g, err := h.ToGo(x.fields[i])
				if err != nil {
					return nil, err
				}
				out[k] = g
			}
			return out, nil
		}
		return nil, fmt.Errorf("heap: %v has no Go representation", x.kind)
	}
	return nil, fmt.Errorf("heap: unknown value %T", v)
}
