package heap

import (
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/mksnapshot/snapshot"
)

func newHeap(t *testing.T) *Heap {
	t.Helper()
	h, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestNewBootstrapsRoots(t *testing.T) {
	h := newHeap(t)

	roots := h.RootList()
	if len(roots) != rootListLen {
		t.Fatalf("root list has %d entries, want %d", len(roots), rootListLen)
	}
	meta := h.KindMap(KindMap)
	if meta.Shape() != meta {
		t.Error("meta map is not its own shape")
	}
	for k := Kind(0); k < numKinds; k++ {
		m := h.KindMap(k)
		if m == nil || m.Kind() != KindMap || m.Shape() != meta {
			t.Fatalf("map for %v = %v", k, m)
		}
		d, err := m.Descriptor()
		if err != nil {
			t.Fatalf("descriptor for %v: %v", k, err)
		}
		if d.Kind != k || d.Name != k.String() {
			t.Errorf("descriptor for %v = %+v", k, d)
		}
		if _, ok := h.RootIndex(m); !ok {
			t.Errorf("map for %v is not a root", k)
		}
	}

	for _, tc := range []struct {
		obj  *Object
		want string
	}{
		{h.Undefined(), "undefined"},
		{h.Null(), "null"},
		{h.True(), "true"},
		{h.False(), "false"},
	} {
		if tc.obj.Kind() != KindOddball || tc.obj.StringValue() != tc.want {
			t.Errorf("oddball = %v, want %s", tc.obj, tc.want)
		}
	}
	if h.EmptyString().StringValue() != "" || h.EmptyArray().NumFields() != 0 {
		t.Error("empty string or array is not empty")
	}
	if h.Builtins().NumFields() != h.NativesCount() {
		t.Errorf("builtins has %d cells for %d natives", h.Builtins().NumFields(), h.NativesCount())
	}
	if h.SpaceUsed(snapshot.Young) != 0 {
		t.Errorf("bootstrap allocated %d young bytes", h.SpaceUsed(snapshot.Young))
	}
}

func TestNewWithoutNatives(t *testing.T) {
	if _, err := newWithNatives(fstest.MapFS{}); err == nil {
		t.Fatal("expected error for missing natives")
	}
	fsys := fstest.MapFS{"natives/blank.expr": {Data: []byte("  \n")}}
	if _, err := newWithNatives(fsys); err == nil {
		t.Fatal("expected error for empty native")
	}
}

func TestNativesAreLazy(t *testing.T) {
	fsys := fstest.MapFS{
		"natives/b.expr": {Data: []byte("two = 2\n")},
		"natives/a.expr": {Data: []byte("one = 1\n")},
	}
	h, err := newWithNatives(fsys)
	if err != nil {
		t.Fatalf("newWithNatives: %v", err)
	}
	if h.NativesCount() != 2 || h.NativeName(0) != "a" || h.NativeName(1) != "b" {
		t.Fatalf("natives = %d (%s, %s)", h.NativesCount(), h.NativeName(0), h.NativeName(1))
	}
	if h.IsNativeMaterialized(0) || h.ObjectCount(snapshot.Code) != 0 {
		t.Fatal("native compiled before first use")
	}

	code := h.NativesSourceLookup(1)
	if code.Kind() != KindCode || string(code.Data()) != "two = 2\n" {
		t.Fatalf("code = %v %q", code, code.Data())
	}
	if h.NativesSourceLookup(1) != code {
		t.Error("second lookup compiled again")
	}
	if h.IsNativeMaterialized(0) {
		t.Error("lookup of one native materialized another")
	}

	h.MaterializeNatives()
	for i := 0; i < h.NativesCount(); i++ {
		if !h.IsNativeMaterialized(i) {
			t.Errorf("native %d not materialized", i)
		}
	}
	if h.ObjectCount(snapshot.Code) != 2 {
		t.Errorf("code objects = %d", h.ObjectCount(snapshot.Code))
	}
	if _, ok := h.Symbols().Lookup("a"); !ok {
		t.Error("native name not interned")
	}
}

func TestInternIsCanonical(t *testing.T) {
	h := newHeap(t)
	a := h.Intern("alpha")
	if h.Intern("alpha") != a {
		t.Error("Intern returned a second symbol")
	}
	if a.Kind() != KindSymbol || a.Space() != snapshot.OldData {
		t.Errorf("symbol = %v in %v", a, a.Space())
	}
}

func TestRecordMapsAreShared(t *testing.T) {
	h := newHeap(t)
	r1, err := h.NewRecord([]string{"x", "y"}, []Value{Smi(1), Smi(2)})
	if err != nil {
		t.Fatal(err)
	}
	r2, _ := h.NewRecord([]string{"x", "y"}, []Value{Smi(3), Smi(4)})
	r3, _ := h.NewRecord([]string{"y", "x"}, []Value{Smi(3), Smi(4)})
	if r1.Shape() != r2.Shape() {
		t.Error("same keys produced different maps")
	}
	if r1.Shape() == r3.Shape() {
		t.Error("different key order shared a map")
	}
	keys, err := h.RecordKeys(r3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"y", "x"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if _, err := h.NewRecord([]string{"x"}, nil); err == nil {
		t.Error("expected error for mismatched record")
	}
}

func TestObjectSize(t *testing.T) {
	tests := []struct {
		nfields, ndata, want int
	}{
		{0, 0, 16},
		{1, 0, 24},
		{0, 1, 24},
		{0, 8, 24},
		{2, 9, 48},
	}
	for _, tt := range tests {
		if got := objectSize(tt.nfields, tt.ndata); got != tt.want {
			t.Errorf("objectSize(%d, %d) = %d, want %d", tt.nfields, tt.ndata, got, tt.want)
		}
	}
}

func TestHandles(t *testing.T) {
	h := newHeap(t)
	s := h.NewString("held")
	hd := h.Persist(s)
	if hd.Get() != s || len(h.Handles()) != 1 {
		t.Fatal("handle not registered")
	}
	hd.Reset()
	hd.Reset()
	if !hd.IsEmpty() || len(h.Handles()) != 0 {
		t.Error("reset handle still rooted")
	}
}

func TestScope(t *testing.T) {
	h := newHeap(t)
	s := h.NewContext()

	s.Define("n", Smi(7))
	s.Define("s", h.NewString("hi"))
	s.Define("n", Smi(8))

	if diff := cmp.Diff([]string{"n", "s"}, s.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	v, ok := s.Lookup("n")
	if !ok || v != Smi(8) {
		t.Errorf("Lookup(n) = %v, %v", v, ok)
	}
	if _, ok := s.Lookup("missing"); ok {
		t.Error("Lookup found an undefined name")
	}
	globals, err := s.Globals()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"n": 8, "s": "hi"}, globals); diff != "" {
		t.Errorf("globals mismatch (-want +got):\n%s", diff)
	}
	if h.ObjectCount(snapshot.PropertyCell) != 2 {
		t.Errorf("property cells = %d", h.ObjectCount(snapshot.PropertyCell))
	}
}

func TestGoValueConversion(t *testing.T) {
	h := newHeap(t)
	in := map[string]any{
		"int":    42,
		"neg":    -3,
		"float":  2.5,
		"str":    "text",
		"empty":  "",
		"yes":    true,
		"no":     false,
		"none":   nil,
		"list":   []any{1, "two", []any{}},
		"nested": map[string]any{"k": "v"},
		"ints":   []int{1, 2, 3},
	}
	v, err := h.FromGo(in)
	if err != nil {
		t.Fatalf("FromGo: %v", err)
	}
	got, err := h.ToGo(v)
	if err != nil {
		t.Fatalf("ToGo: %v", err)
	}
	want := map[string]any{
		"int":    42,
		"neg":    -3,
		"float":  2.5,
		"str":    "text",
		"empty":  "",
		"yes":    true,
		"no":     false,
		"none":   nil,
		"list":   []any{1, "two", []any{}},
		"nested": map[string]any{"k": "v"},
		"ints":   []any{1, 2, 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	big, err := h.FromGo(int64(1) << 40)
	if err != nil {
		t.Fatal(err)
	}
	if o, ok := big.(*Object); !ok || o.Kind() != KindNumber || o.NumberValue() != 1<<40 {
		t.Errorf("out of range integer = %v", big)
	}

	if _, err := h.FromGo(struct{}{}); err == nil {
		t.Error("expected error for struct")
	}
	if _, err := h.ToGo(h.Builtins()); err == nil {
		t.Error("expected error for builtins")
	}
}
