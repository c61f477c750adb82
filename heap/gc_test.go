package heap

import (
	"testing"

	"github.com/chazu/mksnapshot/snapshot"
)

func TestCollectAllGarbage(t *testing.T) {
	h := newHeap(t)
	s := h.NewContext()

	kept := h.NewString("kept")
	s.Define("kept", kept)
	rec, err := h.NewRecord([]string{"live"}, []Value{Smi(1)})
	if err != nil {
		t.Fatal(err)
	}
	s.Define("rec", rec)

	for i := 0; i < 10; i++ {
		h.NewString("garbage")
		h.NewNumber(float64(i))
	}
	h.Intern("orphan")
	deadMap := h.RecordMap([]string{"dead"})

	stats := h.CollectAllGarbage()

	if stats.Swept < 20 {
		t.Errorf("Swept = %d, want at least 20", stats.Swept)
	}
	if stats.Promoted != 2 {
		t.Errorf("Promoted = %d, want 2", stats.Promoted)
	}
	if stats.SymbolsCleared != 1 {
		t.Errorf("SymbolsCleared = %d, want 1", stats.SymbolsCleared)
	}
	if stats.RecordMapsCleared != 1 {
		t.Errorf("RecordMapsCleared = %d, want 1", stats.RecordMapsCleared)
	}
	if stats.Before[snapshot.Young] == 0 || stats.After[snapshot.Young] != 0 {
		t.Errorf("young before/after = %d/%d", stats.Before[snapshot.Young], stats.After[snapshot.Young])
	}
	if h.GCCount() != 1 {
		t.Errorf("GCCount = %d", h.GCCount())
	}

	if kept.Space() != snapshot.OldData || rec.Space() != snapshot.OldPointer {
		t.Errorf("survivors in %v and %v", kept.Space(), rec.Space())
	}
	if _, ok := h.Symbols().Lookup("orphan"); ok {
		t.Error("unreferenced symbol survived")
	}
	if _, ok := h.Symbols().Lookup("kept"); !ok {
		t.Error("referenced symbol was cleared")
	}
	if h.RecordMap([]string{"dead"}) == deadMap {
		t.Error("dead record map still cached")
	}
	if h.RecordMap([]string{"live"}) != rec.Shape() {
		t.Error("live record map dropped from cache")
	}

	v, ok := s.Lookup("kept")
	if !ok || v != kept {
		t.Error("binding lost across collection")
	}
}

func TestCollectAllGarbageKeepsRegionAccounting(t *testing.T) {
	h := newHeap(t)
	s := h.NewContext()
	s.Define("a", h.NewArray([]Value{h.NewString("x"), Smi(1)}))
	h.CollectAllGarbage()

	for _, r := range snapshot.Regions() {
		total := 0
		for _, o := range h.spaces[r].objects {
			if o.Space() != r {
				t.Errorf("%v tracked in %v", o, r)
			}
			total += o.Size()
		}
		if total != h.SpaceUsed(r) {
			t.Errorf("%v: objects sum to %d, SpaceUsed = %d", r, total, h.SpaceUsed(r))
		}
	}
}

func TestResetHandleReleasesContext(t *testing.T) {
	h := newHeap(t)
	s := h.NewContext()
	s.Define("tmp", h.NewString("value"))
	h.CollectAllGarbage()
	before := h.ObjectCount(snapshot.PropertyCell)

	s.Handle().Reset()
	h.CollectAllGarbage()

	if before != 1 || h.ObjectCount(snapshot.PropertyCell) != 0 {
		t.Errorf("property cells before/after = %d/%d", before, h.ObjectCount(snapshot.PropertyCell))
	}
	if _, ok := h.Symbols().Lookup("tmp"); ok {
		t.Error("symbol of released global survived")
	}
}
