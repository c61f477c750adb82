package heap

import (
	"time"

	"github.com/chazu/mksnapshot/snapshot"
)

// promotionAge is the number of collections a young object survives
// before it moves to its tenured region.
const promotionAge = 1

// GCStats holds statistics from one full collection.
type GCStats struct {
	Live              int
	Swept             int
	Promoted          int
	SymbolsCleared    int
	RecordMapsCleared int
	Before            snapshot.Sizes
	After             snapshot.Sizes
	Duration          time.Duration
}

// CollectAllGarbage runs a full mark-sweep collection. The root list and
// persistent handles are strong roots; the symbol table and the record map
// cache are weak. Young survivors are aged and promoted.
func (h *Heap) CollectAllGarbage() GCStats {
	start := time.Now()
	stats := GCStats{Before: h.sizes()}

	stats.Live = h.mark()

	stats.SymbolsCleared = h.symbols.sweep()
	for id, m := range h.recordMaps {
		if !m.marked {
			delete(h.recordMaps, id)
			stats.RecordMapsCleared++
		}
	}

	var promoted []*Object
	for r := range h.spaces {
		sp := &h.spaces[r]
		kept := sp.objects[:0]
		used := 0
		for _, o := range sp.objects {
			if !o.marked {
				stats.Swept++
				continue
			}
			o.marked = false
			if o.space == snapshot.Young {
				o.age++
				if o.age >= promotionAge {
					promoted = append(promoted, o)
					continue
				}
			}
			kept = append(kept, o)
			used += o.Size()
		}
		for i := len(kept); i < len(sp.objects); i++ {
			sp.objects[i] = nil
		}
		sp.objects = kept
		sp.used = used
	}

	for _, o := range promoted {
		o.space = tenuredSpace[o.kind]
		h.track(o)
	}
	stats.Promoted = len(promoted)

	h.gcCount++
	stats.After = h.sizes()
	stats.Duration = time.Since(start)
	return stats
}

// GCCount returns the number of completed collections.
func (h *Heap) GCCount() int { return h.gcCount }

func (h *Heap) mark() int {
	var stack []*Object
	push := func(v Value) {
		if o, ok := v.(*Object); ok && o != nil && !o.marked {
			o.marked = true
			stack = append(stack, o)
		}
	}

	for _, o := range h.rootList {
		push(o)
	}
	for _, hd := range h.handles {
		if hd.obj != nil {
			push(hd.obj)
		}
	}

	live := 0
	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		live++
		push(o.shape)
		for _, f := range o.fields {
			push(f)
		}
	}
	return live
}

func (h *Heap) sizes() snapshot.Sizes {
	var s snapshot.Sizes
	for r := range h.spaces {
		s[r] = h.spaces[r].used
	}
	return s
}
