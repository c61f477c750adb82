package snapshot

import "fmt"

// Region identifies a logical partition of managed memory.
type Region int

// Regions in format order. The order is part of the artifact contract:
// space-used fields are emitted in exactly this sequence.
const (
	Young Region = iota
	OldPointer
	OldData
	Code
	Map
	Cell
	PropertyCell

	// NumRegions is the number of tracked regions.
	NumRegions
)

var regionNames = [NumRegions]string{
	Young:        "Young",
	OldPointer:   "OldPointer",
	OldData:      "OldData",
	Code:         "Code",
	Map:          "Map",
	Cell:         "Cell",
	PropertyCell: "PropertyCell",
}

// String returns the region's identifier as used in generated field names.
func (r Region) String() string {
	if r < 0 || r >= NumRegions {
		return fmt.Sprintf("Region(%d)", int(r))
	}
	return regionNames[r]
}

// Valid reports whether r names one of the tracked regions.
func (r Region) Valid() bool {
	return r >= 0 && r < NumRegions
}

// Regions returns all regions in format order.
func Regions() []Region {
	rs := make([]Region, NumRegions)
	for i := range rs {
		rs[i] = Region(i)
	}
	return rs
}

// Sizes maps each region to the number of bytes a serialization pass
// reserved in it. It is a value type: once recorded it cannot be changed
// through the pass that produced it.
type Sizes [NumRegions]int

// AllocationReporter is implemented by graph walkers that track, per
// region, how far their allocation cursor has advanced.
type AllocationReporter interface {
	CurrentAllocationAddress(r Region) int
}

// RecordSizes captures the allocation cursor of every region. Call it
// once, immediately after the pass that owns rep has completed.
func RecordSizes(rep AllocationReporter) Sizes {
	var s Sizes
	for _, r := range Regions() {
		s[r] = rep.CurrentAllocationAddress(r)
	}
	return s
}

// Total returns the sum over all regions.
func (s Sizes) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}
