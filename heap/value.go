package heap

import "math"

// Value is a slot in a heap object: nil (a hole), an immediate Smi, or a
// reference to an *Object.
type Value interface {
	isValue()
}

// Smi is a small integer stored inline rather than on the heap.
type Smi int32

func (Smi) isValue() {}

// Smi range; integers outside it are boxed as heap numbers.
const (
	MinSmi = math.MinInt32
	MaxSmi = math.MaxInt32
)

// IsSmiRange reports whether n can be stored as a Smi.
func IsSmiRange(n int64) bool {
	return n >= MinSmi && n <= MaxSmi
}
