package heap

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/mksnapshot/snapshot"
)

// Kind is the layout of a heap object.
type Kind uint8

const (
	KindMap Kind = iota
	KindOddball
	KindString
	KindSymbol
	KindNumber
	KindArray
	KindRecord
	KindCode
	KindCell
	KindPropertyCell
	KindContext
	KindGlobalObject
	KindBuiltins

	numKinds
)

var kindNames = [numKinds]string{
	KindMap:          "Map",
	KindOddball:      "Oddball",
	KindString:       "String",
	KindSymbol:       "Symbol",
	KindNumber:       "Number",
	KindArray:        "Array",
	KindRecord:       "Record",
	KindCode:         "Code",
	KindCell:         "Cell",
	KindPropertyCell: "PropertyCell",
	KindContext:      "Context",
	KindGlobalObject: "GlobalObject",
	KindBuiltins:     "Builtins",
}

func (k Kind) String() string {
	if k >= numKinds {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// tenuredSpace is the region an object of each kind lives in once it is
// no longer young.
var tenuredSpace = [numKinds]snapshot.Region{
	KindMap:          snapshot.Map,
	KindOddball:      snapshot.OldPointer,
	KindString:       snapshot.OldData,
	KindSymbol:       snapshot.OldData,
	KindNumber:       snapshot.OldData,
	KindArray:        snapshot.OldPointer,
	KindRecord:       snapshot.OldPointer,
	KindCode:         snapshot.Code,
	KindCell:         snapshot.Cell,
	KindPropertyCell: snapshot.PropertyCell,
	KindContext:      snapshot.OldPointer,
	KindGlobalObject: snapshot.OldPointer,
	KindBuiltins:     snapshot.OldPointer,
}

// Object layout sizes in bytes.
const (
	headerSize = 16
	fieldSize  = 8
)

// Object is a heap-allocated object. Its shape is the map object that
// describes it; maps themselves are shaped by the meta map.
type Object struct {
	kind   Kind
	space  snapshot.Region
	shape  *Object
	fields []Value
	data   []byte

	age    uint8
	marked bool
}

func (o *Object) isValue() {}

// Kind returns the object's layout.
func (o *Object) Kind() Kind { return o.kind }

// Space returns the region the object is allocated in.
func (o *Object) Space() snapshot.Region { return o.space }

// Shape returns the object's map.
func (o *Object) Shape() *Object { return o.shape }

// NumFields returns the number of value slots.
func (o *Object) NumFields() int { return len(o.fields) }

// Field returns slot i.
func (o *Object) Field(i int) Value { return o.fields[i] }

// SetField stores v into slot i.
func (o *Object) SetField(i int, v Value) { o.fields[i] = v }

// Data returns the object's untagged payload.
func (o *Object) Data() []byte { return o.data }

// Size returns the number of bytes the object occupies in its region.
func (o *Object) Size() int {
	return objectSize(len(o.fields), len(o.data))
}

func objectSize(nfields, ndata int) int {
	return headerSize + nfields*fieldSize + (ndata+7)&^7
}

// StringValue returns the contents of a String or Symbol.
func (o *Object) StringValue() string {
	return string(o.data)
}

// NumberValue returns the value of a heap Number.
func (o *Object) NumberValue() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(o.data))
}

func encodeNumber(f float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(f))
	return b
}

func (o *Object) String() string {
	switch o.kind {
	case KindString, KindSymbol, KindOddball:
		return fmt.Sprintf("%v(%q)", o.kind, o.data)
	case KindNumber:
		return fmt.Sprintf("Number(%g)", o.NumberValue())
	default:
		return fmt.Sprintf("%v[%d]@%v", o.kind, len(o.fields), o.space)
	}
}

// Descriptor is the payload of a map object: which kind it shapes and,
// for records, the property names in slot order.
type Descriptor struct {
	Kind Kind     `cbor:"1,keyasint"`
	Name string   `cbor:"2,keyasint,omitempty"`
	Keys []string `cbor:"3,keyasint,omitempty"`
}

var descEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("heap: failed to create CBOR enc mode: %v", err))
	}
	descEncMode = em
}

func marshalDescriptor(d Descriptor) []byte {
	b, err := descEncMode.Marshal(d)
	if err != nil {
		panic(fmt.Sprintf("heap: marshal map descriptor: %v", err))
	}
	return b
}

// Descriptor decodes a map object's payload.
func (o *Object) Descriptor() (Descriptor, error) {
	var d Descriptor
	if o.kind != KindMap {
		return d, fmt.Errorf("heap: %v is not a map", o.kind)
	}
	if err := cbor.Unmarshal(o.data, &d); err != nil {
		return d, fmt.Errorf("heap: unmarshal map descriptor: %w", err)
	}
	return d, nil
}
