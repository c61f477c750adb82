package heap

import (
	"errors"
	"fmt"

	"github.com/chazu/mksnapshot/snapshot"
)

// Every value in a stream starts with one opcode byte. The high nibble
// selects the opcode; for opNewObject the low nibble is the region.
const (
	opNewObject   byte = 0x00 // region, kind, size, shape, fields, data
	opBackref     byte = 0x10 // index into this stream's object numbering
	opRootRef     byte = 0x20 // index into the root list
	opCacheRef    byte = 0x30 // index into the partial snapshot cache
	opSmi         byte = 0x40 // zigzag varint
	opHole        byte = 0x50
	opSynchronize byte = 0x60 // section boundary

	opMask     byte = 0xf0
	regionMask byte = 0x0f
)

// ErrCorrupt is returned when a stream cannot be decoded.
var ErrCorrupt = errors.New("corrupt snapshot stream")

// maxVarIntLen is the longest encoding of a 64-bit varint.
const maxVarIntLen = 10

// writeVarInt writes v as LEB128 into buf and returns the bytes used.
func writeVarInt(buf []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

func zigzag(v int64) uint64   { return uint64((v << 1) ^ (v >> 63)) }
func unzigzag(u uint64) int64 { return int64(u>>1) ^ -int64(u&1) }

func putVarInt(sink snapshot.Sink, v uint64, desc string) {
	var buf [maxVarIntLen]byte
	n := writeVarInt(buf[:], v)
	sink.PutBytes(buf[:n], desc)
}

type reader struct {
	name string
	data []byte
	pos  int
}

func (r *reader) errorf(format string, args ...any) error {
	return fmt.Errorf("heap: %s stream at offset %d: %s: %w", r.name, r.pos, fmt.Sprintf(format, args...), ErrCorrupt)
}

func (r *reader) done() bool { return r.pos >= len(r.data) }

func (r *reader) peek() (byte, error) {
	if r.done() {
		return 0, r.errorf("unexpected end")
	}
	return r.data[r.pos], nil
}

func (r *reader) readByte() (byte, error) {
	b, err := r.peek()
	if err != nil {
		return 0, err
	}
	r.pos++
	return b, nil
}

func (r *reader) readVarInt() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < maxVarIntLen; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, r.errorf("varint overflow")
}

// readCount reads a varint that must not exceed the remaining input.
func (r *reader) readCount() (int, error) {
	v, err := r.readVarInt()
	if err != nil {
		return 0, err
	}
	if v > uint64(len(r.data)-r.pos) {
		return 0, r.errorf("count %d exceeds remaining %d bytes", v, len(r.data)-r.pos)
	}
	return int(v), nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if n > len(r.data)-r.pos {
		return nil, r.errorf("need %d bytes", n)
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:])
	r.pos += n
	return b, nil
}

func (r *reader) expectSync(section string) error {
	b, err := r.readByte()
	if err != nil {
		return err
	}
	if b != opSynchronize {
		return r.errorf("expected synchronize after %s, got 0x%02x", section, b)
	}
	return nil
}
