// Package compress provides the compression stage applied to snapshot
// streams before they are embedded.
//
// Exactly one strategy is active per build. The default build embeds
// uncompressed streams; building with the snapshot_zstd or snapshot_lz4
// tag selects the corresponding algorithm. The runtime that loads the
// artifact must be built with the same tag, since the algorithm is not
// recorded in the artifact itself.
package compress

import (
	"errors"
	"fmt"
)

// Algorithm names a compression algorithm.
type Algorithm int

const (
	AlgorithmNone Algorithm = iota
	AlgorithmZstd
	AlgorithmLZ4
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmZstd:
		return "zstd"
	case AlgorithmLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// Compressor is a compression strategy over a finite buffer.
//
// Compress reads input without retaining or modifying it. On success the
// result is available from Output until the next call to Compress. On
// failure it returns false and the caller must treat the run as failed.
type Compressor interface {
	Compress(input []byte) bool
	Output() []byte
	Algorithm() Algorithm
}

// Failure codes reported by strategies through LastError.
const (
	CodeOK         = 0
	CodeOutputFull = -8
	CodeConfig     = -9
	CodeInternal   = -1
)

// ErrSizeMismatch is returned by Decompress when the decoded stream does
// not have the declared raw size.
var ErrSizeMismatch = errors.New("compress: decoded size does not match raw size")

// WorkingBufferSize returns the capacity a strategy reserves for the
// compressed form of n input bytes. Results that do not fit are
// reported as failures.
func WorkingBufferSize(n int) int {
	return n*101/100 + 1000
}

// Identity is the strategy used when no compression is configured. Its
// output is the input buffer itself.
type Identity struct {
	output []byte
}

// NewIdentity returns the identity strategy.
func NewIdentity() *Identity {
	return &Identity{}
}

// Compress always succeeds.
func (c *Identity) Compress(input []byte) bool {
	c.output = input
	return true
}

// Output returns the last input.
func (c *Identity) Output() []byte {
	return c.output
}

// Algorithm returns AlgorithmNone.
func (c *Identity) Algorithm() Algorithm {
	return AlgorithmNone
}

// New returns a fresh strategy for alg.
func New(alg Algorithm) (Compressor, error) {
	switch alg {
	case AlgorithmNone:
		return NewIdentity(), nil
	case AlgorithmZstd:
		return NewZstd(), nil
	case AlgorithmLZ4:
		return NewLZ4(), nil
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %v", alg)
	}
}

// Decompress reverses the strategy for alg. The destination is sized from
// rawSize, the uncompressed length recorded alongside the payload; the
// payload length says nothing about the decoded size.
func Decompress(alg Algorithm, src []byte, rawSize int) ([]byte, error) {
	if rawSize < 0 {
		return nil, fmt.Errorf("compress: negative raw size %d", rawSize)
	}
	var out []byte
	var err error
	switch alg {
	case AlgorithmNone:
		out = append(make([]byte, 0, len(src)), src...)
	case AlgorithmZstd:
		out, err = decompressZstd(src, rawSize)
	case AlgorithmLZ4:
		out, err = decompressLZ4(src, rawSize)
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %v", alg)
	}
	if err != nil {
		return nil, err
	}
	if len(out) != rawSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, len(out), rawSize)
	}
	return out, nil
}
