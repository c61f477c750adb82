package compress

import (
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4 compresses with the LZ4 block format. The block carries no length
// header; the reader relies on the raw size recorded in the artifact.
type LZ4 struct {
	output  []byte
	lastErr int
	cause   error
}

// NewLZ4 returns an LZ4 block strategy.
func NewLZ4() *LZ4 {
	return &LZ4{}
}

// Compress encodes input into a working buffer of
// WorkingBufferSize(len(input)) bytes.
func (c *LZ4) Compress(input []byte) bool {
	c.output = nil
	c.lastErr, c.cause = CodeOK, nil

	buf := make([]byte, WorkingBufferSize(len(input)))
	if len(input) == 0 {
		c.output = buf[:0:0]
		return true
	}
	n, err := lz4.CompressBlock(input, buf, nil)
	if err != nil {
		c.lastErr, c.cause = CodeOutputFull, err
		return false
	}
	if n == 0 {
		// The working buffer is larger than the worst-case bound, so a zero
		// result cannot mean "incompressible".
		c.lastErr, c.cause = CodeInternal, errors.New("lz4: encoder produced no output")
		return false
	}
	c.output = buf[:n:n]
	return true
}

// Output returns the result of the last successful Compress.
func (c *LZ4) Output() []byte {
	return c.output
}

// Algorithm returns AlgorithmLZ4.
func (c *LZ4) Algorithm() Algorithm {
	return AlgorithmLZ4
}

// LastError returns the failure code and cause of the last Compress call.
func (c *LZ4) LastError() (int, error) {
	return c.lastErr, c.cause
}

func decompressLZ4(src []byte, rawSize int) ([]byte, error) {
	if rawSize == 0 && len(src) == 0 {
		return []byte{}, nil
	}
	out := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(src, out)
	if err != nil {
		return nil, fmt.Errorf("lz4: decode: %w", err)
	}
	return out[:n], nil
}
