package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses with Zstandard at its best-compression level.
type Zstd struct {
	output  []byte
	lastErr int
	cause   error
}

// NewZstd returns a Zstandard strategy.
func NewZstd() *Zstd {
	return &Zstd{}
}

// Compress encodes input into a fresh working buffer of
// WorkingBufferSize(len(input)) bytes.
func (c *Zstd) Compress(input []byte) bool {
	c.output = nil
	c.lastErr, c.cause = CodeOK, nil

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		c.lastErr, c.cause = CodeConfig, err
		return false
	}
	defer enc.Close()

	budget := WorkingBufferSize(len(input))
	out := enc.EncodeAll(input, make([]byte, 0, budget))
	if len(out) > budget {
		c.lastErr = CodeOutputFull
		c.cause = fmt.Errorf("zstd: %d bytes do not fit working buffer of %d", len(out), budget)
		return false
	}
	c.output = out[:len(out):len(out)]
	return true
}

// Output returns the result of the last successful Compress.
func (c *Zstd) Output() []byte {
	return c.output
}

// Algorithm returns AlgorithmZstd.
func (c *Zstd) Algorithm() Algorithm {
	return AlgorithmZstd
}

// LastError returns the failure code and cause of the last Compress call.
func (c *Zstd) LastError() (int, error) {
	return c.lastErr, c.cause
}

func decompressZstd(src []byte, rawSize int) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd: create decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(src, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd: decode: %w", err)
	}
	return out, nil
}
