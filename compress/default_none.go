//go:build !snapshot_zstd && !snapshot_lz4

package compress

// Active is the algorithm compiled into this build.
const Active = AlgorithmNone

// Default returns the strategy compiled into this build.
func Default() Compressor {
	return NewIdentity()
}
