//go:build snapshot_zstd && !snapshot_lz4

package compress

// Active is the algorithm compiled into this build.
const Active = AlgorithmZstd

// Default returns the strategy compiled into this build.
func Default() Compressor {
	return NewZstd()
}
