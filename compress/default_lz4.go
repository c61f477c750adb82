//go:build snapshot_lz4 && !snapshot_zstd

package compress

// Active is the algorithm compiled into this build.
const Active = AlgorithmLZ4

// Default returns the strategy compiled into this build.
func Default() Compressor {
	return NewLZ4()
}
