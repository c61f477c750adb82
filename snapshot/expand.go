package snapshot

import (
	"fmt"

	"github.com/chazu/mksnapshot/compress"
)

// Stream is the runtime view of one generated table, as declared by the
// artifact: Data, Size, RawData and RawSize.
type Stream struct {
	Data    []byte
	Size    int
	RawData []byte
	RawSize int
}

// Expand returns the uncompressed stream. When the artifact aliased
// RawData to Data no work is done; otherwise Data is decompressed with
// alg, which must match the build that generated the artifact.
func Expand(s Stream, alg compress.Algorithm) ([]byte, error) {
	if s.RawData != nil {
		if len(s.RawData) != s.RawSize {
			return nil, fmt.Errorf("snapshot: raw data has %d bytes, declared %d", len(s.RawData), s.RawSize)
		}
		return s.RawData, nil
	}
	if len(s.Data) != s.Size {
		if len(s.Data) == 0 {
			return nil, ErrOmitted
		}
		return nil, fmt.Errorf("snapshot: data has %d bytes, declared %d", len(s.Data), s.Size)
	}
	if s.RawSize > 0 && s.Size == 0 {
		return nil, ErrOmitted
	}
	return compress.Decompress(alg, s.Data, s.RawSize)
}
