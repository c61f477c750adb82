package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInputs() map[string][]byte {
	rng := rand.New(rand.NewSource(7))
	random := make([]byte, 1<<20)
	rng.Read(random)

	repetitive := bytes.Repeat([]byte("maggie snapshot heap "), 50000)

	mixed := make([]byte, 0, 300000)
	for i := 0; i < 3000; i++ {
		mixed = append(mixed, byte(i), byte(i>>8), 0, 0)
		mixed = append(mixed, random[i*17:i*17+96]...)
	}

	return map[string][]byte{
		"empty":      {},
		"one byte":   {0x2a},
		"forty":      bytes.Repeat([]byte{1, 2, 3, 4}, 10),
		"random 1MB": random,
		"repetitive": repetitive,
		"mixed":      mixed,
	}
}

func TestRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmNone, AlgorithmZstd, AlgorithmLZ4} {
		for name, input := range testInputs() {
			t.Run(alg.String()+"/"+name, func(t *testing.T) {
				c, err := New(alg)
				require.NoError(t, err)
				require.True(t, c.Compress(input))
				assert.Equal(t, alg, c.Algorithm())

				out, err := Decompress(alg, c.Output(), len(input))
				require.NoError(t, err)
				assert.True(t, bytes.Equal(input, out), "round trip changed %d bytes of input", len(input))
			})
		}
	}
}

func TestCompressDoesNotModifyInput(t *testing.T) {
	input := bytes.Repeat([]byte("abcdefgh"), 4096)
	orig := append([]byte(nil), input...)
	for _, c := range []Compressor{NewZstd(), NewLZ4()} {
		require.True(t, c.Compress(input))
		assert.Equal(t, orig, input, "%v modified its input", c.Algorithm())
	}
}

func TestOutputTruncatedToCompressedLength(t *testing.T) {
	input := bytes.Repeat([]byte{0}, 100000)
	for _, c := range []Compressor{NewZstd(), NewLZ4()} {
		require.True(t, c.Compress(input))
		out := c.Output()
		assert.Less(t, len(out), len(input))
		assert.Equal(t, len(out), cap(out), "%v output not truncated", c.Algorithm())
	}
}

func TestIdentityAliasesInput(t *testing.T) {
	input := []byte{1, 2, 3}
	c := NewIdentity()
	require.True(t, c.Compress(input))
	assert.Same(t, &input[0], &c.Output()[0])
	assert.Equal(t, AlgorithmNone, c.Algorithm())
}

func TestDecompressSizeMismatch(t *testing.T) {
	input := bytes.Repeat([]byte("xy"), 500)
	c := NewZstd()
	require.True(t, c.Compress(input))

	_, err := Decompress(AlgorithmZstd, c.Output(), len(input)-1)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Decompress(AlgorithmNone, input, len(input)+1)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := Decompress(AlgorithmZstd, []byte("not a zstd frame"), 16)
	assert.Error(t, err)
}

func TestWorkingBufferSize(t *testing.T) {
	assert.Equal(t, 1000, WorkingBufferSize(0))
	assert.Equal(t, 1101, WorkingBufferSize(100))
	assert.Equal(t, 1011000, WorkingBufferSize(1000000))
}

func TestDefaultMatchesActive(t *testing.T) {
	assert.Equal(t, Active, Default().Algorithm())
}

func TestNewUnknownAlgorithm(t *testing.T) {
	_, err := New(Algorithm(99))
	assert.Error(t, err)
	assert.Equal(t, "Algorithm(99)", Algorithm(99).String())
}
