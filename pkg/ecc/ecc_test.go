package ecc

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock(seed int64) []byte {
	data := make([]byte, BlockSize)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

func TestCodeBits(t *testing.T) {
	assert.Equal(t, 6, CodeBits(8))
	assert.Equal(t, 16, CodeBits(32))
	assert.Equal(t, 24, CodeBits(512))
	assert.Panics(t, func() { CodeBits(24) })
}

func TestCalcKnownValues(t *testing.T) {
	zeros := make([]byte, BlockSize)
	assert.Equal(t, uint32(0), Calc(zeros))

	one := make([]byte, BlockSize)
	one[0] = 0x01
	// bit 0 of byte 0: p1', p2', p4' and every "bit cleared" row parity.
	assert.Equal(t, uint32(0xAAAA), Calc(one))
}

func TestNoError(t *testing.T) {
	data := testBlock(1)
	code := Calc(data)
	orig := append([]byte(nil), data...)
	require.Equal(t, NoError, Correct(Calc(data), code, data))
	require.Equal(t, orig, data)
}

func TestCorrectsEverySingleBitFlip(t *testing.T) {
	singleBit := make([]byte, BlockSize)
	singleBit[17] = 0x20
	tests := []struct {
		name string
		data []byte
	}{
		{"zeros", make([]byte, BlockSize)},
		{"ones", bytes.Repeat([]byte{0xFF}, BlockSize)},
		{"single bit", singleBit},
		{"random 1", testBlock(1)},
		{"random 2", testBlock(2)},
		{"random 7", testBlock(7)},
		{"random 42", testBlock(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := Calc(tt.data)
			for i := 0; i < BlockSize; i++ {
				for b := uint(0); b < 8; b++ {
					data := append([]byte(nil), tt.data...)
					data[i] ^= 1 << b
					require.Equal(t, Corrected, CorrectBlock(code, data), "byte %d bit %d", i, b)
					require.Equal(t, tt.data, data, "byte %d bit %d", i, b)
				}
			}
		})
	}
}

func TestCodeBitFlipIsCorrupted(t *testing.T) {
	orig := testBlock(3)
	code := Calc(orig)
	for n := 0; n < CodeBits(BlockSize); n++ {
		data := append([]byte(nil), orig...)
		require.Equal(t, Corrupted, CorrectBlock(code^(1<<uint(n)), data), "code bit %d", n)
		require.Equal(t, orig, data)
	}
}

func TestDoubleBitFlipNotCorrected(t *testing.T) {
	orig := testBlock(4)
	code := Calc(orig)
	data := append([]byte(nil), orig...)
	data[3] ^= 0x01
	data[17] ^= 0x40
	assert.Equal(t, NotCorrected, CorrectBlock(code, data))
}

func TestCodeBitsOutsideMaskIgnored(t *testing.T) {
	data := testBlock(5)
	assert.Equal(t, NoError, Correct(Calc(data)|0xFFFF0000, Calc(data), data))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "corrected", Corrected.String())
	assert.Equal(t, "Result(9)", Result(9).String())
}

func BenchmarkCalc(b *testing.B) {
	data := testBlock(6)
	b.SetBytes(BlockSize)
	for i := 0; i < b.N; i++ {
		Calc(data)
	}
}

func BenchmarkCorrectBlock(b *testing.B) {
	orig := testBlock(7)
	code := Calc(orig)
	data := make([]byte, BlockSize)
	b.SetBytes(BlockSize)
	for i := 0; i < b.N; i++ {
		copy(data, orig)
		data[i%BlockSize] ^= 1 << uint(i%8)
		CorrectBlock(code, data)
	}
}
